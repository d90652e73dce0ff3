package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"vellum/internal/httputil"
)

// Recovery turns a handler panic into a 500 problem response instead of a
// dropped connection. Streaming responses that already sent headers cannot
// be rescued; the panic is still logged with its stack.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("handler panicked",
						"panic", v,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
