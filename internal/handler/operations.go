package handler

import (
	"log/slog"
	"net/http"

	"vellum/internal/domain/services"
	"vellum/internal/httputil"
)

// OperationsHandler serves the AI operations registry: the audit history the
// editor UI lists and the endpoint that records the user's final decision.
type OperationsHandler struct {
	genService services.GenerationService
	logger     *slog.Logger
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(genService services.GenerationService, logger *slog.Logger) *OperationsHandler {
	return &OperationsHandler{
		genService: genService,
		logger:     logger,
	}
}

// ListOperations lists recent operations for a document, newest first
// GET /api/ai/operations?documentId=&limit=
func (h *OperationsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("documentId")
	limit := queryInt(r, "limit", 0)

	ops, err := h.genService.ListOperations(r.Context(), documentID, httputil.GetUserID(r), limit)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, ops)
}

// DecideOperation records the final accept/reject decision
// PATCH /api/ai/operations/{id}
func (h *OperationsHandler) DecideOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "operation ID is required")
		return
	}

	var req services.DecideOperationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)

	op, err := h.genService.DecideOperation(r.Context(), id, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, op)
}
