package handler

import (
	"log/slog"
	"net/http"

	"vellum/internal/domain/services"
	"vellum/internal/handler/sse"
	"vellum/internal/httputil"
)

// AIHandler handles the generation endpoints. Each endpoint validates and
// starts a run through the service, then holds the connection open as a
// text/event-stream until the terminal frame.
type AIHandler struct {
	genService services.GenerationService
	sseConfig  *sse.Config
	logger     *slog.Logger
}

// NewAIHandler creates a new AI handler
func NewAIHandler(genService services.GenerationService, sseConfig *sse.Config, logger *slog.Logger) *AIHandler {
	return &AIHandler{
		genService: genService,
		sseConfig:  sseConfig,
		logger:     logger,
	}
}

// Chat starts a document-aware chat stream
// POST /api/ai/chat
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req services.ChatRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)

	run, err := h.genService.StartChat(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	h.stream(w, r, run)
}

// Generate starts a selection-action stream
// POST /api/ai/generate
func (h *AIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req services.SelectionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)

	run, err := h.genService.StartSelection(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	h.stream(w, r, run)
}

// GlobalEdit starts a whole-document edit stream
// POST /api/ai/global-edit
func (h *AIHandler) GlobalEdit(w http.ResponseWriter, r *http.Request) {
	var req services.GlobalEditRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)

	run, err := h.genService.StartGlobalEdit(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	h.stream(w, r, run)
}

// Interrupt cancels a live run
// POST /api/ai/operations/{id}/interrupt
func (h *AIHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "operation ID is required")
		return
	}

	if err := h.genService.Interrupt(r.Context(), id, httputil.GetUserID(r)); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// stream drains run events into the response. Failures after this point are
// reported in-band; the HTTP status is already 200.
func (h *AIHandler) stream(w http.ResponseWriter, r *http.Request, run *services.GenerationRun) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	keepAlive := sse.NewTickerKeepAlive(h.sseConfig.KeepAliveInterval)
	dead := keepAlive.Start(writer, h.logger)
	defer keepAlive.Stop()

	for {
		select {
		case event, ok := <-run.Events:
			if !ok {
				return
			}
			if err := writer.WriteEvent(event); err != nil {
				h.logger.Warn("stream write failed, client gone",
					"operation_id", run.OperationID,
					"error", err,
				)
				return
			}

		case <-r.Context().Done():
			// Disconnect cancels the run context; the service persists
			// the outcome on its own.
			h.logger.Debug("stream client disconnected", "operation_id", run.OperationID)
			return

		case <-dead:
			return
		}
	}
}
