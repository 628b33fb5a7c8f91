package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursebuilder-backend/internal/generation"
	"github.com/yungbote/coursebuilder-backend/internal/http/response"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

const maxParamsBytes = 64 << 10

type GenerationHandler struct {
	log        *logger.Logger
	dispatcher *generation.Dispatcher
	bridge     *generation.Bridge
}

func NewGenerationHandler(log *logger.Logger, dispatcher *generation.Dispatcher, bridge *generation.Bridge) *GenerationHandler {
	return &GenerationHandler{log: log.With("handler", "GenerationHandler"), dispatcher: dispatcher, bridge: bridge}
}

func readParams(c *gin.Context) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxParamsBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "payload_too_large", err)
		return nil, false
	}
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return nil, false
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return raw, true
}

// POST /api/generate/:kind
func (h *GenerationHandler) Generate(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	params, ok := readParams(c)
	if !ok {
		return
	}
	acc, err := h.dispatcher.Dispatch(c.Request.Context(), c.Param("kind"), generation.Request{UserID: userID, Params: params})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, acc)
}

// GET /api/task-status/:kind/:task_id
func (h *GenerationHandler) TaskStatus(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	handle, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	st, err := h.bridge.Status(c.Request.Context(), c.Param("kind"), userID, handle)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, st)
}

// POST /api/stream/:kind answers with raw text chunks. Errors found before the
// first byte use the JSON envelope; later ones arrive as an SSE error event.
func (h *GenerationHandler) Stream(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	params, ok := readParams(c)
	if !ok {
		return
	}
	stream, err := h.bridge.OpenStream(c.Request.Context(), c.Param("kind"), generation.Request{UserID: userID, Params: params})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Task-Id", stream.Accepted.TaskID.String())
	w.WriteHeader(http.StatusOK)
	w.Flush()

	out := stream.Relay(c.Request.Context(), w, w.Flush)
	h.log.Debug("Stream closed", "task_id", stream.Accepted.TaskID, "outcome", out)
}
