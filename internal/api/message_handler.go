package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Swind/go-seqworker/cipher"
	"github.com/Swind/go-seqworker/core"
	"github.com/Swind/go-seqworker/messagelist"
)

const defaultRecentLimit = 20

// MessageHost is the part of messagelist.Host the handlers use.
type MessageHost interface {
	Push() (cipher.Message, error)
	PushText(text string) (cipher.Message, error)
	Snapshot(ctx context.Context) ([]messagelist.Entry, error)
	ClearDone(ctx context.Context) (int, error)
	Stats() core.WorkerStats
	RecentExecutions(limit int) []core.ExecutionRecord
}

var _ MessageHost = (*messagelist.Host)(nil)

var validate = validator.New()

// CreateMessageRequest is the body of POST /api/messages. An empty text asks for a
// random message.
type CreateMessageRequest struct {
	Text string `json:"text" validate:"omitempty,max=1024"`
}

// MessageResponse is one entry of the list.
type MessageResponse struct {
	Key        string `json:"key"`
	PlainText  string `json:"plain_text"`
	CipherText string `json:"cipher_text,omitempty"`
	Status     string `json:"status"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Error      string `json:"error,omitempty"`
}

// WorkerResponse reports worker stats and its latest executions.
type WorkerResponse struct {
	Name       string              `json:"name"`
	State      string              `json:"state"`
	Staged     int                 `json:"staged"`
	Pending    int                 `json:"pending"`
	Running    int                 `json:"running"`
	Delivered  int64               `json:"delivered"`
	Failed     int64               `json:"failed"`
	Discarded  int64               `json:"discarded"`
	LastTaskAt *time.Time          `json:"last_task_at,omitempty"`
	Recent     []ExecutionResponse `json:"recent"`
}

// ExecutionResponse is one execution record.
type ExecutionResponse struct {
	TaskID      string `json:"task_id"`
	QueueWaitMS int64  `json:"queue_wait_ms"`
	ExecutionMS int64  `json:"execution_ms"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	Failed      bool   `json:"failed"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageHandler serves the message list and worker endpoints.
type MessageHandler struct {
	host   MessageHost
	logger *slog.Logger
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(host MessageHost, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{host: host, logger: logger}
}

// ListMessages handles GET /api/messages.
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	entries, err := h.host.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]MessageResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toMessageResponse(e))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// CreateMessage handles POST /api/messages.
func (h *MessageHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request format"})
			return
		}
	}
	if err := validate.Struct(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "text is too long"})
		return
	}

	var (
		msg cipher.Message
		err error
	)
	if req.Text == "" {
		msg, err = h.host.Push()
	} else {
		msg, err = h.host.PushText(req.Text)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, MessageResponse{
		Key:       msg.Key.String(),
		PlainText: msg.PlainText,
		Status:    messagelist.StatusPending.String(),
	})
}

// ClearMessages handles DELETE /api/messages by removing finished entries.
func (h *MessageHandler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	removed, err := h.host.ClearDone(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// WorkerStats handles GET /api/worker. The optional limit query parameter caps the
// number of recent executions returned.
func (h *MessageHandler) WorkerStats(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	stats := h.host.Stats()
	resp := WorkerResponse{
		Name:      stats.Name,
		State:     stats.State.String(),
		Staged:    stats.Staged,
		Pending:   stats.Pending,
		Running:   stats.Running,
		Delivered: stats.Delivered,
		Failed:    stats.Failed,
		Discarded: stats.Discarded,
		Recent:    []ExecutionResponse{},
	}
	if !stats.LastTaskAt.IsZero() {
		last := stats.LastTaskAt
		resp.LastTaskAt = &last
	}
	if limit > 0 {
		for _, rec := range h.host.RecentExecutions(limit) {
			resp.Recent = append(resp.Recent, ExecutionResponse{
				TaskID:      rec.TaskID.String(),
				QueueWaitMS: rec.QueueWait.Milliseconds(),
				ExecutionMS: rec.Execution.Milliseconds(),
				ElapsedMS:   rec.Elapsed.Milliseconds(),
				Failed:      rec.Failed,
			})
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func toMessageResponse(e messagelist.Entry) MessageResponse {
	resp := MessageResponse{
		Key:        e.Message.Key.String(),
		PlainText:  e.Message.PlainText,
		CipherText: e.Message.CipherText,
		Status:     e.Status.String(),
		ElapsedMS:  e.ElapsedMillis,
	}
	if e.Err != nil {
		resp.Error = "encryption failed"
	}
	return resp
}

func (h *MessageHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, core.ErrLoopClosed):
		status, msg = http.StatusServiceUnavailable, "host is shutting down"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusServiceUnavailable, "request cancelled"
	}
	h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (h *MessageHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
