// Package api provides HTTP handlers for the relay server REST API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coregx/msgrelay"
	"github.com/coregx/msgrelay/model"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	client *msgrelay.Client
	logger msgrelay.Logger
}

// NewHandler creates a new API handler.
func NewHandler(client *msgrelay.Client, logger msgrelay.Logger) *Handler {
	return &Handler{
		client: client,
		logger: logger,
	}
}

// EnqueueRequest represents a message enqueue request.
type EnqueueRequest struct {
	Type      string                 `json:"type"`
	Priority  string                 `json:"priority"`
	Recipient string                 `json:"recipient"`
	Data      map[string]interface{} `json:"data"`
}

// ReplayRequest represents a dead-letter replay request. An empty ID list
// replays everything.
type ReplayRequest struct {
	IDs []string `json:"ids"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleEnqueue handles POST /api/v1/messages
func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	// Validate request
	if req.Type == "" {
		h.respondError(w, http.StatusBadRequest, "type is required", "VALIDATION_ERROR")
		return
	}
	priority := model.Priority(req.Priority)
	if req.Priority == "" {
		priority = model.PriorityNormal
	}
	if !priority.Valid() {
		h.respondError(w, http.StatusBadRequest, "priority must be high, normal or low", "VALIDATION_ERROR")
		return
	}

	payload, err := json.Marshal(req.Data)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to serialize data", "SERIALIZATION_ERROR")
		return
	}

	msg := model.NewMessage(req.Type, payload)
	msg.Recipient = req.Recipient

	if err := h.client.Enqueue(r.Context(), msg, priority); err != nil {
		if msgrelay.IsQueueFull(err) {
			h.respondError(w, http.StatusServiceUnavailable, "Queue is at capacity", "QUEUE_FULL")
			return
		}
		h.logger.Errorf("Failed to enqueue message: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to enqueue message", "ENQUEUE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusAccepted, map[string]string{"id": msg.ID}, "Message accepted for delivery")
}

// HandleQueueStats handles GET /api/v1/queue/stats
func (h *Handler) HandleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	h.respondSuccess(w, http.StatusOK, h.client.GetQueueStatistics(), "")
}

// HandleListDeadLetters handles GET /api/v1/dead-letters
func (h *Handler) HandleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	items := h.client.DeadLetters()
	if len(items) == 0 {
		h.respondSuccess(w, http.StatusOK, []model.DeadLetter{}, "No dead-lettered messages")
		return
	}

	h.respondSuccess(w, http.StatusOK, items, "")
}

// HandleReplayDeadLetters handles POST /api/v1/dead-letters/replay
func (h *Handler) HandleReplayDeadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req ReplayRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
			return
		}
	}

	count, err := h.client.RetryDeadLettered(r.Context(), req.IDs...)
	if err != nil {
		if msgrelay.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Dead letter not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Failed to replay dead letters: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to replay dead letters", "REPLAY_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, map[string]int{"replayed": count}, "Dead letters requeued")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	metrics := h.client.GetHealthMetrics()
	health := map[string]interface{}{
		"status":      metrics.OverallStatus,
		"connections": metrics,
		"deadLetters": h.client.GetDeadLetterStats(),
		"timestamp":   time.Now().UTC(),
		"version":     "0.1.0",
	}

	status := http.StatusOK
	if metrics.ConnectedCount == 0 {
		status = http.StatusServiceUnavailable
	}
	h.respondSuccess(w, status, health, "")
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
