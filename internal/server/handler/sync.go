package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// Trigger requests an out-of-schedule refresh run.
type Trigger interface {
	Trigger() bool
}

// SyncHandler serves the manual refresh trigger.
type SyncHandler struct {
	trigger Trigger
	logger  *slog.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(trigger Trigger, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{trigger: trigger, logger: logHandler(logger, "sync")}
}

// TriggerSync enqueues one refresh run. A request made while another is still
// pending is coalesced into it.
// POST /api/sync/trigger
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	queued := h.trigger.Trigger()
	h.logger.InfoContext(r.Context(), "sync trigger requested", slog.Bool("queued", queued))

	msg := "sync run enqueued"
	if !queued {
		msg = "sync run already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      msg,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
