package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/scheduler"
)

// EventsHandler exposes scheduler events: players introspect their own,
// admins operate on any event's lifecycle.
type EventsHandler struct {
	tm *scheduler.TimeManager
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(tm *scheduler.TimeManager) *EventsHandler {
	return &EventsHandler{tm: tm}
}

// ListMine handles GET /api/players/me/events.
func (h *EventsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	events, err := h.tm.PlayerEvents(r.Context(), playerID.String())
	if err != nil {
		RespondError(w, domain.ErrInternal("list events", err))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// Reschedule handles POST /api/admin/events/{eventID}/reschedule.
func (h *EventsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var input struct {
		DelaySec int64 `json:"delay_sec"`
	}
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if input.DelaySec <= 0 {
		RespondError(w, domain.ErrValidation("delay_sec must be positive"))
		return
	}

	if !h.tm.UpdateEventTime(r.Context(), eventID, input.DelaySec) {
		RespondError(w, domain.ErrNotFound("event", eventID))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "rescheduled"})
}

// Pause handles POST /api/admin/events/{eventID}/pause.
func (h *EventsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if !h.tm.PauseEvent(r.Context(), eventID) {
		RespondError(w, domain.ErrConflict("event not pausable"))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// Resume handles POST /api/admin/events/{eventID}/resume.
func (h *EventsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if !h.tm.ResumeEvent(r.Context(), eventID) {
		RespondError(w, domain.ErrConflict("event not resumable"))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// Cancel handles DELETE /api/admin/events/{eventID}.
func (h *EventsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if !h.tm.CancelEvent(r.Context(), eventID) {
		RespondError(w, domain.ErrNotFound("event", eventID))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
