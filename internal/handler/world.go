package handler

import (
	"net/http"

	"github.com/ironhaven/worldserver/internal/infra"
	"github.com/ironhaven/worldserver/internal/scheduler"
	"github.com/ironhaven/worldserver/internal/service"
)

// WorldHandler exposes world clock and scheduler introspection.
type WorldHandler struct {
	tm       *scheduler.TimeManager
	calendar *service.CalendarService
	hub      *infra.WSHub
}

// NewWorldHandler creates a new WorldHandler.
func NewWorldHandler(tm *scheduler.TimeManager, calendar *service.CalendarService, hub *infra.WSHub) *WorldHandler {
	return &WorldHandler{tm: tm, calendar: calendar, hub: hub}
}

// TimeStats handles GET /api/world/time/stats.
func (h *WorldHandler) TimeStats(w http.ResponseWriter, r *http.Request) {
	stats := h.tm.Stats()
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"scheduler":   stats,
		"connections": h.hub.ConnectionCount(),
	})
}

// Calendar handles GET /api/world/calendar.
func (h *WorldHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.calendar.State())
}
