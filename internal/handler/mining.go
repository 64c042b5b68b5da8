package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/service"
)

// MiningHandler handles mining cycle endpoints.
type MiningHandler struct {
	svc     *service.MiningService
	worldID string
}

// NewMiningHandler creates a new MiningHandler.
func NewMiningHandler(svc *service.MiningService, worldID string) *MiningHandler {
	return &MiningHandler{svc: svc, worldID: worldID}
}

// Start handles POST /api/mining/start.
func (h *MiningHandler) Start(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input struct {
		Workers     int64 `json:"workers"`
		DurationSec int64 `json:"duration_sec"`
	}
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	task, err := h.svc.StartCycle(r.Context(), playerID, h.worldID, input.Workers, input.DurationSec)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, task)
}

// Reassign handles POST /api/mining/{taskID}/reassign.
func (h *MiningHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	taskID := chi.URLParam(r, "taskID")

	var input struct {
		Workers int64 `json:"workers"`
	}
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	task, err := h.svc.ReassignWorkers(r.Context(), playerID, taskID, input.Workers)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, task)
}
