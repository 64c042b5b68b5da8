package handler

import (
	"net/http"

	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/service"
)

// RecruitmentHandler handles unit training endpoints.
type RecruitmentHandler struct {
	svc *service.RecruitmentService
}

// NewRecruitmentHandler creates a new RecruitmentHandler.
func NewRecruitmentHandler(svc *service.RecruitmentService) *RecruitmentHandler {
	return &RecruitmentHandler{svc: svc}
}

// Start handles POST /api/recruitment/start.
func (h *RecruitmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input struct {
		Units int64 `json:"units"`
	}
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	order, err := h.svc.StartRecruitment(r.Context(), playerID, input.Units)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, order)
}
