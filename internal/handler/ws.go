package handler

import (
	"net/http"

	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/infra"
	"github.com/ironhaven/worldserver/internal/repository"
)

// WSHandler upgrades authenticated players onto the realtime hub.
type WSHandler struct {
	hub     *infra.WSHub
	players repository.PlayerRepository
	db      repository.DBTX
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *infra.WSHub, players repository.PlayerRepository, db repository.DBTX) *WSHandler {
	return &WSHandler{hub: hub, players: players, db: db}
}

// Connect handles GET /ws. The connection joins the player's private room
// and their world's broadcast room.
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	player, err := h.players.FindByID(r.Context(), h.db, playerID)
	if err != nil {
		RespondError(w, domain.ErrInternal("find player", err))
		return
	}
	if player == nil {
		RespondError(w, domain.ErrNotFound("player", playerID.String()))
		return
	}

	h.hub.ServeWS(w, r, playerID.String(), player.WorldID)
}
