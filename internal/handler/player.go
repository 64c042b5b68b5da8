package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/ironhaven/worldserver/internal/auth"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/repository"
)

// PlayerHandler handles player state endpoints.
type PlayerHandler struct {
	players      repository.PlayerRepository
	transactions repository.TransactionRepository
	db           repository.DBTX
}

// NewPlayerHandler creates a new PlayerHandler.
func NewPlayerHandler(players repository.PlayerRepository, transactions repository.TransactionRepository, db repository.DBTX) *PlayerHandler {
	return &PlayerHandler{players: players, transactions: transactions, db: db}
}

// playerIDFromContext resolves the authenticated player's id.
func playerIDFromContext(r *http.Request) (uuid.UUID, error) {
	sub := auth.SubjectFromContext(r.Context())
	if sub == "" {
		return uuid.Nil, domain.ErrUnauthorized("no subject in context")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, domain.ErrUnauthorized("invalid subject")
	}
	return id, nil
}

// GetMe handles GET /api/players/me.
func (h *PlayerHandler) GetMe(w http.ResponseWriter, r *http.Request) {
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

	RespondJSON(w, http.StatusOK, player)
}

// ListTransactions handles GET /api/players/me/transactions.
func (h *PlayerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.transactions.ListByPlayer(r.Context(), h.db, playerID, limit)
	if err != nil {
		RespondError(w, domain.ErrInternal("list transactions", err))
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": entries,
		"count":        len(entries),
	})
}
