package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/score-tracker/internal/domain"
)

// ListPlayers returns the players collection
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.store.Players())
}

// ListGames returns the games collection
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.store.Games())
}

// ListScores returns the scores collection
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.store.Scores())
}

// ListGameScores returns a game's scores with player names
func (h *Handler) ListGameScores(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	game, ok := h.store.Game(gameID)
	if !ok {
		h.writeError(w, http.StatusNotFound, domain.ErrNotFound)
		return
	}

	h.writeSuccess(w, map[string]any{
		"game":   game,
		"scores": domain.GameScores(gameID, h.store.Scores(), h.store.Players()),
	})
}

// GetLeaderboard ranks players by average score. An optional limit keeps
// the top entries only.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	standings := domain.Leaderboard(h.store.Players(), h.store.Scores())

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(standings) {
			standings = standings[:l]
		}
	}

	h.writeSuccess(w, standings)
}
