package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/score-tracker/internal/domain"
)

// PlayerRequest is the body of player create and update requests
type PlayerRequest struct {
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

// GameRequest is the body of a game create request
type GameRequest struct {
	Name string `json:"name"`
}

// ScoreRequest is the body of score create and update requests. PlayerID is
// ignored on update.
type ScoreRequest struct {
	PlayerID string   `json:"player_id"`
	Value    *float64 `json:"value"`
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidRequest
	}
	return nil
}

// CreatePlayer adds a player
func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req PlayerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.store.AddPlayer(r.Context(), req.Name, req.AvatarURL)
	if err != nil {
		h.writeStoreError(w, "add player", err)
		return
	}
	h.writeCreated(w, p)
}

// UpdatePlayer renames a player
func (h *Handler) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var req PlayerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.store.UpdatePlayer(r.Context(), chi.URLParam(r, "playerID"), req.Name, req.AvatarURL)
	if err != nil {
		h.writeStoreError(w, "update player", err)
		return
	}
	h.writeSuccess(w, p)
}

// DeletePlayer removes a player and its scores
func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeletePlayer(r.Context(), chi.URLParam(r, "playerID")); err != nil {
		h.writeStoreError(w, "delete player", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// CreateGame adds a game dated today
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req GameRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	g, err := h.store.AddGame(r.Context(), req.Name)
	if err != nil {
		h.writeStoreError(w, "add game", err)
		return
	}
	h.writeCreated(w, g)
}

// DeleteGame removes a game and its scores
func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteGame(r.Context(), chi.URLParam(r, "gameID")); err != nil {
		h.writeStoreError(w, "delete game", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// CreateScore records a score in a game
func (h *Handler) CreateScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.PlayerID == "" || req.Value == nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	s, err := h.store.AddScore(r.Context(), chi.URLParam(r, "gameID"), req.PlayerID, *req.Value)
	if err != nil {
		h.writeStoreError(w, "add score", err)
		return
	}
	h.writeCreated(w, s)
}

// UpdateScore changes a score's value
func (h *Handler) UpdateScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Value == nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	s, err := h.store.UpdateScore(r.Context(), chi.URLParam(r, "scoreID"), *req.Value)
	if err != nil {
		h.writeStoreError(w, "update score", err)
		return
	}
	h.writeSuccess(w, s)
}

// DeleteScore removes a score
func (h *Handler) DeleteScore(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteScore(r.Context(), chi.URLParam(r, "scoreID")); err != nil {
		h.writeStoreError(w, "delete score", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}
