package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/score-tracker/internal/auth"
	"github.com/score-tracker/internal/domain"
	"github.com/score-tracker/internal/websocket"
)

// DataStore is the synchronized store as seen by the HTTP layer
type DataStore interface {
	Loaded() bool
	Players() []domain.Player
	Games() []domain.Game
	Scores() []domain.Score
	Game(id string) (domain.Game, bool)

	AddPlayer(ctx context.Context, name string, avatarURL *string) (domain.Player, error)
	AddGame(ctx context.Context, name string) (domain.Game, error)
	AddScore(ctx context.Context, gameID, playerID string, value float64) (domain.Score, error)
	UpdatePlayer(ctx context.Context, id, name string, avatarURL *string) (domain.Player, error)
	UpdateScore(ctx context.Context, id string, value float64) (domain.Score, error)
	DeletePlayer(ctx context.Context, id string) error
	DeleteGame(ctx context.Context, id string) error
	DeleteScore(ctx context.Context, id string) error
}

// Handler provides HTTP handlers for the score tracker API
type Handler struct {
	store  DataStore
	auth   *auth.Authenticator
	hub    *websocket.Hub
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(store DataStore, authenticator *auth.Authenticator, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		auth:   authenticator,
		hub:    hub,
		logger: logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(h.sessionMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)
		r.Get("/session", h.GetSession)

		r.Get("/players", h.ListPlayers)
		r.Get("/games", h.ListGames)
		r.Get("/scores", h.ListScores)
		r.Get("/games/{gameID}/scores", h.ListGameScores)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/ws/stats", h.GetWebSocketStats)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(h))

			r.Post("/players", h.CreatePlayer)
			r.Put("/players/{playerID}", h.UpdatePlayer)
			r.Delete("/players/{playerID}", h.DeletePlayer)

			r.Post("/games", h.CreateGame)
			r.Delete("/games/{gameID}", h.DeleteGame)
			r.Post("/games/{gameID}/scores", h.CreateScore)

			r.Put("/scores/{scoreID}", h.UpdateScore)
			r.Delete("/scores/{scoreID}", h.DeleteScore)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeCreated writes a 201 JSON response
func (h *Handler) writeCreated(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeStoreError maps a store error to a status code. Unexpected failures
// are logged and reported as internal errors.
func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		h.writeError(w, http.StatusUnauthorized, domain.ErrAuthRequired)
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, domain.ErrForbidden)
	case errors.Is(err, domain.ErrInvalidName):
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidName)
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
	case errors.Is(err, domain.ErrInvalidReference):
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidReference)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, domain.ErrNotFound)
	default:
		h.logger.Error("failed to "+op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]int{"total_connections": h.hub.GetTotalConnections()}
	for _, table := range domain.Tables {
		stats[string(table)+"_subscribers"] = h.hub.GetSubscriberCount(table)
	}
	h.writeSuccess(w, stats)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the store finished its initial load
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if !h.store.Loaded() {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Error:   "store is loading",
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
