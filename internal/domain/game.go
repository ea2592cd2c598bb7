package domain

import "time"

// Game is a single played game. Games are immutable after creation.
type Game struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// GameID returns the game's identifier
func GameID(g Game) string { return g.ID }
