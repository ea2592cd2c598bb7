package domain

import "time"

// Player represents a player in the system
type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// PlayerID returns the player's identifier
func PlayerID(p Player) string { return p.ID }
