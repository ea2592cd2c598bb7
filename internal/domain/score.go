package domain

import "time"

// Score is one player's recorded result within one game
type Score struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	PlayerID  string    `json:"player_id"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoreID returns the score's identifier
func ScoreID(s Score) string { return s.ID }

// ScoreSubmission represents a request to record a score
type ScoreSubmission struct {
	GameID   string  `json:"game_id"`
	PlayerID string  `json:"player_id"`
	Value    float64 `json:"value"`
}

// Validate checks that the submission names a game and a player
func (s ScoreSubmission) Validate() error {
	if s.GameID == "" || s.PlayerID == "" {
		return ErrInvalidRequest
	}
	return nil
}
