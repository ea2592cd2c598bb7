package domain

import (
	"cmp"
	"slices"
)

// Standing is one row of the leaderboard
type Standing struct {
	Rank         int     `json:"rank"`
	PlayerID     string  `json:"player_id"`
	Name         string  `json:"name"`
	AvatarURL    *string `json:"avatar_url,omitempty"`
	AverageScore float64 `json:"average_score"`
	TotalGames   int     `json:"total_games"`
}

// GameScore is a score joined with the name of its player
type GameScore struct {
	Score
	PlayerName string `json:"player_name"`
}

// AverageScore returns the mean value of the player's scores, or 0 when the
// player has none.
func AverageScore(scores []Score, playerID string) float64 {
	var total float64
	count := 0
	for _, s := range scores {
		if s.PlayerID == playerID {
			total += s.Value
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// Leaderboard ranks players by descending average score. Players with equal
// averages keep their relative order from players.
func Leaderboard(players []Player, scores []Score) []Standing {
	type agg struct {
		total float64
		count int
	}
	byPlayer := make(map[string]*agg, len(players))
	for _, s := range scores {
		a, ok := byPlayer[s.PlayerID]
		if !ok {
			a = &agg{}
			byPlayer[s.PlayerID] = a
		}
		a.total += s.Value
		a.count++
	}

	standings := make([]Standing, 0, len(players))
	for _, p := range players {
		st := Standing{PlayerID: p.ID, Name: p.Name, AvatarURL: p.AvatarURL}
		if a, ok := byPlayer[p.ID]; ok && a.count > 0 {
			st.AverageScore = a.total / float64(a.count)
			st.TotalGames = a.count
		}
		standings = append(standings, st)
	}

	slices.SortStableFunc(standings, func(a, b Standing) int {
		return cmp.Compare(b.AverageScore, a.AverageScore)
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// GameScores lists the scores recorded for a game in collection order,
// each joined with its player's name. Unknown players get an empty name.
func GameScores(gameID string, scores []Score, players []Player) []GameScore {
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}

	rows := make([]GameScore, 0)
	for _, s := range scores {
		if s.GameID != gameID {
			continue
		}
		rows = append(rows, GameScore{Score: s, PlayerName: names[s.PlayerID]})
	}
	return rows
}
