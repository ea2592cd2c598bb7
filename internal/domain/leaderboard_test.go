package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAverageScore(t *testing.T) {
	scores := []Score{
		{ID: "s1", PlayerID: "p1", Value: 10},
		{ID: "s2", PlayerID: "p1", Value: 20},
		{ID: "s3", PlayerID: "p2", Value: 30},
	}

	assert.Equal(t, 15.0, AverageScore(scores, "p1"))
	assert.Equal(t, 30.0, AverageScore(scores, "p2"))

	zero := AverageScore(scores, "p3")
	assert.Equal(t, 0.0, zero)
	assert.False(t, math.IsNaN(zero))
	assert.Equal(t, 0.0, AverageScore(nil, "p1"))
}

func TestLeaderboardOrdering(t *testing.T) {
	players := []Player{
		{ID: "p1", Name: "P1"},
		{ID: "p2", Name: "P2"},
		{ID: "p3", Name: "P3"},
	}
	scores := []Score{
		{ID: "s1", PlayerID: "p1", Value: 10},
		{ID: "s2", PlayerID: "p1", Value: 20},
		{ID: "s3", PlayerID: "p2", Value: 30},
	}

	standings := Leaderboard(players, scores)
	require.Len(t, standings, 3)

	assert.Equal(t, "p2", standings[0].PlayerID)
	assert.Equal(t, 30.0, standings[0].AverageScore)
	assert.Equal(t, 1, standings[0].TotalGames)
	assert.Equal(t, 1, standings[0].Rank)

	assert.Equal(t, "p1", standings[1].PlayerID)
	assert.Equal(t, 15.0, standings[1].AverageScore)
	assert.Equal(t, 2, standings[1].TotalGames)
	assert.Equal(t, 2, standings[1].Rank)

	assert.Equal(t, "p3", standings[2].PlayerID)
	assert.Equal(t, 0.0, standings[2].AverageScore)
	assert.Equal(t, 0, standings[2].TotalGames)
	assert.Equal(t, 3, standings[2].Rank)
}

func TestLeaderboardTiesKeepCollectionOrder(t *testing.T) {
	players := []Player{
		{ID: "c", Name: "Cat"},
		{ID: "a", Name: "Ann"},
		{ID: "b", Name: "Bob"},
	}
	scores := []Score{
		{ID: "1", PlayerID: "a", Value: 5},
		{ID: "2", PlayerID: "b", Value: 5},
		{ID: "3", PlayerID: "c", Value: 5},
	}

	standings := Leaderboard(players, scores)
	ids := make([]string, len(standings))
	for i, st := range standings {
		ids[i] = st.PlayerID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestLeaderboardIgnoresScoresOfUnknownPlayers(t *testing.T) {
	players := []Player{{ID: "p1", Name: "P1"}}
	scores := []Score{{ID: "s1", PlayerID: "ghost", Value: 100}}

	standings := Leaderboard(players, scores)
	require.Len(t, standings, 1)
	assert.Equal(t, 0.0, standings[0].AverageScore)
}

func TestGameScores(t *testing.T) {
	players := []Player{{ID: "p1", Name: "Ann"}, {ID: "p2", Name: "Bob"}}
	scores := []Score{
		{ID: "s1", GameID: "g1", PlayerID: "p2", Value: 7},
		{ID: "s2", GameID: "g2", PlayerID: "p1", Value: 3},
		{ID: "s3", GameID: "g1", PlayerID: "p1", Value: 9},
		{ID: "s4", GameID: "g1", PlayerID: "gone", Value: 1},
	}

	rows := GameScores("g1", scores, players)
	require.Len(t, rows, 3)
	assert.Equal(t, "s1", rows[0].ID)
	assert.Equal(t, "Bob", rows[0].PlayerName)
	assert.Equal(t, "s3", rows[1].ID)
	assert.Equal(t, "Ann", rows[1].PlayerName)
	assert.Equal(t, "", rows[2].PlayerName)

	assert.Empty(t, GameScores("missing", scores, players))
}
