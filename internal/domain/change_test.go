package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeChange(t *testing.T) {
	t.Run("update carries the new row", func(t *testing.T) {
		ev, err := DecodeChange([]byte(`{"eventType":"UPDATE","table":"players","new":{"id":"a","name":"Annie"},"old":{"id":"a"}}`))
		require.NoError(t, err)
		assert.Equal(t, EventUpdate, ev.Type)
		assert.Equal(t, TablePlayers, ev.Table)

		p, err := DecodeRow[Player](ev)
		require.NoError(t, err)
		assert.Equal(t, "a", p.ID)
		assert.Equal(t, "Annie", p.Name)
		assert.Nil(t, p.AvatarURL)
	})

	t.Run("delete carries the old id", func(t *testing.T) {
		ev, err := DecodeChange([]byte(`{"eventType":"DELETE","table":"scores","new":null,"old":{"id":"s1"}}`))
		require.NoError(t, err)
		assert.False(t, ev.HasNew())
		assert.Equal(t, "s1", ev.OldID())
	})

	t.Run("score timestamps from postgres", func(t *testing.T) {
		ev, err := DecodeChange([]byte(`{"eventType":"INSERT","table":"scores","new":{"id":"s1","game_id":"g","player_id":"p","value":12.5,"created_at":"2024-05-01T12:34:56.789012+00:00"},"old":null}`))
		require.NoError(t, err)
		s, err := DecodeRow[Score](ev)
		require.NoError(t, err)
		assert.Equal(t, 12.5, s.Value)
		assert.Equal(t, 2024, s.CreatedAt.Year())
	})

	bad := map[string]string{
		"unknown table":      `{"eventType":"INSERT","table":"users","new":{"id":"x"}}`,
		"insert without row": `{"eventType":"INSERT","table":"games","new":null}`,
		"delete without id":  `{"eventType":"DELETE","table":"games"}`,
		"unknown type":       `{"eventType":"TRUNCATE","table":"games"}`,
		"not json":           `nope`,
	}
	for name, payload := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeChange([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestNewChangeRoundTrip(t *testing.T) {
	g := Game{ID: "g1", Name: "Catan"}
	ev, err := NewChange(EventInsert, TableGames, g)
	require.NoError(t, err)

	got, err := DecodeRow[Game](ev)
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)
	assert.Equal(t, g.Name, got.Name)

	del := DeleteChange(TableGames, "g1")
	assert.Equal(t, "g1", del.OldID())
	_, err = DecodeRow[Game](del)
	assert.True(t, errors.Is(err, ErrInvalidChange))
}

func TestErrorTaxonomy(t *testing.T) {
	storeErr := &StoreError{Op: "update", Table: TablePlayers, Err: ErrNotFound}
	assert.ErrorIs(t, storeErr, ErrStore)
	assert.ErrorIs(t, storeErr, ErrNotFound)
	assert.True(t, IsNotFoundError(storeErr))
	assert.Equal(t, "update players: record not found", storeErr.Error())

	cause := errors.New("connection refused")
	loadErr := &LoadError{Failures: map[Table]error{TableScores: cause}}
	assert.ErrorIs(t, loadErr, ErrLoadFailed)
	assert.ErrorIs(t, loadErr, cause)
	assert.Contains(t, loadErr.Error(), "scores: connection refused")
}
