package collection

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/score-tracker/internal/domain"
)

func newPlayers() *Collection[domain.Player] {
	return New(domain.TablePlayers, domain.PlayerID)
}

func playerChange(t *testing.T, typ domain.EventType, p domain.Player) domain.ChangeEvent {
	t.Helper()
	ev, err := domain.NewChange(typ, domain.TablePlayers, p)
	require.NoError(t, err)
	return ev
}

func names(c *Collection[domain.Player]) []string {
	out := make([]string, 0, c.Len())
	for _, p := range c.Items() {
		out = append(out, p.Name)
	}
	return out
}

func TestUpsertKeepsPosition(t *testing.T) {
	c := newPlayers()
	assert.True(t, c.Upsert(domain.Player{ID: "a", Name: "Ann"}))
	assert.True(t, c.Upsert(domain.Player{ID: "b", Name: "Bob"}))
	assert.False(t, c.Upsert(domain.Player{ID: "a", Name: "Annie"}))

	assert.Equal(t, []string{"Annie", "Bob"}, names(c))
}

func TestInsertKeepsExisting(t *testing.T) {
	c := newPlayers()
	assert.True(t, c.Insert(domain.Player{ID: "a", Name: "Annie"}))
	assert.False(t, c.Insert(domain.Player{ID: "a", Name: "Ann"}))
	assert.True(t, c.Insert(domain.Player{ID: "b", Name: "Bob"}))

	assert.Equal(t, []string{"Annie", "Bob"}, names(c))
}

func TestRemove(t *testing.T) {
	c := newPlayers()
	c.Reset([]domain.Player{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "c", Name: "C"}})

	assert.True(t, c.Remove("b"))
	assert.False(t, c.Remove("b"))
	assert.Equal(t, []string{"A", "C"}, names(c))

	// index must follow the shift
	c.Upsert(domain.Player{ID: "c", Name: "C2"})
	assert.Equal(t, []string{"A", "C2"}, names(c))
}

func TestRemoveWhere(t *testing.T) {
	scores := New(domain.TableScores, domain.ScoreID)
	scores.Reset([]domain.Score{
		{ID: "1", PlayerID: "p1"},
		{ID: "2", PlayerID: "p2"},
		{ID: "3", PlayerID: "p1"},
		{ID: "4", PlayerID: "p3"},
	})

	removed := scores.RemoveWhere(func(s domain.Score) bool { return s.PlayerID == "p1" })
	assert.Equal(t, []string{"1", "3"}, removed)
	require.Equal(t, 2, scores.Len())

	_, ok := scores.Get("1")
	assert.False(t, ok)
	s, ok := scores.Get("4")
	require.True(t, ok)
	assert.Equal(t, "p3", s.PlayerID)
}

func TestResetDeduplicates(t *testing.T) {
	c := newPlayers()
	c.Reset([]domain.Player{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "a", Name: "A2"}})
	assert.Equal(t, []string{"A2", "B"}, names(c))
}

func TestItemsIsACopy(t *testing.T) {
	c := newPlayers()
	c.Upsert(domain.Player{ID: "a", Name: "A"})
	items := c.Items()
	items[0].Name = "changed"

	p, _ := c.Get("a")
	assert.Equal(t, "A", p.Name)
}

func TestApplyUpdateNotification(t *testing.T) {
	c := newPlayers()
	c.Reset([]domain.Player{{ID: "a", Name: "Ann"}})

	require.NoError(t, c.Apply(playerChange(t, domain.EventUpdate, domain.Player{ID: "a", Name: "Annie"})))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []string{"Annie"}, names(c))
}

func TestApplyInsertIsIdempotent(t *testing.T) {
	once := newPlayers()
	twice := newPlayers()
	ev := playerChange(t, domain.EventInsert, domain.Player{ID: "a", Name: "Ann"})

	require.NoError(t, once.Apply(ev))
	require.NoError(t, twice.Apply(ev))
	require.NoError(t, twice.Apply(ev))

	assert.Equal(t, once.Items(), twice.Items())
}

func TestApplyDeleteOfMissingIDIsNoop(t *testing.T) {
	c := newPlayers()
	c.Upsert(domain.Player{ID: "a", Name: "Ann"})
	require.NoError(t, c.Apply(domain.DeleteChange(domain.TablePlayers, "zzz")))
	assert.Equal(t, 1, c.Len())
}

func TestApplyRejectsForeignTable(t *testing.T) {
	c := newPlayers()
	err := c.Apply(domain.DeleteChange(domain.TableGames, "g"))
	assert.ErrorIs(t, err, domain.ErrInvalidChange)
}

func TestApplyRejectsRowWithoutID(t *testing.T) {
	c := newPlayers()
	err := c.Apply(playerChange(t, domain.EventInsert, domain.Player{Name: "nobody"}))
	assert.ErrorIs(t, err, domain.ErrInvalidChange)
	assert.Equal(t, 0, c.Len())
}

// Random event sequences: at most one entity per id, and each present id
// holds the fields of the last event applied for it.
func TestApplyLastWriteWins(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d", "e"}

	for round := 0; round < 200; round++ {
		c := newPlayers()
		last := map[string]*domain.Player{}

		for step := 0; step < 30; step++ {
			id := ids[rng.Intn(len(ids))]
			switch rng.Intn(3) {
			case 0, 1:
				typ := domain.EventInsert
				if rng.Intn(2) == 0 {
					typ = domain.EventUpdate
				}
				p := domain.Player{ID: id, Name: fmt.Sprintf("%s-%d-%d", id, round, step)}
				require.NoError(t, c.Apply(playerChange(t, typ, p)))
				last[id] = &p
			case 2:
				require.NoError(t, c.Apply(domain.DeleteChange(domain.TablePlayers, id)))
				last[id] = nil
			}
		}

		seen := map[string]bool{}
		for _, p := range c.Items() {
			require.False(t, seen[p.ID], "duplicate id %s", p.ID)
			seen[p.ID] = true
		}
		for id, want := range last {
			got, ok := c.Get(id)
			if want == nil {
				assert.False(t, ok)
				continue
			}
			require.True(t, ok)
			assert.Equal(t, want.Name, got.Name)
		}
	}
}
