// Package syncstore keeps an in-memory mirror of the players, games and
// scores tables consistent with the remote store. Mutations go through the
// entity services. Created rows and deletes are applied locally once
// confirmed; updates, and everyone else's changes, arrive on the change feed.
package syncstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/score-tracker/internal/auth"
	"github.com/score-tracker/internal/collection"
	"github.com/score-tracker/internal/domain"
	"github.com/score-tracker/internal/feed"
	"github.com/score-tracker/internal/service"
)

// ErrAlreadyInitialized is returned by a second call to Initialize
var ErrAlreadyInitialized = errors.New("store already initialized")

// Broadcaster receives the changes the store applies and the notices it emits
type Broadcaster interface {
	BroadcastChange(ev domain.ChangeEvent)
	BroadcastNotice(n domain.Notice)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastChange(domain.ChangeEvent) {}
func (nopBroadcaster) BroadcastNotice(domain.Notice)      {}

// Store is the synchronized collection store
type Store struct {
	playerService *service.PlayerService
	gameService   *service.GameService
	scoreService  *service.ScoreService
	feed          feed.Feed
	logger        *slog.Logger

	mu          sync.RWMutex
	players     *collection.Collection[domain.Player]
	games       *collection.Collection[domain.Game]
	scores      *collection.Collection[domain.Score]
	loading     map[domain.Table]bool
	pending     map[domain.Table][]pendingChange
	deleted     map[domain.Table]map[string]struct{}
	subs        []feed.Subscription
	broadcaster Broadcaster
	initialized bool
	loaded      bool
	closed      bool
}

// New creates an empty store. Call Initialize to load it and start
// following the change feed.
func New(players *service.PlayerService, games *service.GameService, scores *service.ScoreService, changes feed.Feed, logger *slog.Logger) *Store {
	return &Store{
		playerService: players,
		gameService:   games,
		scoreService:  scores,
		feed:          changes,
		logger:        logger,
		players:       collection.New(domain.TablePlayers, domain.PlayerID),
		games:         collection.New(domain.TableGames, domain.GameID),
		scores:        collection.New(domain.TableScores, domain.ScoreID),
		loading:       make(map[domain.Table]bool),
		pending:       make(map[domain.Table][]pendingChange),
		deleted:       make(map[domain.Table]map[string]struct{}),
		broadcaster:   nopBroadcaster{},
	}
}

// pendingChange is a change held back while its table loads. confirmed marks
// a created row returned by a mutation rather than delivered by the feed.
type pendingChange struct {
	ev        domain.ChangeEvent
	confirmed bool
}

// SetBroadcaster routes applied feed changes and notices to b
func (s *Store) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b == nil {
		b = nopBroadcaster{}
	}
	s.broadcaster = b
}

// Initialize subscribes to the three change feeds and then loads the three
// collections concurrently. Changes that arrive while a table is loading are
// replayed on top of its snapshot. A failed fetch leaves its collection
// empty and is reported as a *domain.LoadError once the others finished.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.initialized = true
	for _, table := range domain.Tables {
		s.loading[table] = true
	}
	s.mu.Unlock()

	for _, table := range domain.Tables {
		table := table
		sub, err := s.feed.Subscribe(ctx, table, func(ev domain.ChangeEvent) {
			s.handleChange(table, ev)
		})
		if err != nil {
			s.abortInitialize()
			err = fmt.Errorf("subscribing to %s changes: %w", table, err)
			s.notify(domain.Failure("Error loading data", err.Error()))
			return err
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}

	var (
		failMu   sync.Mutex
		failures = make(map[domain.Table]error)
	)
	record := func(table domain.Table, err error) {
		failMu.Lock()
		failures[table] = err
		failMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, table := range domain.Tables {
		table := table
		g.Go(func() error {
			if err := s.loadTable(gctx, table); err != nil {
				record(table, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	s.loaded = true
	counts := []any{"players", s.players.Len(), "games", s.games.Len(), "scores", s.scores.Len()}
	s.mu.Unlock()

	if len(failures) > 0 {
		loadErr := &domain.LoadError{Failures: failures}
		s.logger.Error("initial load failed", "error", loadErr)
		s.notify(domain.Failure("Error loading data", loadErr.Error()))
		return loadErr
	}

	s.logger.Info("store initialized", counts...)
	return nil
}

// Resync reloads one table from the remote store, replaying the changes that
// arrive meanwhile on top of the fresh snapshot. It repairs the mirror after
// the feed may have dropped notifications. A table that is already loading is
// left to the load in flight.
func (s *Store) Resync(ctx context.Context, table domain.Table) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownTable, table)
	}
	s.mu.Lock()
	if s.loading[table] {
		s.mu.Unlock()
		return nil
	}
	s.loading[table] = true
	s.mu.Unlock()

	if err := s.loadTable(ctx, table); err != nil {
		s.logger.Error("table resync failed", "table", table, "error", err)
		s.notify(domain.Failure("Error loading data", err.Error()))
		return err
	}
	s.logger.Info("table resynchronized", "table", table)
	return nil
}

// loadTable fetches a table and installs it as the collection's contents. The
// table must already be marked as loading.
func (s *Store) loadTable(ctx context.Context, table domain.Table) error {
	var (
		install func()
		err     error
	)
	switch table {
	case domain.TablePlayers:
		var players []domain.Player
		players, err = s.playerService.FetchAll(ctx)
		install = func() { s.players.Reset(players) }
	case domain.TableGames:
		var games []domain.Game
		games, err = s.gameService.FetchAll(ctx)
		install = func() { s.games.Reset(games) }
	case domain.TableScores:
		var scores []domain.Score
		scores, err = s.scoreService.FetchAll(ctx)
		install = func() { s.scores.Reset(scores) }
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownTable, table)
	}

	s.mu.Lock()
	s.finishLoad(table, err, install)
	s.mu.Unlock()
	return err
}

// abortInitialize undoes a partial Initialize so it can be retried
func (s *Store) abortInitialize() {
	_ = s.releaseSubscriptions()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range domain.Tables {
		s.loading[table] = false
	}
	clear(s.pending)
	s.initialized = false
}

// finishLoad installs a table's snapshot and replays the changes buffered
// while it loaded. Must be called with s.mu held.
func (s *Store) finishLoad(table domain.Table, err error, install func()) {
	if err == nil && install != nil {
		install()
	}
	for _, pc := range s.pending[table] {
		if applyErr := s.applyLocked(pc.ev, pc.confirmed); applyErr != nil {
			s.logger.Warn("dropping buffered change", "table", table, "error", applyErr)
		}
	}
	delete(s.pending, table)
	s.loading[table] = false
}

// Loaded reports whether the initial load has completed
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Close releases the feed subscriptions. Calling it twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.releaseSubscriptions()
}

func (s *Store) releaseSubscriptions() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Players returns a snapshot of the players collection
func (s *Store) Players() []domain.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players.Items()
}

// Games returns a snapshot of the games collection
func (s *Store) Games() []domain.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games.Items()
}

// Scores returns a snapshot of the scores collection
func (s *Store) Scores() []domain.Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores.Items()
}

// Player looks a player up by id
func (s *Store) Player(id string) (domain.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players.Get(id)
}

// Game looks a game up by id
func (s *Store) Game(id string) (domain.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games.Get(id)
}

// AddPlayer creates a player remotely and mirrors the created row
func (s *Store) AddPlayer(ctx context.Context, name string, avatarURL *string) (domain.Player, error) {
	const failTitle = "Error adding player"
	name, err := s.checkMutation(ctx, failTitle, name)
	if err != nil {
		return domain.Player{}, err
	}

	p, err := s.playerService.Create(ctx, name, avatarURL)
	if err != nil {
		return domain.Player{}, s.fail(failTitle, err)
	}
	s.confirmCreated(domain.TablePlayers, p)

	s.logger.Info("player added", "player_id", p.ID, "name", p.Name)
	s.notify(domain.Success("Player added", fmt.Sprintf("%s has been added to the player list.", p.Name)))
	return p, nil
}

// AddGame creates a game remotely and mirrors the created row
func (s *Store) AddGame(ctx context.Context, name string) (domain.Game, error) {
	const failTitle = "Error adding game"
	name, err := s.checkMutation(ctx, failTitle, name)
	if err != nil {
		return domain.Game{}, err
	}

	g, err := s.gameService.Create(ctx, name)
	if err != nil {
		return domain.Game{}, s.fail(failTitle, err)
	}
	s.confirmCreated(domain.TableGames, g)

	s.logger.Info("game added", "game_id", g.ID, "name", g.Name)
	s.notify(domain.Success("Game added", fmt.Sprintf("%s has been added to the games list.", g.Name)))
	return g, nil
}

// AddScore records a score remotely and mirrors the created row
func (s *Store) AddScore(ctx context.Context, gameID, playerID string, value float64) (domain.Score, error) {
	const failTitle = "Error adding score"
	if err := s.requireSession(ctx, failTitle); err != nil {
		return domain.Score{}, err
	}

	score, err := s.scoreService.Create(ctx, gameID, playerID, value)
	if err != nil {
		return domain.Score{}, s.fail(failTitle, err)
	}
	s.confirmCreated(domain.TableScores, score)

	s.logger.Info("score added", "score_id", score.ID, "game_id", gameID, "player_id", playerID, "value", value)
	s.notify(domain.Success("Score added", fmt.Sprintf("New score of %s has been recorded.", formatValue(value))))
	return score, nil
}

// UpdatePlayer renames a player. A nil avatarURL keeps the current avatar.
// The mirror picks the new row up from the change feed.
func (s *Store) UpdatePlayer(ctx context.Context, id, name string, avatarURL *string) (domain.Player, error) {
	const failTitle = "Error updating player"
	name, err := s.checkMutation(ctx, failTitle, name)
	if err != nil {
		return domain.Player{}, err
	}

	p, err := s.playerService.Update(ctx, id, name, avatarURL)
	if err != nil {
		return domain.Player{}, s.fail(failTitle, err)
	}

	s.logger.Info("player updated", "player_id", p.ID, "name", p.Name)
	s.notify(domain.Success("Player updated", fmt.Sprintf("Player name has been updated to %s.", p.Name)))
	return p, nil
}

// UpdateScore changes the value of a score. The mirror picks the new value up
// from the change feed.
func (s *Store) UpdateScore(ctx context.Context, id string, value float64) (domain.Score, error) {
	const failTitle = "Error updating score"
	if err := s.requireSession(ctx, failTitle); err != nil {
		return domain.Score{}, err
	}

	score, err := s.scoreService.Update(ctx, id, value)
	if err != nil {
		return domain.Score{}, s.fail(failTitle, err)
	}

	s.logger.Info("score updated", "score_id", score.ID, "value", value)
	s.notify(domain.Success("Score updated", fmt.Sprintf("Score has been updated to %s.", formatValue(value))))
	return score, nil
}

// DeletePlayer deletes a player and drops its scores from the mirror
func (s *Store) DeletePlayer(ctx context.Context, id string) error {
	const failTitle = "Error deleting player"
	if err := s.requireSession(ctx, failTitle); err != nil {
		return err
	}

	if err := s.playerService.Delete(ctx, id); err != nil {
		return s.fail(failTitle, err)
	}
	s.confirm(domain.DeleteChange(domain.TablePlayers, id))

	s.logger.Info("player deleted", "player_id", id)
	s.notify(domain.Success("Player deleted", "Player and associated scores have been removed."))
	return nil
}

// DeleteGame deletes a game and drops its scores from the mirror
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	const failTitle = "Error deleting game"
	if err := s.requireSession(ctx, failTitle); err != nil {
		return err
	}

	if err := s.gameService.Delete(ctx, id); err != nil {
		return s.fail(failTitle, err)
	}
	s.confirm(domain.DeleteChange(domain.TableGames, id))

	s.logger.Info("game deleted", "game_id", id)
	s.notify(domain.Success("Game deleted", "Game and associated scores have been removed."))
	return nil
}

// DeleteScore deletes a score
func (s *Store) DeleteScore(ctx context.Context, id string) error {
	const failTitle = "Error deleting score"
	if err := s.requireSession(ctx, failTitle); err != nil {
		return err
	}

	if err := s.scoreService.Delete(ctx, id); err != nil {
		return s.fail(failTitle, err)
	}
	s.confirm(domain.DeleteChange(domain.TableScores, id))

	s.logger.Info("score deleted", "score_id", id)
	s.notify(domain.Success("Score deleted", "Score has been removed."))
	return nil
}

// requireSession rejects callers without an authenticated session before
// any remote call is made
func (s *Store) requireSession(ctx context.Context, failTitle string) error {
	if auth.FromContext(ctx).IsAuthenticated() {
		return nil
	}
	s.logger.Warn("mutation rejected without session", "operation", failTitle)
	s.notify(domain.Failure(failTitle, "You must be logged in to make changes."))
	return domain.ErrAuthRequired
}

// checkMutation validates the session and a name, returning the trimmed name
func (s *Store) checkMutation(ctx context.Context, failTitle, name string) (string, error) {
	if err := s.requireSession(ctx, failTitle); err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		s.notify(domain.Failure(failTitle, domain.ErrInvalidName.Error()))
		return "", domain.ErrInvalidName
	}
	return name, nil
}

func (s *Store) fail(title string, err error) error {
	s.logger.Error("store mutation failed", "operation", title, "error", err)
	s.notify(domain.Failure(title, err.Error()))
	return err
}

// confirmCreated appends a row the remote store created. The feed may already
// have delivered a newer version of it, or its delete, so the row is only
// appended when the id is neither present nor deleted.
func (s *Store) confirmCreated(table domain.Table, row any) {
	ev, err := domain.NewChange(domain.EventInsert, table, row)
	if err != nil {
		s.logger.Error("failed to mirror created row", "table", table, "error", err)
		return
	}
	if err := s.receive(ev, true); err != nil {
		s.logger.Error("failed to mirror created row", "table", table, "error", err)
	}
}

func (s *Store) confirm(ev domain.ChangeEvent) {
	if err := s.receive(ev, false); err != nil {
		s.logger.Error("failed to mirror confirmed change", "table", ev.Table, "error", err)
	}
}

// handleChange is the feed handler for table
func (s *Store) handleChange(table domain.Table, ev domain.ChangeEvent) {
	if ev.Table != table {
		s.logger.Warn("change delivered on wrong table", "subscription", table, "table", ev.Table)
		return
	}
	if err := s.receive(ev, false); err != nil {
		s.logger.Warn("dropping change", "table", table, "type", ev.Type, "error", err)
		return
	}

	s.mu.RLock()
	b := s.broadcaster
	s.mu.RUnlock()
	b.BroadcastChange(ev)
}

// receive applies ev, or buffers it while its table is loading
func (s *Store) receive(ev domain.ChangeEvent, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading[ev.Table] {
		s.pending[ev.Table] = append(s.pending[ev.Table], pendingChange{ev: ev, confirmed: confirmed})
		return nil
	}
	return s.applyLocked(ev, confirmed)
}

// applyLocked mutates the matching collection. Player and game deletes also
// drop the scores that referenced them. Every deleted id is remembered so a
// late confirmation cannot bring it back. Must be called with s.mu held.
func (s *Store) applyLocked(ev domain.ChangeEvent, confirmed bool) error {
	if confirmed && ev.Type == domain.EventInsert {
		switch ev.Table {
		case domain.TablePlayers:
			return appendConfirmed(s.players, domain.PlayerID, s.deleted[ev.Table], ev)
		case domain.TableGames:
			return appendConfirmed(s.games, domain.GameID, s.deleted[ev.Table], ev)
		case domain.TableScores:
			return appendConfirmed(s.scores, domain.ScoreID, s.deleted[ev.Table], ev)
		}
	}

	switch ev.Table {
	case domain.TablePlayers:
		if err := s.players.Apply(ev); err != nil {
			return err
		}
		if ev.Type == domain.EventDelete {
			id := ev.OldID()
			s.tombstone(domain.TablePlayers, id)
			s.tombstone(domain.TableScores, s.scores.RemoveWhere(func(sc domain.Score) bool { return sc.PlayerID == id })...)
		}
	case domain.TableGames:
		if err := s.games.Apply(ev); err != nil {
			return err
		}
		if ev.Type == domain.EventDelete {
			id := ev.OldID()
			s.tombstone(domain.TableGames, id)
			s.tombstone(domain.TableScores, s.scores.RemoveWhere(func(sc domain.Score) bool { return sc.GameID == id })...)
		}
	case domain.TableScores:
		if err := s.scores.Apply(ev); err != nil {
			return err
		}
		if ev.Type == domain.EventDelete {
			s.tombstone(domain.TableScores, ev.OldID())
		}
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownTable, ev.Table)
	}
	return nil
}

// tombstone records deleted ids. Ids are uuids and never come back.
func (s *Store) tombstone(table domain.Table, ids ...string) {
	if len(ids) == 0 {
		return
	}
	if s.deleted[table] == nil {
		s.deleted[table] = make(map[string]struct{})
	}
	for _, id := range ids {
		s.deleted[table][id] = struct{}{}
	}
}

// appendConfirmed adds a created row unless its id is already mirrored or
// was deleted in the meantime
func appendConfirmed[T any](c *collection.Collection[T], idOf func(T) string, deleted map[string]struct{}, ev domain.ChangeEvent) error {
	row, err := domain.DecodeRow[T](ev)
	if err != nil {
		return err
	}
	id := idOf(row)
	if id == "" {
		return fmt.Errorf("%w: %s row without id", domain.ErrInvalidChange, ev.Table)
	}
	if _, gone := deleted[id]; gone {
		return nil
	}
	c.Insert(row)
	return nil
}

func (s *Store) notify(n domain.Notice) {
	s.mu.RLock()
	b := s.broadcaster
	s.mu.RUnlock()
	b.BroadcastNotice(n)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
