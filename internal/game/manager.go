// Package game runs sessions and play-throughs on top of the scoring engine.
package game

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/terra-clan/mot-engine/internal/catalog"
	"github.com/terra-clan/mot-engine/internal/live"
	"github.com/terra-clan/mot-engine/internal/metrics"
	"github.com/terra-clan/mot-engine/internal/models"
	"github.com/terra-clan/mot-engine/internal/pathstore"
	"github.com/terra-clan/mot-engine/internal/scoring"
	"github.com/terra-clan/mot-engine/internal/storage"
)

// Common errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session is closed")
	ErrEditionNotFound  = errors.New("edition not found")
	ErrPathNotFound     = errors.New("player not found")
	ErrInvalidUsername  = errors.New("invalid username")
	ErrStepNotFound     = errors.New("step not found")
	ErrCodeSpaceExhaust = errors.New("could not allocate a unique session code")
)

const (
	maxUsernameLength = 64
	codeAttempts      = 8
	lockStripes       = 64
	defaultBoardLimit = 50
	maxBoardLimit     = 500
	defaultSessionTTL = 4 * time.Hour
)

// Options tunes the manager; zero values fall back to defaults
type Options struct {
	DefaultEdition   string
	SessionTTL       time.Duration
	CodeLength       int
	LeaderboardLimit int
	CacheSize        int
	CacheTTL         time.Duration
}

// Manager coordinates sessions, player paths and leaderboards
type Manager struct {
	editions *catalog.Loader
	paths    pathstore.Store
	repo     storage.Repository
	notifier live.Notifier
	metrics  *metrics.Metrics
	opts     Options

	boards *boardCache
	locks  [lockStripes]sync.Mutex
}

// NewManager creates a Manager. notifier and m may be nil.
func NewManager(
	editions *catalog.Loader,
	paths pathstore.Store,
	repo storage.Repository,
	notifier live.Notifier,
	m *metrics.Metrics,
	opts Options,
) *Manager {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = models.DefaultSessionCodeLength
	}
	if opts.LeaderboardLimit <= 0 {
		opts.LeaderboardLimit = defaultBoardLimit
	}

	return &Manager{
		editions: editions,
		paths:    paths,
		repo:     repo,
		notifier: notifier,
		metrics:  m,
		opts:     opts,
		boards:   newBoardCache(opts.CacheSize, opts.CacheTTL),
	}
}

// Ping checks the database and the path store
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := m.paths.HealthCheck(ctx); err != nil {
		return fmt.Errorf("path store ping failed: %w", err)
	}
	return nil
}

// --- Editions ---

// Editions returns every loaded edition
func (m *Manager) Editions() []*catalog.Edition {
	return m.editions.List()
}

// Edition returns a loaded edition by ID
func (m *Manager) Edition(id string) (*catalog.Edition, error) {
	e := m.editions.Get(id)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrEditionNotFound, id)
	}
	return e, nil
}

// EditionStep returns a step of an edition as shown to players
func (m *Manager) EditionStep(id string, step models.Step) (*models.StepView, error) {
	e, err := m.Edition(id)
	if err != nil {
		return nil, err
	}
	view, ok := e.StepView(step)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, step)
	}
	return view, nil
}

// --- Sessions ---

// CreateSession opens a session under a fresh join code
func (m *Manager) CreateSession(ctx context.Context, req models.CreateSessionRequest, createdBy string) (*models.GameSession, error) {
	editionID := req.Edition
	if editionID == "" {
		editionID = m.opts.DefaultEdition
	}
	if _, err := m.Edition(editionID); err != nil {
		return nil, err
	}

	ttl := m.opts.SessionTTL
	if req.TTL > 0 {
		ttl = time.Duration(req.TTL) * time.Second
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := models.GenerateSessionCode(m.opts.CodeLength)
		if err != nil {
			return nil, err
		}

		s := &models.GameSession{
			ID:        uuid.New().String(),
			Code:      code,
			Edition:   editionID,
			Status:    models.SessionOpen,
			CreatedBy: createdBy,
			CreatedAt: now,
			ExpiresAt: &expiresAt,
		}

		err = m.repo.CreateSession(ctx, s)
		if errors.Is(err, storage.ErrDuplicateCode) {
			slog.Debug("session code collision, retrying", "code", code, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}

		m.metrics.SessionCreated()
		slog.Info("session created",
			"code", code,
			"edition", editionID,
			"created_by", createdBy,
			"expires_at", expiresAt,
		)
		return s, nil
	}

	return nil, ErrCodeSpaceExhaust
}

// GetSession returns a session by its (case-insensitive) code
func (m *Manager) GetSession(ctx context.Context, code string) (*models.GameSession, error) {
	code = models.NormalizeSessionCode(code)
	s, err := m.repo.GetSessionByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, code)
	}
	return s, nil
}

// ListSessions returns sessions, newest first
func (m *Manager) ListSessions(ctx context.Context, status string, limit, offset int) ([]*models.GameSession, error) {
	sessions, err := m.repo.ListSessions(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*models.GameSession{}
	}
	return sessions, nil
}

// CloseSession stops a session from accepting new players.
// Players already in it may finish their play-through.
func (m *Manager) CloseSession(ctx context.Context, code string) error {
	s, err := m.GetSession(ctx, code)
	if err != nil {
		return err
	}
	if s.Status == models.SessionClosed {
		return fmt.Errorf("%w: %s", ErrSessionClosed, s.Code)
	}
	if err := m.repo.CloseSession(ctx, s.Code, time.Now().UTC()); err != nil {
		return err
	}
	slog.Info("session closed", "code", s.Code, "players", s.PlayerCount)
	return nil
}

// CloseExpiredSessions closes every open session past its TTL
func (m *Manager) CloseExpiredSessions(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := m.repo.GetExpiredSessions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to get expired sessions: %w", err)
	}

	closed := 0
	for _, s := range expired {
		if err := m.repo.CloseSession(ctx, s.Code, now); err != nil {
			slog.Error("failed to close expired session", "code", s.Code, "error", err)
			continue
		}
		slog.Info("expired session closed", "code", s.Code, "expired_at", s.ExpiresAt)
		closed++
	}
	return closed, nil
}

// SweepPaths drops player paths idle for longer than maxIdle
func (m *Manager) SweepPaths(ctx context.Context, maxIdle time.Duration) (int, error) {
	return m.paths.Sweep(ctx, time.Now().UTC().Add(-maxIdle))
}

// --- Players ---

// Join enters a player into an open session. A username already playing in
// the session resumes its path instead of starting over, even after the
// session closed.
func (m *Manager) Join(ctx context.Context, code, username string) (*models.JoinResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, fmt.Errorf("%w: must be 1-%d characters", ErrInvalidUsername, maxUsernameLength)
	}

	s, err := m.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}

	existing, err := m.paths.Lookup(ctx, s.Code, username)
	if err == nil {
		slog.Info("player resumed", "code", s.Code, "username", existing.Username, "next_step", existing.NextStep)
		return &models.JoinResponse{Token: existing.ID, Resumed: true, Session: s, Path: existing}, nil
	}
	if !errors.Is(err, pathstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up player: %w", err)
	}

	if !s.IsOpen() {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, s.Code)
	}

	path := models.NewPlayerPath(uuid.New().String(), s.Code, username, s.Edition)
	if err := m.paths.Create(ctx, path); err != nil {
		if errors.Is(err, pathstore.ErrExists) {
			// Lost a race with a concurrent join of the same name
			existing, lerr := m.paths.Lookup(ctx, s.Code, username)
			if lerr != nil {
				return nil, fmt.Errorf("failed to look up player: %w", lerr)
			}
			return &models.JoinResponse{Token: existing.ID, Resumed: true, Session: s, Path: existing}, nil
		}
		return nil, fmt.Errorf("failed to create player path: %w", err)
	}

	if err := m.repo.IncrementPlayerCount(ctx, s.Code); err != nil {
		slog.Warn("failed to update player count", "code", s.Code, "error", err)
	} else {
		s.PlayerCount++
	}
	m.metrics.PlayerJoined()

	slog.Info("player joined", "code", s.Code, "username", username, "path_id", path.ID)
	return &models.JoinResponse{Token: path.ID, Session: s, Path: path}, nil
}

// Path returns the player's current path
func (m *Manager) Path(ctx context.Context, token string) (*models.PlayerPath, error) {
	path, err := m.paths.Get(ctx, token)
	if err != nil {
		if errors.Is(err, pathstore.ErrNotFound) {
			return nil, ErrPathNotFound
		}
		return nil, fmt.Errorf("failed to get path: %w", err)
	}
	return path, nil
}

// StepChoices returns the choices offered at a step of the player's edition
func (m *Manager) StepChoices(ctx context.Context, token string, step models.Step) (*models.StepView, error) {
	path, err := m.Path(ctx, token)
	if err != nil {
		return nil, err
	}
	return m.EditionStep(path.Edition, step)
}

// Submit scores one step. Completing step 5 records the result on the
// leaderboard and notifies live subscribers.
func (m *Manager) Submit(ctx context.Context, token string, step models.Step, sub models.StepSubmission) (*models.StepOutcome, error) {
	unlock := m.lock(token)
	defer unlock()

	path, err := m.Path(ctx, token)
	if err != nil {
		return nil, err
	}
	engine, err := m.engine(path)
	if err != nil {
		return nil, err
	}

	outcome, err := engine.Submit(path, step, sub)
	if err != nil {
		m.metrics.StepRejected(step.String())
		slog.Debug("step rejected", "path_id", token, "step", step.String(), "error", err)
		return nil, err
	}

	if outcome.Result != nil {
		if err := m.recordResult(ctx, outcome.Result); err != nil {
			return nil, err
		}
	}

	if err := m.paths.Save(ctx, path); err != nil {
		return nil, fmt.Errorf("failed to save path: %w", err)
	}

	m.metrics.StepAccepted(step.String(), outcome.Stars)
	slog.Info("step scored",
		"code", path.SessionCode,
		"username", path.Username,
		"step", step.String(),
		"stars", outcome.Stars,
		"total", path.TotalScore,
	)
	return outcome, nil
}

// recordResult persists a final result and announces the leaderboard change.
// The row is keyed by path, so a step-5 retry after a failed path save keeps
// the first row.
func (m *Manager) recordResult(ctx context.Context, result *models.Result) error {
	rec := models.ScoreRecordFromResult(result.PathID, result)
	if err := m.repo.SaveScore(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrScoreExists) {
			slog.Info("result already recorded", "path_id", result.PathID)
			return nil
		}
		return fmt.Errorf("failed to save score: %w", err)
	}

	m.boards.purge()
	m.metrics.GameCompleted(result.OverallTier)

	if m.notifier != nil && result.SessionCode != "" {
		if err := m.notifier.Notify(ctx, result.SessionCode); err != nil {
			slog.Warn("failed to notify leaderboard change", "code", result.SessionCode, "error", err)
		}
	}

	slog.Info("game completed",
		"code", result.SessionCode,
		"username", result.Username,
		"total", result.TotalScore,
		"tier", result.OverallTier,
	)
	return nil
}

// InvalidateBoards drops cached leaderboards, e.g. after another instance recorded a score
func (m *Manager) InvalidateBoards() {
	m.boards.purge()
}

// Score returns the running score over played steps
func (m *Manager) Score(ctx context.Context, token string) (*models.ScoreSummary, error) {
	path, err := m.Path(ctx, token)
	if err != nil {
		return nil, err
	}
	engine, err := m.engine(path)
	if err != nil {
		return nil, err
	}
	summary := engine.CurrentScore(path)
	return &summary, nil
}

// Result returns the final record of a completed path
func (m *Manager) Result(ctx context.Context, token string) (*models.Result, error) {
	path, err := m.Path(ctx, token)
	if err != nil {
		return nil, err
	}
	engine, err := m.engine(path)
	if err != nil {
		return nil, err
	}
	return engine.Result(path)
}

func (m *Manager) engine(path *models.PlayerPath) (*scoring.Engine, error) {
	e, err := m.Edition(path.Edition)
	if err != nil {
		return nil, err
	}
	return scoring.NewEngine(e), nil
}

// lock serializes submissions to the same path within this process
func (m *Manager) lock(token string) func() {
	h := fnv.New32a()
	h.Write([]byte(token))
	mu := &m.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// --- Leaderboards ---

// SessionLeaderboard ranks the players of a session. The returned slice is shared; do not modify it.
func (m *Manager) SessionLeaderboard(ctx context.Context, code string, limit int) ([]models.LeaderboardEntry, error) {
	s, err := m.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	limit = m.boardLimit(limit)

	key := fmt.Sprintf("session:%s:%d", s.Code, limit)
	if entries, ok := m.boards.get(key); ok {
		return entries, nil
	}

	entries, err := m.repo.SessionLeaderboard(ctx, s.Code, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get session leaderboard: %w", err)
	}
	m.boards.put(key, entries)
	return entries, nil
}

// GlobalLeaderboard ranks players across sessions; an empty edition spans all editions
func (m *Manager) GlobalLeaderboard(ctx context.Context, edition string, limit int) ([]models.LeaderboardEntry, error) {
	if edition != "" {
		if _, err := m.Edition(edition); err != nil {
			return nil, err
		}
	}
	limit = m.boardLimit(limit)

	key := fmt.Sprintf("global:%s:%d", edition, limit)
	if entries, ok := m.boards.get(key); ok {
		return entries, nil
	}

	entries, err := m.repo.GlobalLeaderboard(ctx, edition, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get global leaderboard: %w", err)
	}
	m.boards.put(key, entries)
	return entries, nil
}

// SessionStats summarizes the completions of a session
func (m *Manager) SessionStats(ctx context.Context, code string) (*models.SessionStats, error) {
	s, err := m.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	stats, err := m.repo.SessionStats(ctx, s.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}
	return stats, nil
}

func (m *Manager) boardLimit(limit int) int {
	if limit <= 0 {
		return m.opts.LeaderboardLimit
	}
	if limit > maxBoardLimit {
		return maxBoardLimit
	}
	return limit
}
