package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/terra-clan/mot-engine/internal/models"
)

// sqliteTimeLayout is fixed-width so stored timestamps sort as text
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository implements Repository on an embedded SQLite file.
// Used for single-instance deployments, local development and tests.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens or creates the database at path and applies the schema.
// Pass ":memory:" for a throwaway database.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	r := &SQLiteRepository{db: db}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS game_sessions (
			id           TEXT PRIMARY KEY,
			code         TEXT NOT NULL UNIQUE,
			edition      TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'open',
			player_count INTEGER NOT NULL DEFAULT 0,
			created_by   TEXT,
			created_at   TEXT NOT NULL,
			expires_at   TEXT,
			closed_at    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_status_expires ON game_sessions (status, expires_at)`,
		`CREATE TABLE IF NOT EXISTS scores (
			id           TEXT PRIMARY KEY,
			username     TEXT NOT NULL,
			session_code TEXT,
			edition      TEXT NOT NULL,
			total_score  INTEGER NOT NULL CHECK (total_score BETWEEN 0 AND 15),
			tier         INTEGER NOT NULL CHECK (tier BETWEEN 1 AND 3),
			step_scores  TEXT NOT NULL DEFAULT '{}',
			completed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_session ON scores (session_code, total_score DESC, completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_edition ON scores (edition, total_score DESC, completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_username ON scores (username)`,
		`CREATE TABLE IF NOT EXISTS api_clients (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			name         TEXT NOT NULL,
			api_key      TEXT NOT NULL UNIQUE,
			is_active    INTEGER NOT NULL DEFAULT 1,
			permissions  TEXT NOT NULL DEFAULT '[]',
			created_at   TEXT NOT NULL,
			last_used_at TEXT
		)`,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return tx.Commit()
}

// Ping checks database connectivity
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// --- Game sessions ---

// CreateSession inserts a new game session
func (r *SQLiteRepository) CreateSession(ctx context.Context, s *models.GameSession) error {
	query := `
		INSERT INTO game_sessions (id, code, edition, status, player_count, created_by, created_at, expires_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.Code,
		s.Edition,
		string(s.Status),
		s.PlayerCount,
		nullString(s.CreatedBy),
		formatTime(s.CreatedAt),
		formatNullTime(s.ExpiresAt),
		formatNullTime(s.ClosedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionByCode retrieves a session by its join code
func (r *SQLiteRepository) GetSessionByCode(ctx context.Context, code string) (*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE code = ?`

	s, err := scanSQLiteSession(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions with optional status filter, newest first
func (r *SQLiteRepository) ListSessions(ctx context.Context, status string, limit, offset int) ([]*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE 1=1`
	args := make([]interface{}, 0)

	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC"

	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	return collectSQLiteSessions(rows)
}

// CloseSession marks an open session closed
func (r *SQLiteRepository) CloseSession(ctx context.Context, code string, at time.Time) error {
	query := `UPDATE game_sessions SET status = ?, closed_at = ? WHERE code = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query, string(models.SessionClosed), formatTime(at), code, string(models.SessionOpen))
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("open session not found: %s", code)
	}
	return nil
}

// IncrementPlayerCount records one more player joining
func (r *SQLiteRepository) IncrementPlayerCount(ctx context.Context, code string) error {
	query := `UPDATE game_sessions SET player_count = player_count + 1 WHERE code = ?`

	if _, err := r.db.ExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("failed to update player count: %w", err)
	}
	return nil
}

// GetExpiredSessions returns open sessions past their expiry
func (r *SQLiteRepository) GetExpiredSessions(ctx context.Context, now time.Time) ([]*models.GameSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM game_sessions
		WHERE status = ?
		  AND expires_at IS NOT NULL
		  AND expires_at < ?
		ORDER BY expires_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, string(models.SessionOpen), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to get expired sessions: %w", err)
	}
	defer rows.Close()

	return collectSQLiteSessions(rows)
}

func collectSQLiteSessions(rows *sql.Rows) ([]*models.GameSession, error) {
	var sessions []*models.GameSession
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteSession(row rowScanner) (*models.GameSession, error) {
	var s models.GameSession
	var status, createdAt string
	var createdBy, expiresAt, closedAt sql.NullString

	err := row.Scan(
		&s.ID,
		&s.Code,
		&s.Edition,
		&status,
		&s.PlayerCount,
		&createdBy,
		&createdAt,
		&expiresAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	s.CreatedBy = createdBy.String
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, err
	}
	if s.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- Scores ---

// SaveScore appends a final result. A repeated ID leaves the first row in place.
func (r *SQLiteRepository) SaveScore(ctx context.Context, rec *models.ScoreRecord) error {
	stepsJSON, err := json.Marshal(rec.StepScores)
	if err != nil {
		return fmt.Errorf("failed to marshal step scores: %w", err)
	}

	query := `
		INSERT INTO scores (id, username, session_code, edition, total_score, tier, step_scores, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Username,
		nullString(rec.SessionCode),
		rec.Edition,
		rec.TotalScore,
		rec.Tier,
		string(stepsJSON),
		formatTime(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrScoreExists, rec.ID)
	}
	return nil
}

// SessionLeaderboard ranks the players of one session
func (r *SQLiteRepository) SessionLeaderboard(ctx context.Context, code string, limit int) ([]models.LeaderboardEntry, error) {
	return r.leaderboard(ctx, "session_code = ?", code, limit)
}

// GlobalLeaderboard ranks players across all sessions of an edition
func (r *SQLiteRepository) GlobalLeaderboard(ctx context.Context, edition string, limit int) ([]models.LeaderboardEntry, error) {
	if edition == "" {
		return r.leaderboard(ctx, "? = ''", "", limit)
	}
	return r.leaderboard(ctx, "edition = ?", edition, limit)
}

func (r *SQLiteRepository) leaderboard(ctx context.Context, where, arg string, limit int) ([]models.LeaderboardEntry, error) {
	query := `
		SELECT username, total_score, tier, step_scores, completed_at
		FROM (
			SELECT username, total_score, tier, step_scores, completed_at,
			       ROW_NUMBER() OVER (PARTITION BY username ORDER BY total_score DESC, completed_at ASC) AS rn
			FROM scores
			WHERE ` + where + `
		)
		WHERE rn = 1
		ORDER BY total_score DESC, completed_at ASC, username ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, arg, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LeaderboardEntry, 0)
	for rows.Next() {
		var e models.LeaderboardEntry
		var stepsJSON, completedAt string
		if err := rows.Scan(&e.Username, &e.TotalScore, &e.Tier, &stepsJSON, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		if err := json.Unmarshal([]byte(stepsJSON), &e.StepScores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step scores: %w", err)
		}
		if e.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	models.RankEntries(entries)
	return entries, nil
}

// PlayerBest returns a player's best result for an edition
func (r *SQLiteRepository) PlayerBest(ctx context.Context, username, edition string) (*models.ScoreRecord, error) {
	query := `
		SELECT id, username, session_code, edition, total_score, tier, step_scores, completed_at
		FROM scores
		WHERE username = ? AND edition = ?
		ORDER BY total_score DESC, completed_at ASC
		LIMIT 1
	`

	var rec models.ScoreRecord
	var sessionCode sql.NullString
	var stepsJSON, completedAt string

	err := r.db.QueryRowContext(ctx, query, username, edition).Scan(
		&rec.ID,
		&rec.Username,
		&sessionCode,
		&rec.Edition,
		&rec.TotalScore,
		&rec.Tier,
		&stepsJSON,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get player best: %w", err)
	}

	rec.SessionCode = sessionCode.String
	if err := json.Unmarshal([]byte(stepsJSON), &rec.StepScores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step scores: %w", err)
	}
	if rec.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SessionStats summarizes completions within a session
func (r *SQLiteRepository) SessionStats(ctx context.Context, code string) (*models.SessionStats, error) {
	stats := &models.SessionStats{SessionCode: code, TierDistribution: make(map[int]int)}

	err := r.db.QueryRowContext(ctx, `SELECT player_count FROM game_sessions WHERE code = ?`, code).Scan(&stats.Players)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get player count: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(total_score), 0), COALESCE(MAX(total_score), 0), COALESCE(MIN(total_score), 0)
		FROM scores
		WHERE session_code = ?
	`, code).Scan(&stats.Completed, &stats.AverageScore, &stats.BestScore, &stats.WorstScore)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate scores: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM scores WHERE session_code = ? GROUP BY tier`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get tier distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tier, count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}
		stats.TierDistribution[tier] = count
	}

	return stats, rows.Err()
}

// --- API Clients ---

// GetClientByApiKey retrieves an API client by its key
func (r *SQLiteRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients
		WHERE api_key = ?
	`

	var client models.ApiClient
	var createdAt, permissionsJSON string
	var lastUsedAt sql.NullString

	err := r.db.QueryRowContext(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&createdAt,
		&lastUsedAt,
		&permissionsJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if client.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if client.LastUsedAt, err = parseNullTime(lastUsedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(permissionsJSON), &client.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *SQLiteRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	query := `UPDATE api_clients SET last_used_at = ? WHERE api_key = ?`

	if _, err := r.db.ExecContext(ctx, query, formatTime(time.Now()), apiKey); err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}

// EnsureClient creates or refreshes a facilitator key
func (r *SQLiteRepository) EnsureClient(ctx context.Context, name, apiKey string, permissions []string) error {
	permissionsJSON, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO api_clients (name, api_key, is_active, permissions, created_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (api_key) DO UPDATE SET name = excluded.name, permissions = excluded.permissions, is_active = 1
	`

	if _, err := r.db.ExecContext(ctx, query, name, apiKey, string(permissionsJSON), formatTime(time.Now())); err != nil {
		return fmt.Errorf("failed to ensure api client: %w", err)
	}
	return nil
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
