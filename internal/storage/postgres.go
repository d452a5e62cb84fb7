package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/mot-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Game sessions ---

const sessionColumns = `id, code, edition, status, player_count, created_by, created_at, expires_at, closed_at`

// CreateSession inserts a new game session
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.GameSession) error {
	query := `
		INSERT INTO game_sessions (id, code, edition, status, player_count, created_by, created_at, expires_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Code,
		s.Edition,
		string(s.Status),
		s.PlayerCount,
		nullString(s.CreatedBy),
		s.CreatedAt,
		nullTime(s.ExpiresAt),
		nullTime(s.ClosedAt),
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSessionByCode retrieves a session by its join code
func (r *PostgresRepository) GetSessionByCode(ctx context.Context, code string) (*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE code = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions with optional status filter, newest first
func (r *PostgresRepository) ListSessions(ctx context.Context, status string, limit, offset int) ([]*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE 1=1`
	args := make([]interface{}, 0)
	argNum := 1

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, status)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, limit)
		argNum++
	}

	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.GameSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// CloseSession marks an open session closed
func (r *PostgresRepository) CloseSession(ctx context.Context, code string, at time.Time) error {
	query := `UPDATE game_sessions SET status = $2, closed_at = $3 WHERE code = $1 AND status = $4`

	result, err := r.pool.Exec(ctx, query, code, string(models.SessionClosed), at, string(models.SessionOpen))
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("open session not found: %s", code)
	}

	return nil
}

// IncrementPlayerCount records one more player joining
func (r *PostgresRepository) IncrementPlayerCount(ctx context.Context, code string) error {
	query := `UPDATE game_sessions SET player_count = player_count + 1 WHERE code = $1`

	if _, err := r.pool.Exec(ctx, query, code); err != nil {
		return fmt.Errorf("failed to update player count: %w", err)
	}
	return nil
}

// GetExpiredSessions returns open sessions past their expiry
func (r *PostgresRepository) GetExpiredSessions(ctx context.Context, now time.Time) ([]*models.GameSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM game_sessions
		WHERE status = $1
		  AND expires_at IS NOT NULL
		  AND expires_at < $2
		ORDER BY expires_at ASC
	`

	rows, err := r.pool.Query(ctx, query, string(models.SessionOpen), now)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.GameSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*models.GameSession, error) {
	var s models.GameSession
	var status string
	var createdBy sql.NullString
	var expiresAt, closedAt sql.NullTime

	err := row.Scan(
		&s.ID,
		&s.Code,
		&s.Edition,
		&status,
		&s.PlayerCount,
		&createdBy,
		&s.CreatedAt,
		&expiresAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	s.CreatedBy = createdBy.String
	if expiresAt.Valid {
		s.ExpiresAt = &expiresAt.Time
	}
	if closedAt.Valid {
		s.ClosedAt = &closedAt.Time
	}
	return &s, nil
}

// --- Scores ---

// SaveScore appends a final result. A repeated ID leaves the first row in place.
func (r *PostgresRepository) SaveScore(ctx context.Context, rec *models.ScoreRecord) error {
	stepsJSON, err := json.Marshal(rec.StepScores)
	if err != nil {
		return fmt.Errorf("failed to marshal step scores: %w", err)
	}

	query := `
		INSERT INTO scores (id, username, session_code, edition, total_score, tier, step_scores, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Username,
		nullString(rec.SessionCode),
		rec.Edition,
		rec.TotalScore,
		rec.Tier,
		stepsJSON,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrScoreExists, rec.ID)
	}

	return nil
}

// bestPerPlayer keeps each player's best score, earliest completion first among equals
const bestPerPlayer = `
	SELECT DISTINCT ON (username) username, total_score, tier, step_scores, completed_at
	FROM scores
	WHERE %s
	ORDER BY username, total_score DESC, completed_at ASC
`

// SessionLeaderboard ranks the players of one session
func (r *PostgresRepository) SessionLeaderboard(ctx context.Context, code string, limit int) ([]models.LeaderboardEntry, error) {
	return r.leaderboard(ctx, "session_code = $1", code, limit)
}

// GlobalLeaderboard ranks players across all sessions of an edition
func (r *PostgresRepository) GlobalLeaderboard(ctx context.Context, edition string, limit int) ([]models.LeaderboardEntry, error) {
	if edition == "" {
		return r.leaderboard(ctx, "$1 = ''", "", limit)
	}
	return r.leaderboard(ctx, "edition = $1", edition, limit)
}

func (r *PostgresRepository) leaderboard(ctx context.Context, where, arg string, limit int) ([]models.LeaderboardEntry, error) {
	query := `SELECT * FROM (` + fmt.Sprintf(bestPerPlayer, where) + `) best
		ORDER BY total_score DESC, completed_at ASC, username ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, arg, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LeaderboardEntry, 0)
	for rows.Next() {
		var e models.LeaderboardEntry
		var stepsJSON []byte
		if err := rows.Scan(&e.Username, &e.TotalScore, &e.Tier, &stepsJSON, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		if err := json.Unmarshal(stepsJSON, &e.StepScores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step scores: %w", err)
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
func (r *PostgresRepository) PlayerBest(ctx context.Context, username, edition string) (*models.ScoreRecord, error) {
	query := `
		SELECT id, username, session_code, edition, total_score, tier, step_scores, completed_at
		FROM scores
		WHERE username = $1 AND edition = $2
		ORDER BY total_score DESC, completed_at ASC
		LIMIT 1
	`

	var rec models.ScoreRecord
	var sessionCode sql.NullString
	var stepsJSON []byte

	err := r.pool.QueryRow(ctx, query, username, edition).Scan(
		&rec.ID,
		&rec.Username,
		&sessionCode,
		&rec.Edition,
		&rec.TotalScore,
		&rec.Tier,
		&stepsJSON,
		&rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get player best: %w", err)
	}

	rec.SessionCode = sessionCode.String
	if err := json.Unmarshal(stepsJSON, &rec.StepScores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step scores: %w", err)
	}
	return &rec, nil
}

// SessionStats summarizes completions within a session
func (r *PostgresRepository) SessionStats(ctx context.Context, code string) (*models.SessionStats, error) {
	stats := &models.SessionStats{SessionCode: code, TierDistribution: make(map[int]int)}

	err := r.pool.QueryRow(ctx, `SELECT player_count FROM game_sessions WHERE code = $1`, code).Scan(&stats.Players)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get player count: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(total_score), 0), COALESCE(MAX(total_score), 0), COALESCE(MIN(total_score), 0)
		FROM scores
		WHERE session_code = $1
	`, code).Scan(&stats.Completed, &stats.AverageScore, &stats.BestScore, &stats.WorstScore)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate scores: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT tier, COUNT(*) FROM scores WHERE session_code = $1 GROUP BY tier`, code)
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
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	query := `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`

	if _, err := r.pool.Exec(ctx, query, apiKey); err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}

// EnsureClient creates or refreshes a facilitator key, used to bootstrap the admin client
func (r *PostgresRepository) EnsureClient(ctx context.Context, name, apiKey string, permissions []string) error {
	permissionsJSON, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO api_clients (name, api_key, is_active, permissions)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (api_key) DO UPDATE SET name = EXCLUDED.name, permissions = EXCLUDED.permissions, is_active = TRUE
	`

	if _, err := r.pool.Exec(ctx, query, name, apiKey, permissionsJSON); err != nil {
		return fmt.Errorf("failed to ensure api client: %w", err)
	}
	return nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
