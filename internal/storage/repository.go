package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/mot-engine/internal/models"
)

var (
	// ErrDuplicateCode is returned when a session code is already taken
	ErrDuplicateCode = errors.New("session code already exists")
	// ErrScoreExists is returned when a result with the same ID was already saved
	ErrScoreExists = errors.New("score already recorded")
)

// Repository defines the interface for game persistence.
// Lookups of a single record return (nil, nil) when nothing matches.
type Repository interface {
	// Game sessions
	CreateSession(ctx context.Context, s *models.GameSession) error
	GetSessionByCode(ctx context.Context, code string) (*models.GameSession, error)
	ListSessions(ctx context.Context, status string, limit, offset int) ([]*models.GameSession, error)
	CloseSession(ctx context.Context, code string, at time.Time) error
	IncrementPlayerCount(ctx context.Context, code string) error
	GetExpiredSessions(ctx context.Context, now time.Time) ([]*models.GameSession, error)

	// Scores
	SaveScore(ctx context.Context, rec *models.ScoreRecord) error // at most once per ID
	SessionLeaderboard(ctx context.Context, code string, limit int) ([]models.LeaderboardEntry, error)
	GlobalLeaderboard(ctx context.Context, edition string, limit int) ([]models.LeaderboardEntry, error)
	PlayerBest(ctx context.Context, username, edition string) (*models.ScoreRecord, error)
	SessionStats(ctx context.Context, code string) (*models.SessionStats, error)

	// API Clients
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error
	EnsureClient(ctx context.Context, name, apiKey string, permissions []string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
