// Package pathstore keeps in-progress player paths, keyed by ID and by
// (session code, username).
package pathstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/terra-clan/mot-engine/internal/models"
)

var (
	ErrNotFound = errors.New("path not found")
	ErrExists   = errors.New("username already playing in this session")
)

// Store persists player paths. Implementations return deep copies so
// callers never share state with the store.
type Store interface {
	// Create stores a new path; ErrExists if the session already has that username
	Create(ctx context.Context, path *models.PlayerPath) error

	// Get returns a path by ID
	Get(ctx context.Context, id string) (*models.PlayerPath, error)

	// Lookup returns the path of a username within a session
	Lookup(ctx context.Context, sessionCode, username string) (*models.PlayerPath, error)

	// Save overwrites an existing path
	Save(ctx context.Context, path *models.PlayerPath) error

	// Sweep removes paths not updated since the cutoff; finished ones are
	// already on the leaderboard
	Sweep(ctx context.Context, cutoff time.Time) (int, error)

	// HealthCheck verifies the backing store is reachable
	HealthCheck(ctx context.Context) error
}

// playerKey normalizes the (session code, username) index key.
// Usernames are matched case-insensitively.
func playerKey(sessionCode, username string) string {
	return models.NormalizeSessionCode(sessionCode) + ":" + strings.ToLower(strings.TrimSpace(username))
}
