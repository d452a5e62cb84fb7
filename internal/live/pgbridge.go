package live

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Channel is the PostgreSQL notification channel for leaderboard changes
const Channel = "mot_leaderboard"

// PGBridge relays leaderboard changes between instances through
// PostgreSQL LISTEN/NOTIFY. Notify publishes to the channel; Run delivers
// every received notification to the local hub, including our own.
type PGBridge struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *Hub
}

// NewPGBridge connects a notifier and a listener to the database at dsn
func NewPGBridge(dsn string, hub *Hub) (*PGBridge, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("leaderboard listener event", "event", ev, "error", err)
		}
	})

	if err := listener.Listen(Channel); err != nil {
		listener.Close()
		db.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}

	return &PGBridge{db: db, listener: listener, hub: hub}, nil
}

// Notify publishes a change for the session to every instance
func (b *PGBridge) Notify(ctx context.Context, sessionCode string) error {
	if _, err := b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", Channel, sessionCode); err != nil {
		return fmt.Errorf("failed to notify %s: %w", Channel, err)
	}
	return nil
}

// Run forwards notifications to the hub until ctx is cancelled
func (b *PGBridge) Run(ctx context.Context) {
	slog.Info("leaderboard bridge started", "channel", Channel)

	ticker := time.NewTicker(90 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("leaderboard bridge stopped")
			return
		case n := <-b.listener.Notify:
			if n == nil {
				// Reconnected; anything sent meanwhile was lost
				b.hub.PublishAll()
				continue
			}
			b.hub.Publish(n.Extra)
		case <-ticker.C:
			go func() {
				if err := b.listener.Ping(); err != nil {
					slog.Warn("leaderboard listener ping failed", "error", err)
				}
			}()
		}
	}
}

// HealthCheck verifies the notify connection
func (b *PGBridge) HealthCheck(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close releases the listener and the notify connection
func (b *PGBridge) Close() error {
	lerr := b.listener.Close()
	if err := b.db.Close(); err != nil {
		return err
	}
	return lerr
}
