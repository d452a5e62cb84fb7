package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Target is what the cleaner maintains; *game.Manager satisfies it
type Target interface {
	CloseExpiredSessions(ctx context.Context) (int, error)
	SweepPaths(ctx context.Context, maxIdle time.Duration) (int, error)
}

// Cleaner handles periodic closing of expired sessions and sweeping of idle paths
type Cleaner struct {
	target   Target
	interval time.Duration
	pathTTL  time.Duration
}

// NewCleaner creates a new cleanup worker. Paths untouched for pathTTL are dropped.
func NewCleaner(target Target, interval, pathTTL time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if pathTTL <= 0 {
		pathTTL = 24 * time.Hour
	}

	return &Cleaner{
		target:   target,
		interval: interval,
		pathTTL:  pathTTL,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "path_ttl", c.pathTTL)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup runs one cycle
func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	closed, err := c.target.CloseExpiredSessions(ctx)
	if err != nil {
		slog.Error("failed to close expired sessions", "error", err)
	} else if closed > 0 {
		slog.Info("expired sessions closed", "count", closed)
	}

	swept, err := c.target.SweepPaths(ctx, c.pathTTL)
	if err != nil {
		slog.Error("failed to sweep idle paths", "error", err)
		return
	}
	if swept > 0 {
		slog.Info("idle paths swept", "count", swept, "older_than", c.pathTTL)
	}
}
