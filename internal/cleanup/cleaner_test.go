package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTarget struct {
	mu       sync.Mutex
	closes   int
	sweeps   int
	maxIdle  time.Duration
	closeErr error
}

func (f *fakeTarget) CloseExpiredSessions(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return 2, f.closeErr
}

func (f *fakeTarget) SweepPaths(ctx context.Context, maxIdle time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	f.maxIdle = maxIdle
	return 1, nil
}

func (f *fakeTarget) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes, f.sweeps
}

func TestCleanupCycle(t *testing.T) {
	target := &fakeTarget{}
	c := NewCleaner(target, time.Minute, 2*time.Hour)

	c.cleanup(context.Background())

	closes, sweeps := target.counts()
	if closes != 1 || sweeps != 1 {
		t.Fatalf("expected one close and one sweep, got %d/%d", closes, sweeps)
	}
	if target.maxIdle != 2*time.Hour {
		t.Errorf("expected path TTL 2h, got %v", target.maxIdle)
	}
}

func TestCleanupSweepsEvenWhenCloseFails(t *testing.T) {
	target := &fakeTarget{closeErr: errors.New("db down")}
	NewCleaner(target, 0, 0).cleanup(context.Background())

	if _, sweeps := target.counts(); sweeps != 1 {
		t.Errorf("expected sweep to run, got %d", sweeps)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	target := &fakeTarget{}
	c := NewCleaner(target, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	if closes, _ := target.counts(); closes < 2 {
		t.Errorf("expected the immediate run plus ticks, got %d cycles", closes)
	}
}
