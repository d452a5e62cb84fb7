package pathstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/mot-engine/internal/models"
)

// Runs against a real server when REDIS_TEST_ADDR is set
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := NewRedisStore(client, time.Minute)
	defer s.Close()

	code := "T" + uuid.NewString()[:5]
	p := models.NewPlayerPath(uuid.NewString(), code, "alice", "leader")
	if err := s.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, models.NewPlayerPath(uuid.NewString(), code, "Alice", "leader")); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	p.Step1Choice = "elena"
	p.StepScores[models.Step1] = 3
	p.NextStep = models.Step2
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Lookup(ctx, code, "ALICE")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Step1Choice != "elena" || got.StepScores[models.Step1] != 3 || got.NextStep != models.Step2 {
		t.Errorf("round trip lost state: %+v", got)
	}

	removed, err := s.Sweep(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed < 1 {
		t.Errorf("expected at least 1 removed, got %d", removed)
	}
	if _, err := s.Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after sweep, got %v", err)
	}
}
