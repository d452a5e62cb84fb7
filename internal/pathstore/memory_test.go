package pathstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/terra-clan/mot-engine/internal/models"
)

func TestMemoryStoreCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := models.NewPlayerPath("p-1", "ABC123", "Alice", "leader")
	if err := s.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dup := models.NewPlayerPath("p-2", "abc123", " alice ", "leader")
	if err := s.Create(ctx, dup); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists for same username, got %v", err)
	}

	other := models.NewPlayerPath("p-3", "XYZ789", "Alice", "leader")
	if err := s.Create(ctx, other); err != nil {
		t.Fatalf("same username in another session should be allowed: %v", err)
	}

	got, err := s.Lookup(ctx, "abc123", "ALICE")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.ID != "p-1" {
		t.Errorf("expected p-1, got %s", got.ID)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Lookup(ctx, "ABC123", "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := models.NewPlayerPath("p-1", "ABC123", "alice", "leader")
	if err := s.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	p.Step1Choice = "elena"
	got, _ := s.Get(ctx, "p-1")
	if got.Step1Choice != "" {
		t.Error("store shares state with the caller after Create")
	}

	got.StepScores[models.Step1] = 3
	again, _ := s.Get(ctx, "p-1")
	if _, ok := again.StepScores[models.Step1]; ok {
		t.Error("store shares state with the caller after Get")
	}

	got.Step1Choice = "elena"
	if err := s.Save(ctx, got); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	saved, _ := s.Get(ctx, "p-1")
	if saved.Step1Choice != "elena" {
		t.Errorf("expected saved choice, got %q", saved.Step1Choice)
	}

	if err := s.Save(ctx, models.NewPlayerPath("ghost", "ABC123", "ghost", "leader")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound saving unknown path, got %v", err)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	stale := models.NewPlayerPath("stale", "ABC123", "old", "leader")
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	fresh := models.NewPlayerPath("fresh", "ABC123", "new", "leader")

	s.Create(ctx, stale)
	s.Create(ctx, fresh)

	removed, err := s.Sweep(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", s.Len())
	}

	// The username is free again
	if err := s.Create(ctx, models.NewPlayerPath("again", "ABC123", "old", "leader")); err != nil {
		t.Errorf("expected username to be reusable after sweep: %v", err)
	}
}
