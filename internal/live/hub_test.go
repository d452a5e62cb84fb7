package live

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestHubPublish(t *testing.T) {
	hub := NewHub()

	a, cancelA := hub.Subscribe("ABC123")
	defer cancelA()
	b, cancelB := hub.Subscribe("ZZZ999")
	defer cancelB()

	hub.Publish("ABC123")
	hub.Publish("ABC123") // coalesces with the pending signal

	select {
	case <-a:
	default:
		t.Fatal("expected a signal for ABC123")
	}
	select {
	case <-a:
		t.Fatal("burst should collapse into one signal")
	default:
	}
	select {
	case <-b:
		t.Fatal("other sessions should not be signalled")
	default:
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe("ABC123")
	if got := hub.Subscribers("ABC123"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	cancel()
	cancel() // safe to call twice
	if got := hub.Subscribers("ABC123"); got != 0 {
		t.Errorf("expected 0 subscribers, got %d", got)
	}

	// Publishing with nobody listening is a no-op
	if err := hub.Notify(context.Background(), "ABC123"); err != nil {
		t.Errorf("Notify failed: %v", err)
	}
}

func TestHubPublishAll(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe("ABC123")
	defer cancelA()
	b, cancelB := hub.Subscribe("ZZZ999")
	defer cancelB()

	hub.PublishAll()

	for name, ch := range map[string]<-chan struct{}{"ABC123": a, "ZZZ999": b} {
		select {
		case <-ch:
		default:
			t.Errorf("expected a signal for %s", name)
		}
	}
}

func TestHubOnPublish(t *testing.T) {
	hub := NewHub()
	var seen []string
	hub.OnPublish(func(code string) { seen = append(seen, code) })

	hub.Publish("ABC123")
	hub.PublishAll()

	if len(seen) != 2 || seen[0] != "ABC123" || seen[1] != "" {
		t.Errorf("unexpected hook calls: %q", seen)
	}
}

func TestPGBridgeRoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping")
	}

	hub := NewHub()
	bridge, err := NewPGBridge(dsn, hub)
	if err != nil {
		t.Fatalf("NewPGBridge failed: %v", err)
	}
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	ch, unsubscribe := hub.Subscribe("ABC123")
	defer unsubscribe()

	if err := bridge.Notify(ctx, "ABC123"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}
}
