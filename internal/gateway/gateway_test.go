package gateway

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/groupchatlabs/jeffbot/internal/config"
	"github.com/groupchatlabs/jeffbot/internal/memory"
)

func TestNewWithOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Memory.DBPath = filepath.Join(t.TempDir(), "memory.db")

	g, err := NewWithOptions(cfg, Options{Inference: &fakeLLM{model: "m"}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}

	if g.store.UserCount() != 0 {
		t.Errorf("fresh store has %d users", g.store.UserCount())
	}
	if err := g.Shutdown(); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
}

func TestNew_ReloadsPersistedMemory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memory.db")

	cfg := config.DefaultConfig()
	cfg.Memory.DBPath = dbPath

	g, err := NewWithOptions(cfg, Options{Inference: &fakeLLM{}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	g.store.ApplyAnalysis("u1", "dave", "hi", memory.Analysis{})
	if err := g.Shutdown(); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	// A new gateway over the same database sees the flushed state.
	g2, err := NewWithOptions(cfg, Options{Inference: &fakeLLM{}})
	if err != nil {
		t.Fatalf("NewWithOptions reopen error: %v", err)
	}
	defer g2.Shutdown()

	if g2.store.UserCount() != 1 {
		t.Errorf("reloaded UserCount = %d, want 1", g2.store.UserCount())
	}
}

func TestRouteLoop_CommandsLandInHistory(t *testing.T) {
	g := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.routeLoop(ctx)

	g.bus.Inbound <- command("anyone", "!ai_stats")

	select {
	case <-g.bus.Outbound:
	case <-time.After(2 * time.Second):
		t.Fatal("command never answered")
	}

	if got := g.buffer.Len("telegram:100"); got != 1 {
		t.Errorf("history Len = %d, want 1 (commands are recorded too)", got)
	}
}

func TestRouteLoop_RegularMessagesEnqueued(t *testing.T) {
	g := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.routeLoop(ctx)

	g.bus.Inbound <- command("anyone", "evening all")

	deadline := time.Now().Add(2 * time.Second)
	for g.pipeline.Stats().QueueDepth == 0 {
		if time.Now().After(deadline) {
			t.Fatal("message never queued")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := g.buffer.Len("telegram:100"); got != 1 {
		t.Errorf("history Len = %d, want 1", got)
	}
}
