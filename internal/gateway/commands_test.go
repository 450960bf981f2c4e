package gateway

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/groupchatlabs/jeffbot/internal/bus"
	"github.com/groupchatlabs/jeffbot/internal/channel"
	"github.com/groupchatlabs/jeffbot/internal/config"
	"github.com/groupchatlabs/jeffbot/internal/history"
	"github.com/groupchatlabs/jeffbot/internal/memory"
	"github.com/groupchatlabs/jeffbot/internal/persona"
	"github.com/groupchatlabs/jeffbot/internal/pipeline"
	"github.com/groupchatlabs/jeffbot/internal/storage"
)

type fakeLLM struct {
	model string
}

func (f *fakeLLM) Analyze(ctx context.Context, system, content string) (*memory.Analysis, error) {
	return &memory.Analysis{}, nil
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	return "ok", nil
}

func (f *fakeLLM) SetModel(model string) { f.model = model }
func (f *fakeLLM) Model() string         { return f.model }

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	blobs, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })

	cfg := config.DefaultConfig()
	cfg.AdminIDs = []string{"admin-1"}

	llm := &fakeLLM{model: "test-model"}
	b := bus.NewMessageBus(16)
	store := memory.NewStore(memory.DefaultLimits())
	buf := history.NewBuffer(50)
	p := persona.New(llm, cfg.BotName, cfg.Pipeline.MaxResponseLen)

	chMgr, err := channel.NewChannelManager(cfg.Channels, b)
	if err != nil {
		t.Fatalf("NewChannelManager error: %v", err)
	}

	return &Gateway{
		cfg:       cfg,
		bus:       b,
		blobs:     blobs,
		store:     store,
		saver:     memory.NewSaver(store, blobs, time.Minute),
		llm:       llm,
		persona:   p,
		buffer:    buf,
		pipeline:  pipeline.New(cfg.Pipeline, cfg.BotName, b, buf, store, llm, p),
		channels:  chMgr,
		startedAt: time.Now(),
	}
}

func command(sender, content string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel: "telegram", ChatID: "100", MessageID: "1",
		SenderID: sender, SenderName: "tester", Content: content,
		Guild: "room",
	}
}

func (g *Gateway) lastReply(t *testing.T) string {
	t.Helper()
	select {
	case out := <-g.bus.Outbound:
		return out.Content
	default:
		t.Fatal("no reply sent")
		return ""
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		input string
		cmd   string
		ok    bool
	}{
		{"!ai_stats", "!ai_stats", true},
		{"  !ai_toggle  ", "!ai_toggle", true},
		{"!ai_model llama3", "!ai_model", true},
		{"!ai_unknown", "", false},
		{"!help", "", false},
		{"plain message", "", false},
		{"/start", "", false},
	}

	for _, tc := range cases {
		cmd, _, ok := parseCommand(tc.input)
		if ok != tc.ok || cmd != tc.cmd {
			t.Errorf("parseCommand(%q) = %q,%v want %q,%v", tc.input, cmd, ok, tc.cmd, tc.ok)
		}
	}
}

func TestCommand_ForgetMe(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	g.store.ApplyAnalysis("u1", "dave", "hi", memory.Analysis{})
	g.store.ApplyAnalysis("u1", "dave", "again", memory.Analysis{})
	if err := g.store.FlushAll(g.blobs); err != nil {
		t.Fatalf("FlushAll error: %v", err)
	}

	g.handleCommand(ctx, command("u1", "!ai_forget_me"), "!ai_forget_me", nil)

	reply := g.lastReply(t)
	if !strings.Contains(reply, "2 conversations") {
		t.Errorf("reply = %q, want erased count", reply)
	}
	if _, ok := g.store.Get("u1"); ok {
		t.Error("profile should be gone")
	}
	if _, err := g.blobs.Read("user_u1"); err != storage.ErrNotFound {
		t.Errorf("blob should be deleted, Read err = %v", err)
	}
}

func TestCommand_ForgetMe_Unknown(t *testing.T) {
	g := newTestGateway(t)

	g.handleCommand(context.Background(), command("ghost", "!ai_forget_me"), "!ai_forget_me", nil)

	reply := g.lastReply(t)
	if !strings.Contains(reply, "never knew you") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCommand_Toggle_AdminOnly(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	g.handleCommand(ctx, command("nobody", "!ai_toggle"), "!ai_toggle", nil)
	if reply := g.lastReply(t); !strings.Contains(reply, "not the boss") {
		t.Errorf("non-admin reply = %q", reply)
	}

	g.handleCommand(ctx, command("admin-1", "!ai_toggle"), "!ai_toggle", nil)
	if reply := g.lastReply(t); !strings.Contains(reply, "mouth shut") {
		t.Errorf("first toggle reply = %q", reply)
	}

	g.handleCommand(ctx, command("admin-1", "!ai_toggle"), "!ai_toggle", nil)
	if reply := g.lastReply(t); !strings.Contains(reply, "Back in business") {
		t.Errorf("second toggle reply = %q", reply)
	}
}

func TestCommand_Stats(t *testing.T) {
	g := newTestGateway(t)

	g.store.ApplyAnalysis("u1", "dave", "hi", memory.Analysis{})
	g.store.RecordResponse()

	g.handleCommand(context.Background(), command("anyone", "!ai_stats"), "!ai_stats", nil)

	reply := g.lastReply(t)
	for _, want := range []string{"Users I know: 1", "Conversations analyzed: 1", "Responses sent: 1", "Unsaved changes pending"} {
		if !strings.Contains(reply, want) {
			t.Errorf("stats reply missing %q:\n%s", want, reply)
		}
	}
}

func TestCommand_User(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	g.handleCommand(ctx, command("u1", "!ai_user"), "!ai_user", nil)
	if reply := g.lastReply(t); !strings.Contains(reply, "Got nothing on you") {
		t.Errorf("unknown user reply = %q", reply)
	}

	g.store.ApplyAnalysis("u1", "dave", "loves trains", memory.Analysis{
		Topics:       []string{"trains"},
		UserInsights: []string{"obsessed with trains"},
		Sentiment:    "positive",
	})

	g.handleCommand(ctx, command("u1", "!ai_user"), "!ai_user", nil)
	reply := g.lastReply(t)
	for _, want := range []string{"What I know about dave", "Conversations: 1", "trains", "positive"} {
		if !strings.Contains(reply, want) {
			t.Errorf("user reply missing %q:\n%s", want, reply)
		}
	}
}

func TestCommand_Model(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	g.handleCommand(ctx, command("admin-1", "!ai_model"), "!ai_model", nil)
	if reply := g.lastReply(t); !strings.Contains(reply, "test-model") {
		t.Errorf("model query reply = %q", reply)
	}

	g.handleCommand(ctx, command("admin-1", "!ai_model llama3"), "!ai_model", []string{"llama3"})
	if reply := g.lastReply(t); !strings.Contains(reply, "llama3") {
		t.Errorf("model switch reply = %q", reply)
	}
	if g.llm.Model() != "llama3" {
		t.Errorf("model = %q after switch", g.llm.Model())
	}
}

func TestCommand_Backfill(t *testing.T) {
	g := newTestGateway(t)

	g.buffer.Record(bus.InboundMessage{Channel: "telegram", ChatID: "1", Content: "x"})

	g.handleCommand(context.Background(), command("admin-1", "!ai_backfill"), "!ai_backfill", nil)

	reply := g.lastReply(t)
	if !strings.Contains(reply, "History reloaded") {
		t.Errorf("backfill reply = %q", reply)
	}
	if !strings.Contains(reply, fmt.Sprintf("%d messages", g.buffer.TotalMessages())) {
		t.Errorf("backfill reply counts wrong: %q", reply)
	}
}
