package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/groupchatlabs/jeffbot/internal/bus"
	"github.com/groupchatlabs/jeffbot/internal/channel"
	"github.com/groupchatlabs/jeffbot/internal/config"
	"github.com/groupchatlabs/jeffbot/internal/history"
	"github.com/groupchatlabs/jeffbot/internal/inference"
	"github.com/groupchatlabs/jeffbot/internal/memory"
	"github.com/groupchatlabs/jeffbot/internal/persona"
	"github.com/groupchatlabs/jeffbot/internal/pipeline"
	"github.com/groupchatlabs/jeffbot/internal/storage"
)

// Options for creating a Gateway
type Options struct {
	Inference  inference.Client
	SignalChan chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	blobs      storage.BlobStore
	store      *memory.Store
	saver      *memory.Saver
	llm        inference.Client
	persona    *persona.Persona
	buffer     *history.Buffer
	pipeline   *pipeline.Pipeline
	channels   *channel.ChannelManager
	startedAt  time.Time
	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, startedAt: time.Now()}

	g.bus = bus.NewMessageBus(cfg.Pipeline.QueueSize)

	dbPath := strings.TrimSpace(cfg.Memory.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "memory.db")
	}
	blobs, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	g.blobs = blobs

	g.store = memory.NewStore(memory.Limits{
		Topics:     cfg.Memory.TopicsLimit,
		Notes:      cfg.Memory.NotesLimit,
		Sentiment:  cfg.Memory.SentimentLimit,
		Notable:    cfg.Memory.NotableLimit,
		ExcerptLen: cfg.Memory.ExcerptLen,
	})
	if err := g.store.LoadAll(blobs); err != nil {
		_ = blobs.Close()
		return nil, fmt.Errorf("load memory: %w", err)
	}
	log.Printf("[gateway] memory loaded: %d users", g.store.UserCount())

	g.saver = memory.NewSaver(g.store, blobs, time.Duration(cfg.Memory.FlushSeconds)*time.Second)

	g.llm = opts.Inference
	if g.llm == nil {
		g.llm = inference.NewClient(cfg.Provider)
	}
	g.persona = persona.New(g.llm, cfg.BotName, cfg.Pipeline.MaxResponseLen)

	g.buffer = history.NewBuffer(cfg.Pipeline.HistoryLimit)
	g.pipeline = pipeline.New(cfg.Pipeline, cfg.BotName, g.bus, g.buffer, g.store, g.llm, g.persona)

	chMgr, err := channel.NewChannelManager(cfg.Channels, g.bus)
	if err != nil {
		_ = blobs.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	g.signalChan = opts.SignalChan

	return g, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	g.pipeline.Start(ctx)
	if err := g.saver.Start(); err != nil {
		log.Printf("[gateway] saver start warning: %v", err)
	}

	g.backfillHistory(ctx)

	go g.routeLoop(ctx)

	log.Printf("[gateway] running as %s", g.cfg.BotName)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// routeLoop splits the inbound stream: command messages are answered
// directly, everything else goes through the analysis pipeline.
func (g *Gateway) routeLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

			if cmd, args, ok := parseCommand(msg.Content); ok {
				// Commands are answered directly but still belong in
				// history; Enqueue records for everything else.
				g.buffer.Record(msg)
				g.handleCommand(ctx, msg, cmd, args)
				continue
			}
			g.pipeline.Enqueue(msg)
		case <-ctx.Done():
			return
		}
	}
}

// backfillHistory seeds the ring buffers from any transport able to
// replay recent messages. Transports without history support are
// skipped.
func (g *Gateway) backfillHistory(ctx context.Context) {
	var sources []history.Source
	for _, ch := range g.channels.Channels() {
		if src, ok := ch.(history.Source); ok {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return
	}
	g.buffer.Backfill(ctx, sources...)
	log.Printf("[gateway] history backfill done: %d messages across %d chats", g.buffer.TotalMessages(), g.buffer.ChatCount())
}

func (g *Gateway) Shutdown() error {
	g.pipeline.Stop()
	g.saver.Stop()
	_ = g.channels.StopAll()
	if g.blobs != nil {
		if err := g.blobs.Close(); err != nil {
			log.Printf("[gateway] close blob store warning: %v", err)
		}
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
