package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/groupchatlabs/jeffbot/internal/bus"
	"github.com/groupchatlabs/jeffbot/internal/config"
	"github.com/groupchatlabs/jeffbot/internal/history"
	"github.com/groupchatlabs/jeffbot/internal/inference"
	"github.com/groupchatlabs/jeffbot/internal/memory"
	"github.com/groupchatlabs/jeffbot/internal/persona"
)

// commandPrefixes marks messages meant for command handlers rather
// than conversation. They never enter the analysis queue.
const commandPrefixes = "!/$?.-+=*&%#"

// Stats is a point-in-time snapshot of pipeline activity.
type Stats struct {
	QueueDepth      int
	Processed       uint64
	Dropped         uint64
	Mentions        uint64
	Responses       uint64
	IgnoredChannels []string
}

// Pipeline consumes inbound messages one at a time, runs analysis,
// updates memory and decides whether the bot should reply.
type Pipeline struct {
	cfg     config.PipelineConfig
	botName string

	msgBus  *bus.MessageBus
	buffer  *history.Buffer
	store   *memory.Store
	llm     inference.Client
	persona *persona.Persona

	queue    chan bus.InboundMessage
	throttle time.Duration

	mu      sync.Mutex
	ignored map[string]bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	processed atomic.Uint64
	dropped   atomic.Uint64
	mentions  atomic.Uint64
	responses atomic.Uint64
}

func New(cfg config.PipelineConfig, botName string, msgBus *bus.MessageBus, buffer *history.Buffer, store *memory.Store, llm inference.Client, p *persona.Persona) *Pipeline {
	size := cfg.QueueSize
	if size <= 0 {
		size = config.DefaultQueueSize
	}
	throttle := time.Duration(cfg.ThrottleSeconds) * time.Second
	if cfg.ThrottleSeconds <= 0 {
		throttle = time.Duration(config.DefaultThrottleSeconds) * time.Second
	}
	return &Pipeline{
		cfg:      cfg,
		botName:  botName,
		msgBus:   msgBus,
		buffer:   buffer,
		store:    store,
		llm:      llm,
		persona:  p,
		queue:    make(chan bus.InboundMessage, size),
		throttle: throttle,
		ignored:  make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// Start launches the single consumer goroutine. Calling it twice is a
// no-op.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	log.Printf("[pipeline] started (queue=%d, throttle=%s)", cap(p.queue), p.throttle)
}

// Stop signals the consumer and waits for it to drain the message it
// is working on.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	<-p.done
	log.Printf("[pipeline] stopped")
}

// Enqueue records the message into history and, if it passes the
// ingestion filters, hands it to the consumer. It never blocks: when
// the queue is full the message is counted and dropped.
func (p *Pipeline) Enqueue(msg bus.InboundMessage) {
	p.buffer.Record(msg)

	if !p.shouldProcess(msg) {
		return
	}

	select {
	case p.queue <- msg:
	default:
		n := p.dropped.Add(1)
		log.Printf("[pipeline] queue full, dropping message from %s (%d dropped so far)", msg.SenderName, n)
	}
}

// ToggleChannel flips analysis on or off for a chat and reports the
// new state (true = now ignored).
func (p *Pipeline) ToggleChannel(chatKey string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ignored[chatKey] {
		delete(p.ignored, chatKey)
		return false
	}
	p.ignored[chatKey] = true
	return true
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	ignored := make([]string, 0, len(p.ignored))
	for k := range p.ignored {
		ignored = append(ignored, k)
	}
	p.mu.Unlock()
	return Stats{
		QueueDepth:      len(p.queue),
		Processed:       p.processed.Load(),
		Dropped:         p.dropped.Load(),
		Mentions:        p.mentions.Load(),
		Responses:       p.responses.Load(),
		IgnoredChannels: ignored,
	}
}

func (p *Pipeline) shouldProcess(msg bus.InboundMessage) bool {
	if msg.IsBot || msg.SenderName == p.botName {
		return false
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return false
	}
	if strings.ContainsRune(commandPrefixes, rune(content[0])) {
		return false
	}
	p.mu.Lock()
	ignored := p.ignored[msg.SessionKey()]
	p.mu.Unlock()
	return !ignored
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			// Filters are re-checked here: the ignore list may have
			// changed while the message sat in the queue.
			if p.shouldProcess(msg) {
				p.process(ctx, msg)
				p.processed.Add(1)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.throttle):
			}
		}
	}
}

func (p *Pipeline) process(ctx context.Context, msg bus.InboundMessage) {
	analysisCtx := p.buildAnalysisContext(msg)
	system := inference.AnalysisPrompt(p.botName, msg.IsDirect())

	analysis, err := p.llm.Analyze(ctx, system, analysisCtx)
	if err != nil {
		log.Printf("[pipeline] analysis failed for message from %s: %v", msg.SenderName, err)
		return
	}

	if msg.IsDirect() {
		analysis.DirectedProbability = 1.0
	}

	if analysis.DirectedProbability >= p.threshold() {
		p.mentions.Add(1)
		p.respond(ctx, msg)
	}

	p.store.ApplyAnalysis(msg.SenderID, msg.SenderName, msg.Content, *analysis)
}

func (p *Pipeline) respond(ctx context.Context, msg bus.InboundMessage) {
	notes, topics, interactions := p.store.RelevanceInputs(msg.SenderID)
	relevant := memory.SelectRelevant(msg.Content, notes, topics)

	reply := p.persona.GenerateResponse(ctx, persona.ResponseRequest{
		Message:          msg.Content,
		UserName:         msg.SenderName,
		History:          p.buildHistoryBlock(msg),
		InteractionCount: interactions,
		Personality:      relevant.Personality,
		Topics:           relevant.Topics,
	})

	out := bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
		ReplyTo: msg.MessageID,
	}
	select {
	case p.msgBus.Outbound <- out:
	case <-ctx.Done():
		return
	}

	// Record our own reply so later analyses can see it in history.
	p.buffer.Record(bus.InboundMessage{
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		SenderName: p.botName,
		Content:    reply,
		Timestamp:  time.Now(),
		IsBot:      true,
		ChatName:   msg.ChatName,
		Guild:      msg.Guild,
	})

	p.store.RecordResponse()
	p.responses.Add(1)
}

func (p *Pipeline) threshold() float64 {
	if p.cfg.DirectedThreshold > 0 {
		return p.cfg.DirectedThreshold
	}
	return config.DefaultDirectedThreshold
}

// buildAnalysisContext assembles the short transcript the analysis
// model sees: a few recent messages, the current one, and where the
// conversation is happening.
func (p *Pipeline) buildAnalysisContext(msg bus.InboundMessage) string {
	limit := p.cfg.ContextMessages
	if limit <= 0 {
		limit = config.DefaultContextMessages
	}

	prior := p.priorMessages(msg, limit)

	var sb strings.Builder
	if len(prior) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range prior {
			fmt.Fprintf(&sb, "%s: %s\n", m.SenderName, m.Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Current message from %s: %s\n\n", msg.SenderName, msg.Content)

	if msg.IsDirect() {
		sb.WriteString("Location: direct message\n")
	} else {
		fmt.Fprintf(&sb, "Channel: %s\n", msg.ChatName)
		fmt.Fprintf(&sb, "Server: %s\n", msg.Guild)
	}
	return sb.String()
}

// buildHistoryBlock formats recent history for response generation,
// marking the bot's own lines so the model knows which side it was on.
func (p *Pipeline) buildHistoryBlock(msg bus.InboundMessage) string {
	limit := p.cfg.ResponseMessages
	if limit <= 0 {
		limit = config.DefaultResponseMessages
	}
	prior := p.priorMessages(msg, limit)
	if len(prior) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("RECENT CONVERSATION HISTORY:\n")
	for _, m := range prior {
		name := m.SenderName
		if m.IsBot || m.SenderName == p.botName {
			name = fmt.Sprintf("%s (you)", p.botName)
		}
		fmt.Fprintf(&sb, "%s: %s\n", name, m.Content)
	}
	return sb.String()
}

// priorMessages returns up to limit history entries for msg's session,
// excluding msg itself. The message under processing is already in the
// buffer, so prompts that quote it separately must not see it twice.
func (p *Pipeline) priorMessages(msg bus.InboundMessage, limit int) []bus.InboundMessage {
	recent := p.buffer.Recent(msg.SessionKey(), limit+1)
	prior := recent[:0:0]
	for _, m := range recent {
		if m.MessageID == msg.MessageID && m.SenderID == msg.SenderID && m.Content == msg.Content {
			continue
		}
		prior = append(prior, m)
	}
	if len(prior) > limit {
		prior = prior[len(prior)-limit:]
	}
	return prior
}
