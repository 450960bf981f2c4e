package history

import (
	"context"
	"log"
	"sync"

	"github.com/groupchatlabs/jeffbot/internal/bus"
)

// Source is implemented by transport channels that can replay their
// own recent message log, used to warm the buffer at startup.
type Source interface {
	RecentHistory(ctx context.Context, limit int) ([]bus.InboundMessage, error)
}

// Buffer keeps the most recent messages per chat, bot and human alike,
// bounded to perChat entries with strict FIFO eviction. It is the only
// conversational context the pipeline ever reads.
type Buffer struct {
	mu         sync.Mutex
	chats      map[string][]bus.InboundMessage
	perChat    int
	backfilled bool
}

func NewBuffer(perChat int) *Buffer {
	if perChat <= 0 {
		perChat = 50
	}
	return &Buffer{
		chats:   make(map[string][]bus.InboundMessage),
		perChat: perChat,
	}
}

// Record appends a message to its chat's log, evicting the oldest
// entry once the bound is reached. It never fails.
func (b *Buffer) Record(msg bus.InboundMessage) {
	key := msg.SessionKey()

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := append(b.chats[key], msg)
	if len(entries) > b.perChat {
		entries = append(entries[:0], entries[len(entries)-b.perChat:]...)
	}
	b.chats[key] = entries
}

// Recent returns up to limit most recent messages for the chat,
// oldest first. Unknown chats yield an empty slice. limit <= 0 means
// everything buffered.
func (b *Buffer) Recent(chatKey string, limit int) []bus.InboundMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.chats[chatKey]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]bus.InboundMessage, len(entries))
	copy(out, entries)
	return out
}

// Len reports how many messages are buffered for the chat.
func (b *Buffer) Len(chatKey string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chats[chatKey])
}

// ChatCount reports how many chats currently have buffered history.
func (b *Buffer) ChatCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chats)
}

// TotalMessages reports the total buffered message count.
func (b *Buffer) TotalMessages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, entries := range b.chats {
		total += len(entries)
	}
	return total
}

// Backfill replays each source's recent history into the buffer once.
// Repeated calls are no-ops until ResetBackfill; a failing source is
// logged and skipped.
func (b *Buffer) Backfill(ctx context.Context, sources ...Source) {
	b.mu.Lock()
	if b.backfilled {
		b.mu.Unlock()
		return
	}
	b.backfilled = true
	b.mu.Unlock()

	loaded := 0
	for _, src := range sources {
		msgs, err := src.RecentHistory(ctx, b.perChat)
		if err != nil {
			log.Printf("[history] backfill source warning: %v", err)
			continue
		}
		for _, msg := range msgs {
			b.Record(msg)
			loaded++
		}
	}
	log.Printf("[history] backfill complete: %d messages across %d chats", loaded, b.ChatCount())
}

// Backfilled reports whether a backfill has run since the last reset.
func (b *Buffer) Backfilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backfilled
}

// ResetBackfill allows an administrative re-run of Backfill.
func (b *Buffer) ResetBackfill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backfilled = false
}
