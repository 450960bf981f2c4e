package bus

import (
	"context"
	"log"
	"sync"
)

// MessageBus decouples transport channels from everything that
// consumes messages. Inbound carries messages from channels to the
// gateway; Outbound carries replies back, dispatched per channel name.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu       sync.RWMutex
	handlers map[string]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &MessageBus{
		Inbound:  make(chan InboundMessage, bufSize),
		Outbound: make(chan OutboundMessage, bufSize),
		handlers: make(map[string]func(OutboundMessage)),
	}
}

// SubscribeOutbound registers the send handler for a channel name.
// The last registration wins.
func (b *MessageBus) SubscribeOutbound(channel string, handler func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = handler
}

// DispatchOutbound drains Outbound until ctx is cancelled, routing
// each message to its channel's handler. Messages for unknown
// channels are logged and dropped.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			handler := b.handlers[msg.Channel]
			b.mu.RUnlock()
			if handler == nil {
				log.Printf("[bus] no outbound handler for channel %q, dropping message", msg.Channel)
				continue
			}
			handler(msg)
		case <-ctx.Done():
			return
		}
	}
}
