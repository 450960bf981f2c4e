package bus

import "time"

// InboundMessage is one chat message as delivered by a transport
// channel. Guild is empty for direct messages.
type InboundMessage struct {
	Channel     string
	ChatID      string
	MessageID   string
	SenderID    string
	SenderName  string
	Content     string
	Timestamp   time.Time
	IsBot       bool
	ChatName    string
	Guild       string
	Metadata    map[string]any
}

// IsDirect reports whether the message arrived over a one-on-one
// conversation with the bot rather than a shared room.
func (m *InboundMessage) IsDirect() bool {
	return m.Guild == ""
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	ReplyTo string
}
