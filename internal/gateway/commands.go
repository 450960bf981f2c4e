package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/groupchatlabs/jeffbot/internal/bus"
	"github.com/groupchatlabs/jeffbot/internal/memory"
)

// parseCommand recognizes the bot's own administration commands.
// Anything else, command-prefixed or not, is left for the pipeline
// filters to deal with.
func parseCommand(content string) (cmd string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "!ai_") {
		return "", nil, false
	}
	fields := strings.Fields(content)
	switch fields[0] {
	case "!ai_toggle", "!ai_stats", "!ai_user", "!ai_forget_me", "!ai_backfill", "!ai_model":
		return fields[0], fields[1:], true
	}
	return "", nil, false
}

func (g *Gateway) isAdmin(senderID string) bool {
	for _, id := range g.cfg.AdminIDs {
		if id == senderID {
			return true
		}
	}
	return false
}

func (g *Gateway) handleCommand(ctx context.Context, msg bus.InboundMessage, cmd string, args []string) {
	var reply string

	switch cmd {
	case "!ai_toggle":
		if !g.isAdmin(msg.SenderID) {
			reply = "Nah, you're not the boss of me"
			break
		}
		if g.pipeline.ToggleChannel(msg.SessionKey()) {
			reply = "Aight, I'll keep my mouth shut in here"
		} else {
			reply = "Back in business, watch out"
		}

	case "!ai_stats":
		reply = g.statsReply()

	case "!ai_user":
		reply = g.userReply(msg.SenderID, msg.SenderName)

	case "!ai_forget_me":
		count, existed := g.store.Erase(msg.SenderID)
		if !existed {
			reply = fmt.Sprintf("Can't forget you %s, never knew you in the first place", msg.SenderName)
			break
		}
		if err := memory.DeleteBlob(g.blobs, msg.SenderID); err != nil {
			log.Printf("[gateway] delete blob for %s: %v", msg.SenderID, err)
		}
		reply = fmt.Sprintf("Done. Wiped everything I had on you, %s. That was %d conversations down the drain", msg.SenderName, count)

	case "!ai_backfill":
		if !g.isAdmin(msg.SenderID) {
			reply = "Nah, you're not the boss of me"
			break
		}
		g.buffer.ResetBackfill()
		g.backfillHistory(ctx)
		reply = fmt.Sprintf("History reloaded: %d messages across %d chats", g.buffer.TotalMessages(), g.buffer.ChatCount())

	case "!ai_model":
		if !g.isAdmin(msg.SenderID) {
			reply = "Nah, you're not the boss of me"
			break
		}
		if len(args) == 0 {
			reply = fmt.Sprintf("Current model: %s", g.llm.Model())
			break
		}
		g.llm.SetModel(args[0])
		reply = fmt.Sprintf("Switched to %s", args[0])
	}

	if reply == "" {
		return
	}
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
		ReplyTo: msg.MessageID,
	}
}

func (g *Gateway) statsReply() string {
	stats := g.pipeline.Stats()
	insights := g.store.Insights()

	var sb strings.Builder
	sb.WriteString("Right, here's what I've been up to:\n")
	fmt.Fprintf(&sb, "- Uptime: %s\n", time.Since(g.startedAt).Round(time.Second))
	fmt.Fprintf(&sb, "- Users I know: %d\n", g.store.UserCount())
	fmt.Fprintf(&sb, "- Conversations analyzed: %d\n", insights.TotalConversations)
	fmt.Fprintf(&sb, "- Responses sent: %d\n", insights.ResponsesSent)
	fmt.Fprintf(&sb, "- Queue: %d waiting, %d processed, %d dropped\n", stats.QueueDepth, stats.Processed, stats.Dropped)
	if len(stats.IgnoredChannels) > 0 {
		fmt.Fprintf(&sb, "- Ignoring: %s\n", strings.Join(stats.IgnoredChannels, ", "))
	}
	if g.store.Dirty() {
		sb.WriteString("- Unsaved changes pending\n")
	}
	return sb.String()
}

func (g *Gateway) userReply(userID, userName string) string {
	mem, ok := g.store.Get(userID)
	if !ok {
		return fmt.Sprintf("Got nothing on you yet, %s. Say something interesting", userName)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "What I know about %s:\n", mem.DisplayName)
	fmt.Fprintf(&sb, "- First seen: %s\n", mem.FirstSeen.Format("2 Jan 2006"))
	fmt.Fprintf(&sb, "- Conversations: %d\n", mem.InteractionCount)
	if len(mem.TopicsDiscussed) > 0 {
		fmt.Fprintf(&sb, "- Topics: %s\n", strings.Join(mem.TopicsDiscussed, ", "))
	}
	if len(mem.PersonalityNotes) > 0 {
		n := len(mem.PersonalityNotes)
		if n > 3 {
			n = 3
		}
		fmt.Fprintf(&sb, "- Notes: %s\n", strings.Join(mem.PersonalityNotes[len(mem.PersonalityNotes)-n:], "; "))
	}
	if len(mem.SentimentHistory) > 0 {
		fmt.Fprintf(&sb, "- Recent mood: %s\n", mem.SentimentHistory[len(mem.SentimentHistory)-1].Sentiment)
	}
	return sb.String()
}
