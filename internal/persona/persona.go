package persona

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/groupchatlabs/jeffbot/internal/inference"
)

// FallbackReply is sent whenever response generation fails. The bot
// stays in character even when the backend is down.
const FallbackReply = "Sorry mate, brain's not working right now"

var styleRules = []string{
	"DON'T OVERDO YOUR PERSONALITY, LESS IS MORE, BE CONCISE AND TO THE POINT",
	"Act like a mate in the group, not a formal assistant, don't be afraid to swear or be a bit of a dickhead",
	"Be conversational and natural - no excessive emojis or exclamation marks",
	"You can be playful, sarcastic, or even a bit rude if it fits the vibe",
	"Don't be overly helpful or eager - just respond naturally",
	"Keep responses reasonably short (1-3 sentences usually)",
	"Use casual language, contractions, British slang is fine",
}

var behaviorRules = []string{
	"If someone's being daft, call them out on it",
	"If someone's genuinely asking for help, be helpful but keep it casual",
	"Reference the conversation history when relevant - show you're paying attention",
	"Don't mention you're an AI or bot unless directly asked",
}

// Persona generates in-character replies. It owns the personality
// prompt and the transport length cap; it never returns an error.
type Persona struct {
	llm     inference.Client
	botName string
	maxLen  int
}

func New(llm inference.Client, botName string, maxLen int) *Persona {
	if maxLen <= 0 {
		maxLen = 1900
	}
	return &Persona{llm: llm, botName: botName, maxLen: maxLen}
}

// ResponseRequest carries everything the persona needs to reply to
// one message.
type ResponseRequest struct {
	Message          string
	UserName         string
	History          string
	InteractionCount int
	Personality      string
	Topics           string
}

// GenerateResponse produces the reply text. On any failure it logs
// and returns the fixed fallback line instead of propagating an
// error.
func (p *Persona) GenerateResponse(ctx context.Context, req ResponseRequest) string {
	system := p.buildPrompt(req)

	text, err := p.llm.Complete(ctx, system, fmt.Sprintf("Generate a response as %s to the current message, considering the conversation history provided.", p.botName))
	if err != nil {
		log.Printf("[persona] response generation for %s failed: %v", req.UserName, err)
		return FallbackReply
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackReply
	}
	if len(text) > p.maxLen {
		cut := p.maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

func (p *Persona) buildPrompt(req ResponseRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, a casual bot who's part of a group of friends.\n\n", p.botName)

	sb.WriteString("PERSONALITY STYLE:\n")
	for _, rule := range styleRules {
		sb.WriteString("- " + rule + "\n")
	}
	sb.WriteString("\nBEHAVIOR PATTERNS:\n")
	for _, rule := range behaviorRules {
		sb.WriteString("- " + rule + "\n")
	}

	personality := req.Personality
	if personality == "" {
		personality = "Unknown so far"
	}
	topics := req.Topics
	if topics == "" {
		topics = "Various"
	}
	fmt.Fprintf(&sb, "\nCONTEXT ABOUT USER (%s):\n", req.UserName)
	fmt.Fprintf(&sb, "- Interactions with you: %d\n", req.InteractionCount)
	fmt.Fprintf(&sb, "- Relevant personality insights: %s\n", personality)
	fmt.Fprintf(&sb, "- Relevant topics they discuss: %s\n", topics)

	sb.WriteString("\n")
	if req.History != "" {
		sb.WriteString(req.History)
	} else {
		sb.WriteString("(No recent conversation history available)\n")
	}

	sb.WriteString("\nCURRENT MESSAGE TO RESPOND TO:\n")
	fmt.Fprintf(&sb, "%s: %s\n\n", req.UserName, req.Message)
	fmt.Fprintf(&sb, "Respond naturally as %s would, taking into account the conversation history above.\n", p.botName)

	return sb.String()
}
