package persona

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/groupchatlabs/jeffbot/internal/memory"
)

type fakeLLM struct {
	reply      string
	err        error
	lastSystem string
}

func (f *fakeLLM) Analyze(ctx context.Context, system, content string) (*memory.Analysis, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	f.lastSystem = system
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) SetModel(string) {}
func (f *fakeLLM) Model() string   { return "fake" }

func TestGenerateResponse_Success(t *testing.T) {
	llm := &fakeLLM{reply: "alright dave"}
	p := New(llm, "Jeff", 1900)

	got := p.GenerateResponse(context.Background(), ResponseRequest{
		Message:  "oi jeff",
		UserName: "dave",
	})
	if got != "alright dave" {
		t.Errorf("GenerateResponse = %q", got)
	}
}

func TestGenerateResponse_FallbackOnError(t *testing.T) {
	llm := &fakeLLM{err: fmt.Errorf("backend down")}
	p := New(llm, "Jeff", 1900)

	got := p.GenerateResponse(context.Background(), ResponseRequest{Message: "hi", UserName: "dave"})
	if got != FallbackReply {
		t.Errorf("GenerateResponse = %q, want fallback", got)
	}
}

func TestGenerateResponse_FallbackOnEmpty(t *testing.T) {
	llm := &fakeLLM{reply: "   "}
	p := New(llm, "Jeff", 1900)

	got := p.GenerateResponse(context.Background(), ResponseRequest{Message: "hi", UserName: "dave"})
	if got != FallbackReply {
		t.Errorf("GenerateResponse = %q, want fallback for blank reply", got)
	}
}

func TestGenerateResponse_Truncates(t *testing.T) {
	llm := &fakeLLM{reply: strings.Repeat("x", 3000)}
	p := New(llm, "Jeff", 1900)

	got := p.GenerateResponse(context.Background(), ResponseRequest{Message: "hi", UserName: "dave"})
	if len(got) != 1903 {
		t.Errorf("len = %d, want 1900 + ellipsis", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated reply should end with ellipsis")
	}
}

func TestGenerateResponse_TruncatesOnRuneBoundary(t *testing.T) {
	llm := &fakeLLM{reply: strings.Repeat("日", 1000)} // 3000 bytes
	p := New(llm, "Jeff", 1900)

	got := p.GenerateResponse(context.Background(), ResponseRequest{Message: "hi", UserName: "dave"})
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated reply should end with ellipsis")
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated reply is not valid UTF-8: %q", got[len(got)-10:])
	}
	if len(got) > 1903 {
		t.Errorf("len = %d, want <= 1900 + ellipsis", len(got))
	}
}

func TestGenerateResponse_PromptIncludesContext(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	p := New(llm, "Jeff", 1900)

	p.GenerateResponse(context.Background(), ResponseRequest{
		Message:          "fancy a climb?",
		UserName:         "sam",
		History:          "RECENT CONVERSATION HISTORY:\nsam: hello\nJeff (you): alright\n",
		InteractionCount: 7,
		Personality:      "outdoorsy",
		Topics:           "climbing, hiking",
	})

	sys := llm.lastSystem
	for _, want := range []string{
		"You are Jeff",
		"Interactions with you: 7",
		"outdoorsy",
		"climbing, hiking",
		"Jeff (you): alright",
		"sam: fancy a climb?",
	} {
		if !strings.Contains(sys, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateResponse_EmptyContextPlaceholders(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	p := New(llm, "Jeff", 1900)

	p.GenerateResponse(context.Background(), ResponseRequest{Message: "hi", UserName: "new"})

	if !strings.Contains(llm.lastSystem, "Unknown so far") {
		t.Error("empty personality should use placeholder")
	}
	if !strings.Contains(llm.lastSystem, "No recent conversation history") {
		t.Error("empty history should use placeholder")
	}
}
