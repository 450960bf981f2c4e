package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/groupchatlabs/jeffbot/internal/config"
	"github.com/groupchatlabs/jeffbot/internal/memory"
)

// Client is the adapter around the external text-generation service.
// Analyze issues a structured-extraction call; Complete is free-form
// text generation. Both are best-effort: callers treat any error as a
// soft failure and move on.
type Client interface {
	Analyze(ctx context.Context, system, content string) (*memory.Analysis, error)
	Complete(ctx context.Context, system, user string) (string, error)
	SetModel(model string)
	Model() string
}

type httpClient struct {
	apiKey  string
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	model string
}

func NewClient(cfg config.ProviderConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if strings.TrimSpace(model) != "" {
		c.model = model
	}
}

func (c *httpClient) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// analysisEnvelope is the expected shape of an extraction response.
// A missing metadata key means the model ignored the format; that is
// a soft failure, not a crash.
type analysisEnvelope struct {
	Metadata *memory.Analysis `json:"metadata"`
}

func (c *httpClient) Analyze(ctx context.Context, system, content string) (*memory.Analysis, error) {
	raw, err := c.complete(ctx, system, content, true)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	var envelope analysisEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	if envelope.Metadata == nil {
		return nil, fmt.Errorf("parse analysis: missing metadata")
	}
	return envelope.Metadata, nil
}

func (c *httpClient) Complete(ctx context.Context, system, user string) (string, error) {
	text, err := c.complete(ctx, system, user, false)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return text, nil
}

func (c *httpClient) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("missing api key")
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("missing base url")
	}
	model := c.Model()
	if model == "" {
		return "", fmt.Errorf("missing model")
	}

	body := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	if jsonMode {
		body["temperature"] = 0.3
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty content in response")
	}
	return text, nil
}
