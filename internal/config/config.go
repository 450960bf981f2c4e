package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel            = "gpt-4.1-mini"
	DefaultInferenceTimeout = 30
	DefaultQueueSize        = 512
	DefaultThrottleSeconds  = 1
	DefaultFlushSeconds     = 180

	// Bounded-memory policy constants. These mirror the values the bot
	// has always run with; they are configurable but nothing has ever
	// needed different ones.
	DefaultHistoryLimit      = 50
	DefaultTopicsLimit       = 20
	DefaultNotesLimit        = 15
	DefaultSentimentLimit    = 10
	DefaultNotableLimit      = 10
	DefaultExcerptLen        = 200
	DefaultDirectedThreshold = 0.7
	DefaultContextMessages   = 5
	DefaultResponseMessages  = 10
	DefaultMaxResponseLen    = 1900
	DefaultWebUIPort         = 18890
)

type Config struct {
	BotName  string         `json:"botName"`
	Provider ProviderConfig `json:"provider"`
	Channels ChannelsConfig `json:"channels"`
	Memory   MemoryConfig   `json:"memory"`
	Pipeline PipelineConfig `json:"pipeline"`
	AdminIDs []string       `json:"adminIds,omitempty"`
}

// ProviderConfig points at an OpenAI-compatible completion endpoint
// (Open WebUI, vLLM, or the hosted APIs).
type ProviderConfig struct {
	APIKey         string `json:"apiKey"`
	BaseURL        string `json:"baseUrl"`
	Model          string `json:"model,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WebUI    WebUIConfig    `json:"webui"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled"`
	Port      int      `json:"port,omitempty"`
	AllowFrom []string `json:"allowFrom"`
}

type MemoryConfig struct {
	DBPath         string `json:"dbPath,omitempty"`
	FlushSeconds   int    `json:"flushSeconds,omitempty"`
	TopicsLimit    int    `json:"topicsLimit,omitempty"`
	NotesLimit     int    `json:"notesLimit,omitempty"`
	SentimentLimit int    `json:"sentimentLimit,omitempty"`
	NotableLimit   int    `json:"notableLimit,omitempty"`
	ExcerptLen     int    `json:"excerptLen,omitempty"`
}

type PipelineConfig struct {
	QueueSize         int     `json:"queueSize,omitempty"`
	ThrottleSeconds   int     `json:"throttleSeconds,omitempty"`
	HistoryLimit      int     `json:"historyLimit,omitempty"`
	ContextMessages   int     `json:"contextMessages,omitempty"`
	ResponseMessages  int     `json:"responseMessages,omitempty"`
	DirectedThreshold float64 `json:"directedThreshold,omitempty"`
	MaxResponseLen    int     `json:"maxResponseLen,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		BotName: "Jeff",
		Provider: ProviderConfig{
			Model:          DefaultModel,
			TimeoutSeconds: DefaultInferenceTimeout,
		},
		Channels: ChannelsConfig{},
		Memory: MemoryConfig{
			FlushSeconds:   DefaultFlushSeconds,
			TopicsLimit:    DefaultTopicsLimit,
			NotesLimit:     DefaultNotesLimit,
			SentimentLimit: DefaultSentimentLimit,
			NotableLimit:   DefaultNotableLimit,
			ExcerptLen:     DefaultExcerptLen,
		},
		Pipeline: PipelineConfig{
			QueueSize:         DefaultQueueSize,
			ThrottleSeconds:   DefaultThrottleSeconds,
			HistoryLimit:      DefaultHistoryLimit,
			ContextMessages:   DefaultContextMessages,
			ResponseMessages:  DefaultResponseMessages,
			DirectedThreshold: DefaultDirectedThreshold,
			MaxResponseLen:    DefaultMaxResponseLen,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".jeffbot")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("JEFFBOT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("JEFFBOT_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("JEFFBOT_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if token := os.Getenv("JEFFBOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("JEFFBOT_MEMORY_DB_PATH"); dbPath != "" {
		cfg.Memory.DBPath = dbPath
	}
	if secs := os.Getenv("JEFFBOT_FLUSH_SECONDS"); secs != "" {
		if parsed, err := strconv.Atoi(secs); err == nil && parsed > 0 {
			cfg.Memory.FlushSeconds = parsed
		}
	}
	if threshold := os.Getenv("JEFFBOT_DIRECTED_THRESHOLD"); threshold != "" {
		if parsed, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.Pipeline.DirectedThreshold = parsed
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills every zero or negative value. A configured zero
// is never meaningful here: it always means "use the default".
func applyDefaults(cfg *Config) {
	if cfg.BotName == "" {
		cfg.BotName = "Jeff"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = DefaultInferenceTimeout
	}
	if cfg.Memory.FlushSeconds <= 0 {
		cfg.Memory.FlushSeconds = DefaultFlushSeconds
	}
	if cfg.Memory.TopicsLimit <= 0 {
		cfg.Memory.TopicsLimit = DefaultTopicsLimit
	}
	if cfg.Memory.NotesLimit <= 0 {
		cfg.Memory.NotesLimit = DefaultNotesLimit
	}
	if cfg.Memory.SentimentLimit <= 0 {
		cfg.Memory.SentimentLimit = DefaultSentimentLimit
	}
	if cfg.Memory.NotableLimit <= 0 {
		cfg.Memory.NotableLimit = DefaultNotableLimit
	}
	if cfg.Memory.ExcerptLen <= 0 {
		cfg.Memory.ExcerptLen = DefaultExcerptLen
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = DefaultQueueSize
	}
	if cfg.Pipeline.ThrottleSeconds <= 0 {
		cfg.Pipeline.ThrottleSeconds = DefaultThrottleSeconds
	}
	if cfg.Pipeline.HistoryLimit <= 0 {
		cfg.Pipeline.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Pipeline.ContextMessages <= 0 {
		cfg.Pipeline.ContextMessages = DefaultContextMessages
	}
	if cfg.Pipeline.ResponseMessages <= 0 {
		cfg.Pipeline.ResponseMessages = DefaultResponseMessages
	}
	if cfg.Pipeline.DirectedThreshold <= 0 {
		cfg.Pipeline.DirectedThreshold = DefaultDirectedThreshold
	}
	if cfg.Pipeline.MaxResponseLen <= 0 {
		cfg.Pipeline.MaxResponseLen = DefaultMaxResponseLen
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
