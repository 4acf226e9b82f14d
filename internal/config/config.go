// Package config loads and validates the qacut pipeline configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Segmentation modes.
const (
	ModeContinuity = "continuity"
	ModeQuestion   = "question"
)

// Embedding backend names.
const (
	BackendRemote    = "remote"
	BackendOpenAI    = "openai"
	BackendWebSocket = "websocket"
	BackendONNX      = "onnx"
	BackendCommand   = "command"
)

// DefaultThreshold is the minimum cosine similarity for a question match.
const DefaultThreshold = 0.80

// ConfigurationError reports a fatal configuration problem. The run aborts
// before any processing when one is returned.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Errorf builds a ConfigurationError for field.
func Errorf(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config holds the complete pipeline configuration.
type Config struct {
	Mode            string          `json:"mode"`              // "continuity" or "question"
	TargetSpeaker   string          `json:"target_speaker"`    // speaker whose answers become chunks
	Interviewer     string          `json:"interviewer"`       // question mode; empty matches every other speaker
	MaxChunkSeconds float64         `json:"max_chunk_seconds"` // soft cap, continuity mode; <= 0 disables
	Questions       QuestionsConfig `json:"questions"`
	Matching        MatchingConfig  `json:"matching"`
	Embedding       EmbeddingConfig `json:"embedding"`
	Extract         ExtractConfig   `json:"extract"`
	Output          OutputConfig    `json:"output"`
	Sinks           SinksConfig     `json:"sinks"`
	Watch           WatchConfig     `json:"watch"`
}

// QuestionsConfig locates the question bank.
type QuestionsConfig struct {
	Dir        string   `json:"dir"`
	CoreFile   string   `json:"core_file,omitempty"` // defaults to core_questions.json
	Category   string   `json:"category"`
	Categories []string `json:"categories,omitempty"` // restricts the known categories when set
}

// MatchingConfig controls the similarity threshold.
type MatchingConfig struct {
	Threshold  float64            `json:"threshold"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"` // per category overrides
}

// ThresholdFor returns the threshold for category, falling back to the
// global threshold and then DefaultThreshold.
func (m MatchingConfig) ThresholdFor(category string) float64 {
	if t, ok := m.Thresholds[category]; ok && t > 0 {
		return t
	}
	if m.Threshold > 0 {
		return m.Threshold
	}
	return DefaultThreshold
}

// EmbeddingConfig selects and configures embedding backends.
type EmbeddingConfig struct {
	Backend        string          `json:"backend"`
	Fallback       string          `json:"fallback,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	Remote         RemoteConfig    `json:"remote"`
	OpenAI         OpenAIConfig    `json:"openai"`
	WebSocket      WebSocketConfig `json:"websocket"`
	ONNX           ONNXConfig      `json:"onnx"`
	Command        CommandConfig   `json:"command"`
}

// RemoteConfig configures the HTTP embedding service.
type RemoteConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"`
	Retries int    `json:"retries"`
	Model   string `json:"model,omitempty"`
}

// OpenAIConfig configures the OpenAI embeddings backend.
type OpenAIConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
}

// WebSocketConfig configures the websocket embedding service.
type WebSocketConfig struct {
	URL string `json:"url"`
}

// ONNXConfig configures local ONNX inference.
type ONNXConfig struct {
	ModelPath     string `json:"model_path"`
	TokenizerPath string `json:"tokenizer_path"`
	LibraryPath   string `json:"library_path"`
	MaxLength     int    `json:"max_length"`
}

// CommandConfig configures an external embedding command.
type CommandConfig struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

// ExtractConfig controls media slicing.
type ExtractConfig struct {
	FFmpegPath     string `json:"ffmpeg_path"`
	Concurrency    int    `json:"concurrency"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// OutputConfig controls optional artifacts.
type OutputConfig struct {
	Vectors       bool   `json:"vectors"`                  // write chunk_vectors.json
	TokenizerPath string `json:"tokenizer_path,omitempty"` // adds token_count to metadata
}

// SinksConfig lists downstream hand-off targets. Empty fields disable a sink.
type SinksConfig struct {
	SQLite    SQLiteSinkConfig    `json:"sqlite"`
	Cassandra CassandraSinkConfig `json:"cassandra"`
	Redis     RedisSinkConfig     `json:"redis"`
}

// SQLiteSinkConfig configures the local catalog.
type SQLiteSinkConfig struct {
	Path string `json:"path"`
}

// CassandraSinkConfig configures the Cassandra index sink.
type CassandraSinkConfig struct {
	Hosts          []string `json:"hosts"`
	Keyspace       string   `json:"keyspace"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// RedisSinkConfig configures the Redis hand-off queue.
type RedisSinkConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// WatchConfig controls inbox watching.
type WatchConfig struct {
	PollIntervalSeconds int `json:"poll_interval_seconds"`
	SettleMillis        int `json:"settle_millis"` // wait after the last write before processing
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:            ModeContinuity,
		TargetSpeaker:   "Speaker 1",
		MaxChunkSeconds: 30,
		Questions: QuestionsConfig{
			Dir:      "questions",
			Category: "",
		},
		Matching: MatchingConfig{Threshold: DefaultThreshold},
		Embedding: EmbeddingConfig{
			Backend:        BackendRemote,
			TimeoutSeconds: 30,
			Remote:         RemoteConfig{BaseURL: "http://localhost:8089", Retries: 3},
			OpenAI:         OpenAIConfig{Model: "text-embedding-3-small"},
			ONNX:           ONNXConfig{MaxLength: 256},
		},
		Extract: ExtractConfig{
			FFmpegPath:     "ffmpeg",
			Concurrency:    4,
			TimeoutSeconds: 120,
		},
		Sinks: SinksConfig{
			Cassandra: CassandraSinkConfig{TimeoutSeconds: 10},
			Redis:     RedisSinkConfig{Queue: "qacut:runs"},
		},
		Watch: WatchConfig{PollIntervalSeconds: 2, SettleMillis: 500},
	}
}

// DefaultPath returns ~/.config/qacut/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "qacut", "config.json")
}

// Load reads the JSON config at path on top of Default, applies environment
// overrides and validates the result. A missing file at the default path is
// not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, Errorf("", "failed to parse %s: %v", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, Errorf("", "failed to load config: %v", err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from QACUT_* variables and OPENAI_API_KEY.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QACUT_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("QACUT_TARGET_SPEAKER"); v != "" {
		c.TargetSpeaker = v
	}
	if v := os.Getenv("QACUT_CATEGORY"); v != "" {
		c.Questions.Category = v
	}
	if v := os.Getenv("QACUT_INTERVIEWER"); v != "" {
		c.Interviewer = v
	}
	if v := os.Getenv("QACUT_QUESTIONS_DIR"); v != "" {
		c.Questions.Dir = v
	}
	if v := os.Getenv("QACUT_EMBED_URL"); v != "" {
		c.Embedding.Remote.BaseURL = v
	}
	if v := os.Getenv("QACUT_REDIS_ADDR"); v != "" {
		c.Sinks.Redis.Addr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embedding.OpenAI.APIKey == "" {
		c.Embedding.OpenAI.APIKey = v
	}
}

var knownBackends = map[string]bool{
	BackendRemote:    true,
	BackendOpenAI:    true,
	BackendWebSocket: true,
	BackendONNX:      true,
	BackendCommand:   true,
}

// Validate checks the configuration and returns a *ConfigurationError for
// the first problem found.
func (c *Config) Validate() error {
	if c.Mode != ModeContinuity && c.Mode != ModeQuestion {
		return Errorf("mode", "must be %q or %q, got %q", ModeContinuity, ModeQuestion, c.Mode)
	}
	if strings.TrimSpace(c.TargetSpeaker) == "" {
		return Errorf("target_speaker", "must not be empty")
	}
	if c.Interviewer != "" && c.Interviewer == c.TargetSpeaker {
		return Errorf("interviewer", "must differ from target_speaker")
	}
	if c.MaxChunkSeconds < 0 {
		return Errorf("max_chunk_seconds", "must be >= 0, got %v", c.MaxChunkSeconds)
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return Errorf("matching.threshold", "must be within [0, 1], got %v", c.Matching.Threshold)
	}
	for cat, t := range c.Matching.Thresholds {
		if t <= 0 || t > 1 {
			return Errorf("matching.thresholds."+cat, "must be within (0, 1], got %v", t)
		}
	}

	if c.Mode == ModeQuestion {
		if c.Questions.Dir == "" {
			return Errorf("questions.dir", "required in question mode")
		}
		if c.Questions.Category == "" {
			return Errorf("questions.category", "required in question mode")
		}
		if !knownBackends[c.Embedding.Backend] {
			return Errorf("embedding.backend", "unknown backend %q", c.Embedding.Backend)
		}
		if c.Embedding.Fallback != "" {
			if !knownBackends[c.Embedding.Fallback] {
				return Errorf("embedding.fallback", "unknown backend %q", c.Embedding.Fallback)
			}
			if c.Embedding.Fallback == c.Embedding.Backend {
				return Errorf("embedding.fallback", "must differ from embedding.backend")
			}
		}
	}
	if c.Embedding.TimeoutSeconds < 1 {
		return Errorf("embedding.timeout_seconds", "must be >= 1, got %d", c.Embedding.TimeoutSeconds)
	}

	if c.Extract.Concurrency < 1 || c.Extract.Concurrency > 64 {
		return Errorf("extract.concurrency", "must be between 1 and 64, got %d", c.Extract.Concurrency)
	}
	if c.Extract.TimeoutSeconds < 1 {
		return Errorf("extract.timeout_seconds", "must be >= 1, got %d", c.Extract.TimeoutSeconds)
	}

	if len(c.Sinks.Cassandra.Hosts) > 0 && c.Sinks.Cassandra.Keyspace == "" {
		return Errorf("sinks.cassandra.keyspace", "required when hosts are set")
	}
	if c.Sinks.Redis.Addr != "" && c.Sinks.Redis.Queue == "" {
		return Errorf("sinks.redis.queue", "required when addr is set")
	}

	if c.Watch.PollIntervalSeconds < 1 || c.Watch.PollIntervalSeconds > 60 {
		return Errorf("watch.poll_interval_seconds", "must be between 1 and 60, got %d", c.Watch.PollIntervalSeconds)
	}
	return nil
}
