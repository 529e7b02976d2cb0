package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service. It is resolved once at
// startup (file, then environment overrides, then defaults) and treated as
// immutable afterwards; components receive it by reference and never re-read
// the environment.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// Model identity and placement
	ModelID   string `json:"model_id" yaml:"model_id" toml:"model_id"`
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	HFToken   string `json:"hf_token" yaml:"hf_token" toml:"hf_token"`
	CacheDir  string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	DeviceMap string `json:"device_map" yaml:"device_map" toml:"device_map"`
	DType     string `json:"dtype" yaml:"dtype" toml:"dtype"`

	// Quantized weight representations; mutually exclusive.
	LoadIn8Bit bool `json:"load_in_8bit" yaml:"load_in_8bit" toml:"load_in_8bit"`
	LoadIn4Bit bool `json:"load_in_4bit" yaml:"load_in_4bit" toml:"load_in_4bit"`

	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads     int `json:"threads" yaml:"threads" toml:"threads"`

	Warmup       bool   `json:"warmup" yaml:"warmup" toml:"warmup"`
	WarmupPrompt string `json:"warmup_prompt" yaml:"warmup_prompt" toml:"warmup_prompt"`

	// Generation parameter defaults applied when the request omits a field.
	MaxNewTokens      int     `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	Temperature       float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP              float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK              int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty" yaml:"repetition_penalty" toml:"repetition_penalty"`
	DoSample          bool    `json:"do_sample" yaml:"do_sample" toml:"do_sample"`

	// Token budgets
	MaxInputTokens int `json:"max_input_tokens" yaml:"max_input_tokens" toml:"max_input_tokens"`
	MaxTotalTokens int `json:"max_total_tokens" yaml:"max_total_tokens" toml:"max_total_tokens"`

	// Per-request execution bound for the generate call.
	InferenceTimeout time.Duration `json:"inference_timeout" yaml:"inference_timeout" toml:"inference_timeout"`

	// Admission queue
	MaxQueueDepth    int           `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxQueueWait     time.Duration `json:"max_queue_wait" yaml:"max_queue_wait" toml:"max_queue_wait"`
	QueueBeforeReady bool          `json:"queue_before_ready" yaml:"queue_before_ready" toml:"queue_before_ready"`

	// Bounded failed->loading reload attempts; 0 disables in-process reload.
	MaxReloadAttempts int `json:"max_reload_attempts" yaml:"max_reload_attempts" toml:"max_reload_attempts"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	LogRequests bool `json:"log_requests" yaml:"log_requests" toml:"log_requests"`
	LogMetrics  bool `json:"log_metrics" yaml:"log_metrics" toml:"log_metrics"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// CharsPerTokenEstimate is the pre-tokenization length heuristic used to
// reject oversized prompts before any device work. Approximate; varies by
// tokenizer and language.
const CharsPerTokenEstimate = 4

// Default returns the built-in configuration matching the documented
// parameter ranges and defaults.
func Default() Config {
	return Config{
		Addr:              ":8000",
		ModelID:           "meta-llama/Llama-4-Scout-17B-16E-Instruct",
		CacheDir:          "",
		DeviceMap:         "auto",
		DType:             "bfloat16",
		ContextSize:       8192,
		Threads:           0,
		Warmup:            true,
		WarmupPrompt:      "Hello, how are you?",
		MaxNewTokens:      512,
		Temperature:       0.7,
		TopP:              0.9,
		TopK:              50,
		RepetitionPenalty: 1.1,
		DoSample:          true,
		MaxInputTokens:    4096,
		MaxTotalTokens:    8192,
		InferenceTimeout:  120 * time.Second,
		MaxQueueDepth:     32,
		MaxQueueWait:      30 * time.Second,
		LogLevel:          "info",
		LogFormat:         "json",
		LogRequests:       true,
		LogMetrics:        true,
	}
}

// Load reads a configuration file based on its extension and merges it over
// the built-in defaults. Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Validate checks the resolved configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error
	if c.ModelID == "" && c.ModelPath == "" {
		errs = append(errs, fmt.Errorf("model_id or model_path is required"))
	}
	if c.LoadIn8Bit && c.LoadIn4Bit {
		errs = append(errs, fmt.Errorf("cannot use both 8-bit and 4-bit quantization simultaneously"))
	}
	switch c.DType {
	case "auto", "float16", "bfloat16":
	default:
		errs = append(errs, fmt.Errorf("unknown dtype %q (want auto, float16 or bfloat16)", c.DType))
	}
	if c.Temperature <= 0.0 || c.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("temperature must be in (0.0, 2.0], got %g", c.Temperature))
	}
	if c.TopP < 0.0 || c.TopP > 1.0 {
		errs = append(errs, fmt.Errorf("top_p must be in [0.0, 1.0], got %g", c.TopP))
	}
	if c.TopK < 0 {
		errs = append(errs, fmt.Errorf("top_k must be non-negative, got %d", c.TopK))
	}
	if c.MaxNewTokens <= 0 || c.MaxNewTokens > 8192 {
		errs = append(errs, fmt.Errorf("max_new_tokens must be in [1, 8192], got %d", c.MaxNewTokens))
	}
	if c.RepetitionPenalty < 1.0 || c.RepetitionPenalty > 2.0 {
		errs = append(errs, fmt.Errorf("repetition_penalty must be in [1.0, 2.0], got %g", c.RepetitionPenalty))
	}
	if c.MaxInputTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_input_tokens must be positive, got %d", c.MaxInputTokens))
	}
	if c.MaxTotalTokens < c.MaxInputTokens {
		errs = append(errs, fmt.Errorf("max_total_tokens (%d) must be >= max_input_tokens (%d)", c.MaxTotalTokens, c.MaxInputTokens))
	}
	if c.InferenceTimeout < 0 {
		errs = append(errs, fmt.Errorf("inference_timeout must not be negative"))
	}
	if c.MaxQueueWait <= 0 {
		errs = append(errs, fmt.Errorf("max_queue_wait must be positive, got %v", c.MaxQueueWait))
	}
	if c.MaxReloadAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_reload_attempts must not be negative"))
	}
	return errs
}

// Summary returns a loggable view of the configuration. The HF token is
// reported only as configured/unconfigured, never by value.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"addr":                c.Addr,
		"model_id":            c.ModelID,
		"model_path":          c.ModelPath,
		"device_map":          c.DeviceMap,
		"dtype":               c.DType,
		"load_in_8bit":        c.LoadIn8Bit,
		"load_in_4bit":        c.LoadIn4Bit,
		"warmup":              c.Warmup,
		"max_new_tokens":      c.MaxNewTokens,
		"temperature":         c.Temperature,
		"max_input_tokens":    c.MaxInputTokens,
		"max_total_tokens":    c.MaxTotalTokens,
		"inference_timeout":   c.InferenceTimeout.String(),
		"max_queue_depth":     c.MaxQueueDepth,
		"queue_before_ready":  c.QueueBeforeReady,
		"max_reload_attempts": c.MaxReloadAttempts,
		"log_level":           c.LogLevel,
		"log_format":          c.LogFormat,
		"hf_token_configured": c.HFToken != "",
	}
}
