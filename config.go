package relay

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the TOML-backed runtime configuration. Zero values fall back
// to the same defaults the constructors use, so a partial file is fine.
type Config struct {
	Trace    TraceConfig    `toml:"trace"`
	Engine   EngineConfig   `toml:"engine"`
	Limits   LimitsConfig   `toml:"limits"`
	External ExternalConfig `toml:"external"`
}

// TraceConfig controls the run journal.
type TraceConfig struct {
	// Dir is the root directory for JSONL trace files.
	Dir string `toml:"dir"`
	// MaxFieldChars truncates journaled string values. Default 2000.
	MaxFieldChars int `toml:"max_field_chars"`
}

// EngineConfig bounds the engines.
type EngineConfig struct {
	// PipelineMaxIterations bounds the coding pipeline loop. Default 3.
	PipelineMaxIterations int `toml:"pipeline_max_iterations"`
	// GraphMaxSteps bounds reasoning graph node visits. Default 16.
	GraphMaxSteps int `toml:"graph_max_steps"`
}

// LimitsConfig controls per-session dispatch limits and retry tuning.
type LimitsConfig struct {
	// RateTokens and RatePeriodSeconds define the session token bucket.
	// Defaults: 5 tokens per 10 seconds.
	RateTokens        int `toml:"rate_tokens"`
	RatePeriodSeconds int `toml:"rate_period_seconds"`
	// RetryAttempts and RetryBaseDelayMillis tune transient retry.
	// Defaults: 3 attempts, 700ms base delay.
	RetryAttempts        int `toml:"retry_attempts"`
	RetryBaseDelayMillis int `toml:"retry_base_delay_millis"`
}

// ExternalConfig holds timeouts for outbound calls.
type ExternalConfig struct {
	// FetchTimeoutSeconds bounds a single web fetch. Default 20.
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`
	// ModelTimeoutSeconds bounds a single completion. Default 60.
	ModelTimeoutSeconds int `toml:"model_timeout_seconds"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Trace:  TraceConfig{Dir: "data/traces", MaxFieldChars: 2000},
		Engine: EngineConfig{PipelineMaxIterations: 3, GraphMaxSteps: 16},
		Limits: LimitsConfig{
			RateTokens:           5,
			RatePeriodSeconds:    10,
			RetryAttempts:        3,
			RetryBaseDelayMillis: 700,
		},
		External: ExternalConfig{FetchTimeoutSeconds: 20, ModelTimeoutSeconds: 60},
	}
}

// LoadConfig reads a TOML file over the defaults. Unset keys keep their
// default values; unknown keys are an error to catch typos early.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// FetchTimeout returns the configured fetch timeout as a duration.
func (c ExternalConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// ModelTimeout returns the configured model timeout as a duration.
func (c ExternalConfig) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}
