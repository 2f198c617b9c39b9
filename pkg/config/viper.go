package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// from configDir (if non-empty) or the default .engram/ directory, and
// binds environment variables with the ENGRAM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound by the command tree)
//  2. Environment variables (ENGRAM_WINDOW_TOKEN_CEILING, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	if configDir == "" {
		configDir = defaultDataDir()
	}
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("ENGRAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper unmarshals the resolved viper state into a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	// The struct is tagged for its on-disk TOML layout; decode with the
	// same tags so file, env, and defaults land in the same fields.
	tomlTags := func(dc *mapstructure.DecoderConfig) { dc.TagName = "toml" }
	if err := v.Unmarshal(cfg, tomlTags); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Window
	v.SetDefault("window.token_ceiling", d.Window.TokenCeiling)
	v.SetDefault("window.hysteresis_ratio", d.Window.HysteresisRatio)
	v.SetDefault("window.chars_per_token", d.Window.CharsPerToken)
	v.SetDefault("window.message_overhead_tokens", d.Window.MessageOverheadTokens)

	// Segment
	v.SetDefault("segment.default.max_len", d.Segment.Default.MaxLen)
	v.SetDefault("segment.default.overlap", d.Segment.Default.Overlap)
	v.SetDefault("segment.short.max_len", d.Segment.Short.MaxLen)
	v.SetDefault("segment.short.overlap", d.Segment.Short.Overlap)
	v.SetDefault("segment.short_input_threshold", d.Segment.ShortInputThreshold)
	v.SetDefault("segment.min_dedup_len", d.Segment.MinDedupLen)
	v.SetDefault("segment.max_chunks", d.Segment.MaxChunks)
	v.SetDefault("segment.archive_max_len", d.Segment.ArchiveMaxLen)
	v.SetDefault("segment.archive_overlap", d.Segment.ArchiveOverlap)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.model_path", d.Embedding.ModelPath)
	v.SetDefault("embedding.tokenizer_path", d.Embedding.TokenizerPath)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.pool_workers", d.Embedding.PoolWorkers)
	v.SetDefault("embedding.batch_cap", d.Embedding.BatchCap)
	v.SetDefault("embedding.grow_threshold", d.Embedding.GrowThreshold)
	v.SetDefault("embedding.shrink_threshold", d.Embedding.ShrinkThreshold)
	v.SetDefault("embedding.min_memory_mb", d.Embedding.MinMemoryMB)
	v.SetDefault("embedding.min_cores", d.Embedding.MinCores)
	v.SetDefault("embedding.adapter_denylist", d.Embedding.AdapterDenylist)

	// Store
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.kv_path", d.Store.KVPath)
	v.SetDefault("store.top_k", d.Store.TopK)
	v.SetDefault("store.min_similarity", d.Store.MinSimilarity)

	// Remote
	v.SetDefault("remote.enabled", d.Remote.Enabled)
	v.SetDefault("remote.host", d.Remote.Host)
	v.SetDefault("remote.port", d.Remote.Port)
	v.SetDefault("remote.collection", d.Remote.Collection)

	// Generation
	v.SetDefault("generation.provider", d.Generation.Provider)
	v.SetDefault("generation.api_key", d.Generation.APIKey)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.target", d.Generation.Target)
	v.SetDefault("generation.max_tokens", d.Generation.MaxTokens)
	v.SetDefault("generation.context_tokens", d.Generation.ContextTokens)
	v.SetDefault("generation.window_tokens", d.Generation.WindowTokens)

	// Events
	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// Worker
	v.SetDefault("worker.request_timeout_seconds", d.Worker.RequestTimeoutSeconds)
}
