package config

import (
	"os"
	"path/filepath"
)

const (
	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// NewDefaultConfig returns a fully-populated Config with sane defaults.
// This is the single source of truth for default values; viper defaults
// are registered from it.
func NewDefaultConfig() *Config {
	dataDir := defaultDataDir()

	return &Config{
		Version: CurrentV,
		Window: WindowConfig{
			TokenCeiling:          8000,
			HysteresisRatio:       0.9,
			CharsPerToken:         4,
			MessageOverheadTokens: 4,
		},
		Segment: SegmentConfig{
			Default:             SegmentProfileConfig{MaxLen: 1200, Overlap: 200},
			Short:               SegmentProfileConfig{MaxLen: 400, Overlap: 60},
			ShortInputThreshold: 2000,
			MinDedupLen:         80,
			MaxChunks:           512,
			ArchiveMaxLen:       800,
			ArchiveOverlap:      100,
		},
		Embedding: EmbeddingConfig{
			Provider:        "ollama",
			Dimensions:      768,
			Target:          "http://localhost:11434",
			Model:           "nomic-embed-text",
			PoolWorkers:     3,
			BatchCap:        32,
			GrowThreshold:   0.10,
			ShrinkThreshold: 0.25,
			MinMemoryMB:     4096,
			MinCores:        4,
			AdapterDenylist: []string{"SwiftShader", "llvmpipe", "Microsoft Basic Render"},
		},
		Store: StoreConfig{
			SQLitePath:    filepath.Join(dataDir, "chunks.db"),
			KVPath:        filepath.Join(dataDir, "mirror.db"),
			TopK:          10,
			MinSimilarity: 0.3,
		},
		Remote: RemoteConfig{
			Enabled:    false,
			Host:       "localhost",
			Port:       6334,
			Collection: "engram_chunks",
		},
		Generation: GenerationConfig{
			Provider:      "ollama",
			Model:         "llama3.2",
			Target:        "http://localhost:11434",
			MaxTokens:     1024,
			ContextTokens: 800,
			WindowTokens:  4000,
		},
		Events: EventsConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "engram.turns",
		},
		Worker: WorkerConfig{
			RequestTimeoutSeconds: 30,
		},
	}
}

// defaultDataDir resolves the .engram/ data directory under the user home,
// falling back to the working directory when home resolution fails.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".engram"
	}
	return filepath.Join(home, ".engram")
}
