package config

// Config represents the persistent engram configuration stored as config.toml
// in the .engram/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version    int              `toml:"version"`
	Window     WindowConfig     `toml:"window"`
	Segment    SegmentConfig    `toml:"segment"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Store      StoreConfig      `toml:"store"`
	Remote     RemoteConfig     `toml:"remote"`
	Generation GenerationConfig `toml:"generation"`
	Events     EventsConfig     `toml:"events"`
	Worker     WorkerConfig     `toml:"worker"`
}

// WindowConfig holds active memory window settings.
type WindowConfig struct {
	// TokenCeiling is the maximum estimated token total before eviction.
	TokenCeiling int `toml:"token_ceiling,omitempty"`

	// HysteresisRatio is the fraction of the ceiling eviction drives the
	// total down to. Eviction past the ceiling targets
	// HysteresisRatio * TokenCeiling to avoid thrashing.
	HysteresisRatio float64 `toml:"hysteresis_ratio,omitempty"`

	// CharsPerToken is the characters-per-token estimation heuristic.
	CharsPerToken int `toml:"chars_per_token,omitempty"`

	// MessageOverheadTokens is the fixed structural token cost per message.
	MessageOverheadTokens int `toml:"message_overhead_tokens,omitempty"`
}

// SegmentProfileConfig holds one segmentation calibration profile.
type SegmentProfileConfig struct {
	MaxLen  int `toml:"max_len,omitempty"`
	Overlap int `toml:"overlap,omitempty"`
}

// SegmentConfig holds text segmentation settings.
type SegmentConfig struct {
	// Default is the profile tuned for generative-retrieval quality.
	Default SegmentProfileConfig `toml:"default"`

	// Short is the profile applied to inputs below ShortInputThreshold.
	Short SegmentProfileConfig `toml:"short"`

	// ShortInputThreshold selects the Short profile when the total input
	// length is below it.
	ShortInputThreshold int `toml:"short_input_threshold,omitempty"`

	// MinDedupLen is the minimum chunk length subject to deduplication.
	MinDedupLen int `toml:"min_dedup_len,omitempty"`

	// MaxChunks caps the number of emitted chunks per call.
	MaxChunks int `toml:"max_chunks,omitempty"`

	// ArchiveMaxLen and ArchiveOverlap configure the coarser chunker used
	// when archiving evicted conversation turns.
	ArchiveMaxLen  int `toml:"archive_max_len,omitempty"`
	ArchiveOverlap int `toml:"archive_overlap,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "onnx" or "ollama".
	Provider string `toml:"provider,omitempty"`

	// Dimensions is the fixed embedding dimensionality. Every stored
	// vector must have exactly this many components.
	Dimensions uint `toml:"dimensions,omitempty"`

	// ModelPath and TokenizerPath locate the local ONNX model.
	ModelPath     string `toml:"model_path,omitempty"`
	TokenizerPath string `toml:"tokenizer_path,omitempty"`

	// Target and Model configure the Ollama provider.
	Target string `toml:"target,omitempty"`
	Model  string `toml:"model,omitempty"`

	// PoolWorkers is the bounded concurrency for EmbedMany.
	PoolWorkers int `toml:"pool_workers,omitempty"`

	// BatchCap is the hard ceiling for adaptive batch sizing.
	BatchCap int `toml:"batch_cap,omitempty"`

	// GrowThreshold / ShrinkThreshold are the per-item latency deltas that
	// drive hill-climbing batch sizing (fractions, e.g. 0.10 and 0.25).
	GrowThreshold   float64 `toml:"grow_threshold,omitempty"`
	ShrinkThreshold float64 `toml:"shrink_threshold,omitempty"`

	// MinMemoryMB and MinCores gate the accelerated execution provider.
	MinMemoryMB int `toml:"min_memory_mb,omitempty"`
	MinCores    int `toml:"min_cores,omitempty"`

	// AdapterDenylist lists adapter description substrings that force the
	// fallback backend (software emulated adapters).
	AdapterDenylist []string `toml:"adapter_denylist,omitempty"`
}

// StoreConfig holds local vector store settings.
type StoreConfig struct {
	// SQLitePath is the structured table + vec index database file.
	SQLitePath string `toml:"sqlite_path,omitempty"`

	// KVPath is the durable key-value mirror database file.
	KVPath string `toml:"kv_path,omitempty"`

	// TopK is the candidate count requested from similarity search.
	TopK int `toml:"top_k,omitempty"`

	// MinSimilarity discards retrieval candidates scoring below it.
	MinSimilarity float64 `toml:"min_similarity,omitempty"`
}

// RemoteConfig holds the remote document store (qdrant) settings.
// The remote tier is a last-resort retrieval fallback and export target.
type RemoteConfig struct {
	Enabled    bool   `toml:"enabled,omitempty"`
	Host       string `toml:"host,omitempty"`
	Port       int    `toml:"port,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// GenerationConfig holds the generative-language collaborator settings.
type GenerationConfig struct {
	// Provider is "anthropic" or "ollama".
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	Target   string `toml:"target,omitempty"`

	// APIKey authenticates hosted providers. Usually supplied through
	// ENGRAM_GENERATION_API_KEY rather than the config file.
	APIKey string `toml:"api_key,omitempty"`

	MaxTokens int `toml:"max_tokens,omitempty"`

	// ContextTokens is the retrieval budget passed to the archive bridge.
	ContextTokens int `toml:"context_tokens,omitempty"`

	// WindowTokens caps the estimated token total of window history sent
	// with each generation request.
	WindowTokens int `toml:"window_tokens,omitempty"`
}

// EventsConfig holds optional turn-persisted event telemetry settings.
type EventsConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// WorkerConfig holds the background execution boundary settings.
type WorkerConfig struct {
	// RequestTimeoutSeconds bounds every cross-boundary call so a wedged
	// background context cannot hang callers indefinitely.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds,omitempty"`
}
