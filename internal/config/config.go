// Package config loads the service configuration from environment
// variables, with documented defaults for every knob spec.md §6.5
// requires.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-tunable setting of the streaming core.
type Config struct {
	// ListenAddr is the address the WebSocket transport listens on.
	ListenAddr string

	// StreamingEnabled is the streaming master enable flag.
	StreamingEnabled bool

	// DefaultCodec and DefaultSampleRate are loaded from the environment
	// but not read by the transport: audio.ready carries the listener's
	// own desiredCodec and desiredSampleRate.
	DefaultCodec      string
	DefaultSampleRate int

	// FrameMagic is the 4-byte magic prefixing every binary audio frame.
	FrameMagic string

	// JitterBufferHintMs is the jitter-buffer hint in milliseconds. It is
	// loaded from the environment only; the transport does not include
	// it in audio.ready.
	JitterBufferHintMs int

	// MaxQueuedSegments is the per-session orchestrator FIFO capacity.
	MaxQueuedSegments int

	// MaxConcurrentPoolSessions caps PoolSessions per "src:tgt" key
	// (spec.md §4.C's MAX_CONCURRENT).
	MaxConcurrentPoolSessions int

	// MaxConcurrentSynthesis bounds concurrent in-flight TTS synthesis
	// calls across all sessions in the orchestrator. Distinct from
	// MaxConcurrentPoolSessions: one tunes the translation pool, the
	// other tunes TTS provider concurrency.
	MaxConcurrentSynthesis int

	// Translation timeouts.
	PartialTranslationTimeout time.Duration
	FinalTranslationTimeout   time.Duration

	// PoolSessionConnectTimeout bounds PoolSession dial time.
	PoolSessionConnectTimeout time.Duration

	// HeartbeatInterval is the PoolSession idle-side keepalive period.
	HeartbeatInterval time.Duration

	// Translation cache sizing.
	PartialCacheSize int
	PartialCacheTTL  time.Duration
	FinalCacheSize   int
	FinalCacheTTL    time.Duration

	// TranslationAPIURL/APIKey configure the remote translation service.
	TranslationAPIURL string
	TranslationAPIKey string
}

// Load reads the configuration from the environment, falling back to
// the documented defaults for anything unset.
func Load() *Config {
	return &Config{
		ListenAddr:                envOrDefault("LISTEN_ADDR", ":8080"),
		StreamingEnabled:          envOrDefaultBool("STREAMING_ENABLED", true),
		DefaultCodec:              envOrDefault("DEFAULT_CODEC", "mp3"),
		DefaultSampleRate:         envOrDefaultInt("DEFAULT_SAMPLE_RATE", 24000),
		FrameMagic:                envOrDefault("FRAME_MAGIC", "EXA1"),
		JitterBufferHintMs:        envOrDefaultInt("JITTER_BUFFER_HINT_MS", 200),
		MaxQueuedSegments:         envOrDefaultInt("MAX_QUEUED", 10),
		MaxConcurrentPoolSessions: envOrDefaultInt("MAX_CONCURRENT", 5),
		MaxConcurrentSynthesis:    envOrDefaultInt("MAX_CONCURRENT_SYNTHESIS", 5),
		PartialTranslationTimeout: envOrDefaultDuration("TRANSLATION_TIMEOUT_PARTIAL", 15*time.Second),
		FinalTranslationTimeout:   envOrDefaultDuration("TRANSLATION_TIMEOUT_FINAL", 20*time.Second),
		PoolSessionConnectTimeout: envOrDefaultDuration("POOL_CONNECT_TIMEOUT", 10*time.Second),
		HeartbeatInterval:         envOrDefaultDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		PartialCacheSize:          envOrDefaultInt("PARTIAL_CACHE_SIZE", 200),
		PartialCacheTTL:           envOrDefaultDuration("PARTIAL_CACHE_TTL", 2*time.Minute),
		FinalCacheSize:            envOrDefaultInt("FINAL_CACHE_SIZE", 100),
		FinalCacheTTL:             envOrDefaultDuration("FINAL_CACHE_TTL", 10*time.Minute),
		TranslationAPIURL:         envOrDefault("TRANSLATION_API_URL", "wss://api.example.com/v1/realtime"),
		TranslationAPIKey:         os.Getenv("TRANSLATION_API_KEY"),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
