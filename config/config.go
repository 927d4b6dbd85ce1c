// Package config loads runtime settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/thinkdocs/ai"
	"github.com/poiesic/thinkdocs/core"
)

// Storage backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config is the complete runtime configuration.
type Config struct {
	// DatabaseURL selects the PostgreSQL backend when set. Otherwise an
	// embedded BadgerDB database is opened at DataDir.
	DatabaseURL string
	DataDir     string

	AI             ai.Config
	EmbedBatchSize int
	EmbedPoolSize  int

	Chunking    core.ChunkingConfig
	MaxFileSize int64
	KeepInput   bool

	// TokenEncoding enables per-chunk token counts with the named tiktoken
	// encoding. Empty disables counting.
	TokenEncoding string

	OCREnabled   bool
	OCRLanguages []string
	OCRThreshold float64

	MaxAttempts int
	RetryDelay  time.Duration
	SoftTimeout time.Duration
	HardTimeout time.Duration

	StaleAfter    time.Duration
	SweepInterval time.Duration

	MinSimilarity float64

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	LogLevel string
}

// Load reads the given .env files, or ./.env when none are named, and then
// builds and validates a Config from the environment.
func Load(files ...string) (*Config, error) {
	if err := LoadEnv(files...); err != nil {
		return nil, err
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv copies variables from the given .env files, or ./.env when none
// are named, into the process environment. Variables already set win over
// file values. A missing default .env is not an error.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	return nil
}

// FromEnv builds a Config from the current environment without validating it.
func FromEnv() *Config {
	aiDefaults := ai.DefaultConfig()
	chunkDefaults := core.DefaultChunkingConfig()

	return &Config{
		DatabaseURL: getEnv("THINKDOCS_DATABASE_URL", ""),
		DataDir:     getEnv("THINKDOCS_DATA_DIR", "thinkdocs-data"),

		AI: ai.Config{
			Provider:       getEnv("THINKDOCS_EMBED_PROVIDER", aiDefaults.Provider),
			EmbeddingHost:  getEnv("THINKDOCS_EMBED_HOST", aiDefaults.EmbeddingHost),
			EmbeddingModel: getEnv("THINKDOCS_EMBED_MODEL", aiDefaults.EmbeddingModel),
			APIKey:         getEnv("THINKDOCS_API_KEY", ""),
			Dimension:      getEnvInt("THINKDOCS_EMBED_DIM", aiDefaults.Dimension),
		},
		EmbedBatchSize: getEnvInt("THINKDOCS_EMBED_BATCH_SIZE", 32),
		EmbedPoolSize:  getEnvInt("THINKDOCS_EMBED_WORKERS", 4),

		Chunking: core.ChunkingConfig{
			ChunkSize:          getEnvInt("THINKDOCS_CHUNK_SIZE", chunkDefaults.ChunkSize),
			Overlap:            getEnvInt("THINKDOCS_CHUNK_OVERLAP", chunkDefaults.Overlap),
			MinChunkSize:       getEnvInt("THINKDOCS_CHUNK_MIN_SIZE", chunkDefaults.MinChunkSize),
			Language:           getEnv("THINKDOCS_LANGUAGE", chunkDefaults.Language),
			PreserveParagraphs: getEnvBool("THINKDOCS_PRESERVE_PARAGRAPHS", chunkDefaults.PreserveParagraphs),
			PreserveSentences:  getEnvBool("THINKDOCS_PRESERVE_SENTENCES", chunkDefaults.PreserveSentences),
		},
		MaxFileSize: int64(getEnvInt("THINKDOCS_MAX_FILE_SIZE", 100*1024*1024)),
		KeepInput:   getEnvBool("THINKDOCS_KEEP_INPUT", false),

		TokenEncoding: getEnv("THINKDOCS_TOKEN_ENCODING", ""),

		OCREnabled:   getEnvBool("THINKDOCS_OCR", false),
		OCRLanguages: splitList(getEnv("THINKDOCS_OCR_LANGUAGES", "eng")),
		OCRThreshold: getEnvFloat("THINKDOCS_OCR_THRESHOLD", 0.8),

		MaxAttempts: getEnvInt("THINKDOCS_MAX_ATTEMPTS", 3),
		RetryDelay:  getEnvDuration("THINKDOCS_RETRY_DELAY", 2*time.Second),
		SoftTimeout: getEnvDuration("THINKDOCS_SOFT_TIMEOUT", 5*time.Minute),
		HardTimeout: getEnvDuration("THINKDOCS_HARD_TIMEOUT", 10*time.Minute),

		StaleAfter:    getEnvDuration("THINKDOCS_STALE_AFTER", 30*time.Minute),
		SweepInterval: getEnvDuration("THINKDOCS_SWEEP_INTERVAL", 5*time.Minute),

		MinSimilarity: getEnvFloat("THINKDOCS_MIN_SIMILARITY", 0.6),

		S3Region:    getEnv("AWS_REGION", ""),
		S3Endpoint:  getEnv("THINKDOCS_S3_ENDPOINT", ""),
		S3AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		LogLevel: getEnv("THINKDOCS_LOG_LEVEL", "info"),
	}
}

// Backend names the storage backend the configuration selects.
func (c *Config) Backend() string {
	if c.DatabaseURL != "" {
		return BackendPostgres
	}
	return BackendBadger
}

// S3Enabled reports whether s3:// inputs should be accepted.
func (c *Config) S3Enabled() bool {
	return c.S3Region != "" || c.S3Endpoint != ""
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend() == BackendBadger && c.DataDir == "" {
		errs = append(errs, errors.New("THINKDOCS_DATA_DIR is required without THINKDOCS_DATABASE_URL"))
	}
	if err := c.AI.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := core.ValidateChunkingConfig(c.Chunking); err != nil {
		errs = append(errs, err)
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("THINKDOCS_MAX_FILE_SIZE must be positive"))
	}
	if c.EmbedBatchSize <= 0 || c.EmbedPoolSize <= 0 {
		errs = append(errs, errors.New("embedding batch size and workers must be positive"))
	}
	if c.OCRThreshold <= 0 || c.OCRThreshold > 1 {
		errs = append(errs, errors.New("THINKDOCS_OCR_THRESHOLD must be in (0, 1]"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("THINKDOCS_MAX_ATTEMPTS must be at least 1"))
	}
	if c.SoftTimeout <= 0 || c.HardTimeout < c.SoftTimeout {
		errs = append(errs, errors.New("timeouts must be positive and the hard timeout at least the soft one"))
	}
	if c.StaleAfter <= 0 || c.SweepInterval <= 0 {
		errs = append(errs, errors.New("stale age and sweep interval must be positive"))
	}
	if c.MinSimilarity < -1 || c.MinSimilarity > 1 {
		errs = append(errs, errors.New("THINKDOCS_MIN_SIMILARITY must be in [-1, 1]"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring non-integer setting", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring non-boolean setting", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring non-numeric setting", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
