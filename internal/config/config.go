package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the engine configuration. Values come from an optional YAML
// file, overridden by FDX_-prefixed environment variables.
type Config struct {
	WatchDirs []string `yaml:"watch_dirs"`
	DataDir   string   `yaml:"data_dir"`
	Listen    string   `yaml:"listen"`

	ExcludeExts  []string `yaml:"exclude_exts"`
	ExcludeGlobs []string `yaml:"exclude_globs"`
	MaxFileSize  int64    `yaml:"max_file_size_mb"`

	FullInterval    time.Duration `yaml:"-"`
	IncrInterval    time.Duration `yaml:"-"`
	CleanupInterval time.Duration `yaml:"-"`
	RetentionDays   int           `yaml:"retention_days"`

	ReaderPoolSize    int           `yaml:"reader_pool_size"`
	AcquireTimeout    time.Duration `yaml:"-"`
	RequestTimeout    time.Duration `yaml:"-"`
	ExtractTimeout    time.Duration `yaml:"-"`
	CorrelationWindow time.Duration `yaml:"-"`
	CacheTTL          time.Duration `yaml:"-"`

	SemanticEnabled bool    `yaml:"semantic_enabled"`
	RerankEnabled   bool    `yaml:"rerank_enabled"`
	LexicalWeight   float64 `yaml:"lexical_weight"`
	SemanticWeight  float64 `yaml:"semantic_weight"`

	LLMBaseURL  string `yaml:"llm_base_url"`
	EmbedModel  string `yaml:"embed_model"`
	RerankModel string `yaml:"rerank_model"`

	WatchEnabled bool `yaml:"watch_enabled"`

	// Interval seconds as written in YAML; folded into the durations above.
	FullIntervalSecs      int `yaml:"full_interval_secs"`
	IncrIntervalSecs      int `yaml:"incr_interval_secs"`
	CleanupIntervalSecs   int `yaml:"cleanup_interval_secs"`
	AcquireTimeoutSecs    int `yaml:"acquire_timeout_secs"`
	RequestTimeoutSecs    int `yaml:"request_timeout_secs"`
	ExtractTimeoutSecs    int `yaml:"extract_timeout_secs"`
	CorrelationWindowSecs int `yaml:"correlation_window_secs"`
	CacheTTLSecs          int `yaml:"cache_ttl_secs"`
}

func Default() *Config {
	return &Config{
		DataDir:               defaultDataDir(),
		Listen:                "127.0.0.1:7457",
		MaxFileSize:           1024,
		FullIntervalSecs:      7200,
		IncrIntervalSecs:      1800,
		CleanupIntervalSecs:   86400,
		RetentionDays:         90,
		ReaderPoolSize:        8,
		AcquireTimeoutSecs:    5,
		RequestTimeoutSecs:    30,
		ExtractTimeoutSecs:    20,
		CorrelationWindowSecs: 120,
		CacheTTLSecs:          3600,
		SemanticEnabled:       true,
		RerankEnabled:         false,
		LexicalWeight:         0.5,
		SemanticWeight:        0.5,
		LLMBaseURL:            "http://localhost:11434",
		EmbedModel:            "nomic-embed-text",
		WatchEnabled:          true,
	}
}

// Load reads the YAML file at path (skipped when empty or missing), loads
// a .env file if present, then applies FDX_ environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnv(cfg)

	cfg.foldIntervals()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) foldIntervals() {
	c.FullInterval = secs(c.FullIntervalSecs, 7200)
	c.IncrInterval = secs(c.IncrIntervalSecs, 1800)
	c.CleanupInterval = secs(c.CleanupIntervalSecs, 86400)
	c.AcquireTimeout = secs(c.AcquireTimeoutSecs, 5)
	c.RequestTimeout = secs(c.RequestTimeoutSecs, 30)
	c.ExtractTimeout = secs(c.ExtractTimeoutSecs, 20)
	c.CorrelationWindow = secs(c.CorrelationWindowSecs, 120)
	c.CacheTTL = secs(c.CacheTTLSecs, 3600)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.ReaderPoolSize <= 0 {
		return fmt.Errorf("reader_pool_size must be positive")
	}
	if c.LexicalWeight < 0 || c.SemanticWeight < 0 {
		return fmt.Errorf("score weights must be non-negative")
	}
	if c.LexicalWeight == 0 && c.SemanticWeight == 0 {
		c.LexicalWeight, c.SemanticWeight = 0.5, 0.5
	}
	return nil
}

// MaxFileSizeBytes returns the exclusion threshold in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	if c.MaxFileSize <= 0 {
		return 1024 << 20
	}
	return c.MaxFileSize << 20
}

func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "filedex.db")
}

func (c *Config) LexicalPath() string {
	return filepath.Join(c.DataDir, "lexical.bleve")
}

func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "query-cache.db")
}

func applyEnv(cfg *Config) {
	if v, ok := lookup("WATCH_DIRS"); ok {
		cfg.WatchDirs = splitList(v)
	}
	if v, ok := lookup("DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := lookup("LISTEN"); ok {
		cfg.Listen = v
	}
	if v, ok := lookup("EXCLUDE_EXTS"); ok {
		cfg.ExcludeExts = splitList(v)
	}
	if v, ok := lookup("EXCLUDE_GLOBS"); ok {
		cfg.ExcludeGlobs = splitList(v)
	}
	setInt64(&cfg.MaxFileSize, "MAX_FILE_SIZE_MB")
	setInt(&cfg.FullIntervalSecs, "FULL_INTERVAL_SECS")
	setInt(&cfg.IncrIntervalSecs, "INCR_INTERVAL_SECS")
	setInt(&cfg.CleanupIntervalSecs, "CLEANUP_INTERVAL_SECS")
	setInt(&cfg.RetentionDays, "RETENTION_DAYS")
	setInt(&cfg.ReaderPoolSize, "READER_POOL_SIZE")
	setInt(&cfg.AcquireTimeoutSecs, "ACQUIRE_TIMEOUT_SECS")
	setInt(&cfg.RequestTimeoutSecs, "REQUEST_TIMEOUT_SECS")
	setInt(&cfg.ExtractTimeoutSecs, "EXTRACT_TIMEOUT_SECS")
	setInt(&cfg.CorrelationWindowSecs, "CORRELATION_WINDOW_SECS")
	setInt(&cfg.CacheTTLSecs, "CACHE_TTL_SECS")
	setBool(&cfg.SemanticEnabled, "SEMANTIC_ENABLED")
	setBool(&cfg.RerankEnabled, "RERANK_ENABLED")
	setBool(&cfg.WatchEnabled, "WATCH_ENABLED")
	setFloat(&cfg.LexicalWeight, "LEXICAL_WEIGHT")
	setFloat(&cfg.SemanticWeight, "SEMANTIC_WEIGHT")
	if v, ok := lookup("LLM_BASE_URL"); ok {
		cfg.LLMBaseURL = v
	}
	if v, ok := lookup("EMBED_MODEL"); ok {
		cfg.EmbedModel = v
	}
	if v, ok := lookup("RERANK_MODEL"); ok {
		cfg.RerankModel = v
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv("FDX_" + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func secs(n int, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filedex"
	}
	return filepath.Join(home, ".filedex")
}
