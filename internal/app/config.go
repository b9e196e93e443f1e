package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
)

// Config is the process configuration: env for deployment knobs, an
// optional YAML file (CONFIG_FILE) for retrieval tuning.
type Config struct {
	ListenAddr string
	DataDir    string
	LogLevel   string
	LogMode    string

	PageCacheTTL     time.Duration
	PageCacheBackend string // "memory" or "redis"

	StrategyWeights map[string]float64 `yaml:"strategy_weights"`
	Stopwords       []string           `yaml:"stopwords"`
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr:       envutil.Str("LISTEN_ADDR", ":8080"),
		DataDir:          envutil.Str("DATA_DIR", ""),
		LogLevel:         envutil.Str("LOG_LEVEL", "info"),
		LogMode:          envutil.Str("LOG_MODE", "production"),
		PageCacheTTL:     envutil.Seconds("PAGE_CACHE_TTL_SECONDS", 5*time.Minute),
		PageCacheBackend: envutil.Str("PAGE_CACHE_BACKEND", "memory"),
	}
	if cfg.DataDir == "" {
		return cfg, fmt.Errorf("missing DATA_DIR")
	}

	if path := envutil.Str("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		var file struct {
			StrategyWeights map[string]float64 `yaml:"strategy_weights"`
			Stopwords       []string           `yaml:"stopwords"`
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
		cfg.StrategyWeights = file.StrategyWeights
		cfg.Stopwords = file.Stopwords
	}
	return cfg, nil
}
