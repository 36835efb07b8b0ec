package model

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/haasonsaas/llama-agent/internal/retry"
)

// Config configures one model load.
type Config struct {
	Source      Source       `yaml:"source"`
	BatchSize   int          `yaml:"batch_size"`
	UseHFParams bool         `yaml:"use_hf_params"`
	Debug       bool         `yaml:"debug"`
	Retry       retry.Config `yaml:"retry"`

	// CacheDir overrides the platform default; CacheMaxSizeGB overrides
	// the default 50GB LRU ceiling. Both fall back to
	// LLAMA_AGENT_CACHE_DIR / LLAMA_AGENT_CACHE_MAX_SIZE when zero.
	CacheDir       string  `yaml:"cache_dir"`
	CacheMaxSizeGB float64 `yaml:"cache_max_size_gb"`
}

const defaultCacheMaxSizeGB = 50

func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 512
	}
	if c.Retry == (retry.Config{}) {
		c.Retry = retry.DefaultConfig()
	}
	if c.CacheDir == "" {
		if env := os.Getenv("LLAMA_AGENT_CACHE_DIR"); env != "" {
			c.CacheDir = env
		} else {
			c.CacheDir = defaultCacheDir()
		}
	}
	if c.CacheMaxSizeGB <= 0 {
		if env := os.Getenv("LLAMA_AGENT_CACHE_MAX_SIZE"); env != "" {
			if gb, err := strconv.ParseFloat(env, 64); err == nil && gb > 0 {
				c.CacheMaxSizeGB = gb
			}
		}
	}
	if c.CacheMaxSizeGB <= 0 {
		c.CacheMaxSizeGB = defaultCacheMaxSizeGB
	}
	return c
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "llama-agent", "models")
}
