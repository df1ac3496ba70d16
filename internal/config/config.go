package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	WSAddr   string `yaml:"ws_addr"`
	HTTPAddr string `yaml:"http_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	DefaultDifficulty   int    `yaml:"default_difficulty"`
	MaxDepth            int    `yaml:"max_depth"`
	SessionTTLSec       int    `yaml:"session_ttl"`
	AnalysisConcurrency int    `yaml:"analysis_concurrency"`
	MessagesDir         string `yaml:"messages_dir"`
}

func defaults() *AppConfig {
	return &AppConfig{
		WSAddr:            ":8080",
		HTTPAddr:          ":8081",
		DefaultDifficulty: 1,
		MaxDepth:          6,
		SessionTTLSec:     3600,
	}
}

// Load builds the config from defaults, then the YAML file named by
// ENGINE_CONFIG_FILE (if any), then environment variables.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("ENGINE_CONFIG_FILE")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	// 빈 값이면 분석 API 비활성화
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MESSAGES_DIR")); v != "" {
		cfg.MessagesDir = v
	}
	positiveInt("ENGINE_DEFAULT_DIFFICULTY", &cfg.DefaultDifficulty)
	positiveInt("ENGINE_MAX_DEPTH", &cfg.MaxDepth)
	positiveInt("SESSION_TTL", &cfg.SessionTTLSec)
	positiveInt("ANALYSIS_CONCURRENCY", &cfg.AnalysisConcurrency)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) overlayFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) validate() error {
	if c.WSAddr == "" {
		return errors.New("WS_ADDR is required")
	}
	if c.MaxDepth < 1 {
		return errors.New("ENGINE_MAX_DEPTH must be at least 1")
	}
	if c.DefaultDifficulty < 1 || c.DefaultDifficulty > c.MaxDepth {
		return fmt.Errorf("ENGINE_DEFAULT_DIFFICULTY must be within 1..%d", c.MaxDepth)
	}
	if c.SessionTTLSec < 1 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}

// SessionTTL is how long a stored session snapshot survives without updates.
func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}

func positiveInt(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}
