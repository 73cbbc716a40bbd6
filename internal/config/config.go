package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SimilarityConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// Threads selects the scorer strategy: 1 means sequential per-group
	// calls, >1 a bounded worker pool of that size.
	Threads int `yaml:"threads"`
}

type BackfillConfig struct {
	BatchSize int    `yaml:"batch_size"`
	QueueName string `yaml:"queue_name"`
	// Workers bounds concurrent task invocations. Keep at 1 unless the
	// queue only ever carries disjoint cohorts; project order within a
	// cohort must stay strictly sequential.
	Workers     int           `yaml:"workers"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
	DequeueWait time.Duration `yaml:"dequeue_wait"`
}

type OpsConfig struct {
	Port       int           `yaml:"port"`
	APIKey     string        `yaml:"api_key"`
	AuthSecret string        `yaml:"auth_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Backfill   BackfillConfig   `yaml:"backfill"`
	// Cohorts maps cohort names to ordered project id lists. Resolved on
	// every cohort advance, so edits apply at the next project boundary.
	Cohorts map[string][]int64 `yaml:"cohorts"`
	Ops     OpsConfig          `yaml:"ops"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Similarity.BaseURL == "" {
		return nil, errors.New("similarity.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Similarity.Timeout <= 0 {
		cfg.Similarity.Timeout = 30 * time.Second
	}
	if cfg.Similarity.Threads <= 0 {
		cfg.Similarity.Threads = 1
	}
	if cfg.Backfill.BatchSize <= 0 {
		cfg.Backfill.BatchSize = 1000
	}
	if cfg.Backfill.QueueName == "" {
		cfg.Backfill.QueueName = "grouping-backfill"
	}
	if cfg.Backfill.Workers <= 0 {
		cfg.Backfill.Workers = 1
	}
	if cfg.Backfill.TaskTimeout <= 0 {
		cfg.Backfill.TaskTimeout = 15 * time.Minute
	}
	if cfg.Backfill.DequeueWait <= 0 {
		cfg.Backfill.DequeueWait = 5 * time.Second
	}
	if cfg.Ops.Port <= 0 {
		cfg.Ops.Port = 8090
	}
	if cfg.Ops.TokenTTL <= 0 {
		cfg.Ops.TokenTTL = 30 * time.Minute
	}
}
