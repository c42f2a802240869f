package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"go.yaml.in/yaml/v4"

	"github.com/Rin0913/devicewatch/internal/logger"
)

const (
	DefaultListenAddr     = ":8080"
	DefaultRedisAddr      = "redis:6379"
	DefaultInterval       = 10 * time.Second
	DefaultProbeTimeout   = 2 * time.Second
	DefaultMaxConcurrency = 50
	DefaultMethod         = "icmp"
)

type Config struct {
	ListenAddr string                  `yaml:"listen_addr"`
	Redis      RedisConfig             `yaml:"redis"`
	Log        logger.Config           `yaml:"log"`
	Monitor    MonitorConfig           `yaml:"monitor"`
	Checkers   map[string]CheckerEntry `yaml:"checkers"`
	CORS       CORSConfig              `yaml:"cors"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MonitorConfig drives the liveness scheduler.
type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	DefaultMethod  string        `yaml:"default_method"`
}

type CheckerEntry struct {
	Type    string `yaml:"type"`
	Command string `yaml:"command"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func Default() *Config {
	return &Config{
		ListenAddr: DefaultListenAddr,
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		Log: logger.Config{
			Level:  "info",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Interval:       DefaultInterval,
			ProbeTimeout:   DefaultProbeTimeout,
			MaxConcurrency: DefaultMaxConcurrency,
			DefaultMethod:  DefaultMethod,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads path on top of the defaults and applies env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"PING_INTERVAL", &cfg.Monitor.Interval},
		{"PROBE_TIMEOUT", &cfg.Monitor.ProbeTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.env, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("PROBE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PROBE_CONCURRENCY: %w", err)
		}
		cfg.Monitor.MaxConcurrency = n
	}

	return nil
}
