// Package config loads service configuration from a YAML file plus .env
// environment variables (API keys and the database URL stay out of the file).
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Duration wraps time.Duration so YAML values can be written as "30s", "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every tunable of the retrieval-extraction pipeline.
type Config struct {
	Upstream struct {
		BaseURL        string   `yaml:"base_url"`
		RequestTimeout Duration `yaml:"request_timeout"`
		RetryAttempts  int      `yaml:"retry_attempts"`
		RetryBackoff   Duration `yaml:"retry_backoff"`
		RatePerSecond  float64  `yaml:"rate_per_second"`
		RateBurst      int      `yaml:"rate_burst"`
	} `yaml:"upstream"`

	Challenge struct {
		SolverURL   string   `yaml:"solver_url"`
		MaxAttempts int      `yaml:"max_attempts"`
		Backoff     Duration `yaml:"backoff"`
	} `yaml:"challenge"`

	Extraction struct {
		Provider   string   `yaml:"provider"` // "openrouter" or "gemini"
		Model      string   `yaml:"model"`
		Timeout    Duration `yaml:"timeout"`
		MaxRetries int      `yaml:"max_retries"`
	} `yaml:"extraction"`

	Cache struct {
		DatabaseURLEnv string   `yaml:"database_url_env"`
		FileDir        string   `yaml:"file_dir"`
		TTL            Duration `yaml:"ttl"` // 0 disables time-based expiry
	} `yaml:"cache"`

	Match struct {
		MinSimilarity int `yaml:"min_similarity"`
	} `yaml:"match"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Upstream.BaseURL = "https://www.bundesanzeiger.de"
	cfg.Upstream.RequestTimeout = Duration(30 * time.Second)
	cfg.Upstream.RetryAttempts = 3
	cfg.Upstream.RetryBackoff = Duration(1 * time.Second)
	cfg.Upstream.RatePerSecond = 2
	cfg.Upstream.RateBurst = 4
	cfg.Challenge.MaxAttempts = 3
	cfg.Challenge.Backoff = Duration(500 * time.Millisecond)
	cfg.Extraction.Provider = "openrouter"
	cfg.Extraction.Model = "deepseek/deepseek-r1-0528"
	cfg.Extraction.Timeout = Duration(60 * time.Second)
	cfg.Extraction.MaxRetries = 2
	cfg.Cache.DatabaseURLEnv = "DATABASE_URL"
	cfg.Cache.FileDir = ".cache/reports"
	cfg.Match.MinSimilarity = 65
	cfg.LogLevel = "info"
	return cfg
}

// Load reads the YAML config at path on top of the defaults and loads .env.
// A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabaseURL resolves the configured database URL environment variable.
func (c *Config) DatabaseURL() string {
	return os.Getenv(c.Cache.DatabaseURLEnv)
}
