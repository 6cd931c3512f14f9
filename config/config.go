package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	APIURL    string `env:"API_URL" envDefault:"http://localhost:8000"`
	AuthToken string `env:"AUTH_TOKEN"`

	MaxRecording  time.Duration `env:"MAX_RECORDING" envDefault:"180s"`
	Silence       time.Duration `env:"SILENCE_THRESHOLD" envDefault:"6s"`
	SuggestPoll   time.Duration `env:"SUGGEST_POLL" envDefault:"1s"`
	WatchdogPoll  time.Duration `env:"WATCHDOG_POLL" envDefault:"250ms"`
	HTTPTimeout   time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	SuggestTimeout time.Duration `env:"SUGGEST_TIMEOUT" envDefault:"15s"`

	SampleRate int    `env:"SAMPLE_RATE" envDefault:"48000"`
	Device     string `env:"DEVICE"`

	StateDir    string `env:"STATE_DIR"`
	LogPath     string `env:"LOG_PATH"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	APIURL      string
	AuthToken   string
	Device      string
	StateDir    string
	LogPath     string
	MetricsAddr string
}

const envPrefix = "MONOLOGUE_"

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.APIURL != "" {
		cfg.APIURL = overrides.APIURL
	}
	if overrides.AuthToken != "" {
		cfg.AuthToken = overrides.AuthToken
	}
	if overrides.Device != "" {
		cfg.Device = overrides.Device
	}
	if overrides.StateDir != "" {
		cfg.StateDir = overrides.StateDir
	}
	if overrides.LogPath != "" {
		cfg.LogPath = overrides.LogPath
	}
	if overrides.MetricsAddr != "" {
		cfg.MetricsAddr = overrides.MetricsAddr
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, err
		}
		cfg.StateDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url must be http or https, got %q", c.APIURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api url has no host: %q", c.APIURL)
	}

	var errs []error
	for name, d := range map[string]time.Duration{
		"max recording":     c.MaxRecording,
		"silence threshold": c.Silence,
		"suggest poll":      c.SuggestPoll,
		"watchdog poll":     c.WatchdogPoll,
		"http timeout":      c.HTTPTimeout,
		"session ttl":       c.SessionTTL,
		"suggest timeout":   c.SuggestTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("sample rate must be at least 8000, got %d", c.SampleRate))
	}
	return errors.Join(errs...)
}

// MaxSeconds is the recording limit in whole seconds.
func (c *Config) MaxSeconds() int {
	return int(c.MaxRecording / time.Second)
}

func defaultStateDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return dir + string(os.PathSeparator) + "monologue", nil
}
