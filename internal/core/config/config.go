package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/neilberkman/linkscout/internal/core/transport"
)

const (
	DefaultEndpoint    = "ws://127.0.0.1:5000/ws"
	DefaultAPIBase     = "http://127.0.0.1:5000"
	DefaultSearchLimit = 10
	DefaultLogLevel    = "info"
)

// Environment overrides, applied after the file
const (
	EnvEndpoint = "LINKSCOUT_ENDPOINT"
	EnvAPIBase  = "LINKSCOUT_API_BASE"
)

// Duration is a time.Duration that decodes from TOML strings like "1500ms"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Demo tunes the built-in exploration process
type Demo struct {
	MaxDepth       int      `toml:"max_depth"`
	MaxPerLevel    int      `toml:"max_per_level"`
	CallsPerMinute int      `toml:"calls_per_minute"`
	StepDelay      Duration `toml:"step_delay"`
}

type Config struct {
	Endpoint    string   `toml:"endpoint"`
	APIBase     string   `toml:"api_base"`
	MaxRetries  int      `toml:"max_retries"`
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
	DialTimeout Duration `toml:"dial_timeout"`
	SearchLimit int      `toml:"search_limit"`
	LogLevel    string   `toml:"log_level"`
	LogFile     string   `toml:"log_file"`
	DBPath      string   `toml:"db_path"`
	Demo        Demo     `toml:"demo"`
}

// Dir is ~/.config/linkscout, or a relative fallback when home is unknown
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".linkscout"
	}
	return filepath.Join(home, ".config", "linkscout")
}

// DefaultPath is where Load looks when no path is given
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Default returns the built-in settings
func Default() *Config {
	dir := Dir()
	return &Config{
		Endpoint:    DefaultEndpoint,
		APIBase:     DefaultAPIBase,
		MaxRetries:  5,
		BaseDelay:   Duration{time.Second},
		MaxDelay:    Duration{5 * time.Second},
		DialTimeout: Duration{10 * time.Second},
		SearchLimit: DefaultSearchLimit,
		LogLevel:    DefaultLogLevel,
		LogFile:     filepath.Join(dir, "linkscout.log"),
		DBPath:      filepath.Join(dir, "history.db"),
		Demo: Demo{
			MaxDepth:       2,
			MaxPerLevel:    3,
			CallsPerMinute: 15,
			StepDelay:      Duration{time.Second},
		},
	}
}

// Load reads path (or DefaultPath when empty) over the defaults.
// A missing file means defaults; a malformed one is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	} else {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvEndpoint)); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIBase)); v != "" {
		cfg.APIBase = v
	}

	cfg.LogFile = expandHome(cfg.LogFile)
	cfg.DBPath = expandHome(cfg.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the transport cannot use
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.BaseDelay.Duration <= 0 || c.MaxDelay.Duration < c.BaseDelay.Duration {
		return fmt.Errorf("invalid delays: base_delay %s, max_delay %s", c.BaseDelay, c.MaxDelay)
	}
	if c.Demo.MaxDepth < 0 || c.Demo.MaxPerLevel < 0 || c.Demo.CallsPerMinute < 0 {
		return errors.New("demo settings must not be negative")
	}
	return nil
}

// Transport builds the connection settings for endpoint
// (c.Endpoint when empty).
func (c *Config) Transport(endpoint string) transport.Config {
	if endpoint == "" {
		endpoint = c.Endpoint
	}
	tc := transport.DefaultConfig(endpoint)
	tc.MaxRetries = c.MaxRetries
	tc.BaseDelay = c.BaseDelay.Duration
	tc.MaxDelay = c.MaxDelay.Duration
	tc.DialTimeout = c.DialTimeout.Duration
	return tc
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
