package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"okx-exec/pkg/logger"
)

// Config is the whole YAML file. Secrets never come from the file; they are
// read from the environment after an optional .env is loaded.
type Config struct {
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Broker    BrokerConfig    `yaml:"broker"`
	Feed      FeedConfig      `yaml:"feed"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Log       logger.Config   `yaml:"log"`
	Journal   JournalConfig   `yaml:"journal"`
	API       APIConfig       `yaml:"api"`
}

// ExchangeConfig selects the venue endpoint and carries credentials.
type ExchangeConfig struct {
	Name    string        `yaml:"name"`
	Sandbox bool          `yaml:"sandbox"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	APIKey     string `yaml:"-"`
	APISecret  string `yaml:"-"`
	Passphrase string `yaml:"-"`
}

// BrokerConfig configures the ledger and, in dry-run, the paper venue.
type BrokerConfig struct {
	Instrument string  `yaml:"instrument"`
	Type       string  `yaml:"type"` // SPOT or SWAP
	Leverage   float64 `yaml:"leverage"`
	MarginMode string  `yaml:"margin_mode"`
	Cash       float64 `yaml:"cash"`
	Slippage   float64 `yaml:"slippage"` // fraction applied to limit prices
	DryRun     bool    `yaml:"dry_run"`
	FeeRate    float64 `yaml:"fee_rate"` // paper fills only
}

// FeedConfig configures bar delivery.
type FeedConfig struct {
	Interval     string        `yaml:"interval"`
	Stream       bool          `yaml:"stream"` // websocket when true, REST polling otherwise
	Preload      int           `yaml:"preload"`
	PageSize     int           `yaml:"page_size"`
	QueueSize    int           `yaml:"queue_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
}

// StrategyConfig names the strategy and its loose parameters.
type StrategyConfig struct {
	Type       string                 `yaml:"type"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

// ReconcileConfig controls the position drift check.
type ReconcileConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	Tolerance float64       `yaml:"tolerance"`
}

// JournalConfig controls the SQLite order journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig controls the status HTTP server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a config with every optional field filled.
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{Name: "okx", Timeout: 10 * time.Second},
		Broker: BrokerConfig{
			Type:       "SPOT",
			MarginMode: "isolated",
			Leverage:   1,
			FeeRate:    0.001,
		},
		Feed: FeedConfig{
			Interval:  "1m",
			Stream:    true,
			Preload:   100,
			PageSize:  100,
			QueueSize: 256,
			Heartbeat: 29 * time.Second,
		},
		Strategy:  StrategyConfig{Type: "martingale"},
		Reconcile: ReconcileConfig{Enabled: true, Interval: time.Minute, Tolerance: 1e-8},
		Log:       logger.Config{Level: "info", Format: "text", MaxSize: 100, MaxBackups: 5, MaxAge: 30},
		Journal:   JournalConfig{Enabled: true, Path: "./data/journal.db"},
		API:       APIConfig{Addr: ":8080"},
	}
}

// Load reads the YAML file over the defaults, pulls credentials from the
// environment and validates the result.
func Load(path string) (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults and applies the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Exchange.APIKey = os.Getenv("OKX_API_KEY")
	c.Exchange.APISecret = os.Getenv("OKX_API_SECRET")
	c.Exchange.Passphrase = os.Getenv("OKX_PASSPHRASE")
	c.Exchange.Sandbox = getEnvBool("OKX_SANDBOX", c.Exchange.Sandbox)
	c.Broker.DryRun = getEnvBool("DRY_RUN", c.Broker.DryRun)
	c.Broker.Cash = getEnvFloat("BROKER_CASH", c.Broker.Cash)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate checks the fields every mode needs.
func (c *Config) Validate() error {
	var errs []error
	c.Broker.Type = strings.ToUpper(c.Broker.Type)
	if c.Broker.Instrument == "" {
		errs = append(errs, errors.New("broker.instrument is required"))
	}
	switch c.Broker.Type {
	case "SPOT":
	case "SWAP":
		if c.Broker.Leverage <= 0 {
			errs = append(errs, errors.New("broker.leverage must be positive for SWAP"))
		}
		if m := c.Broker.MarginMode; m != "isolated" && m != "cross" {
			errs = append(errs, fmt.Errorf("broker.margin_mode %q must be isolated or cross", m))
		}
	default:
		errs = append(errs, fmt.Errorf("broker.type %q must be SPOT or SWAP", c.Broker.Type))
	}
	if c.Broker.Cash <= 0 {
		errs = append(errs, errors.New("broker.cash must be positive"))
	}
	if c.Broker.Slippage < 0 || c.Broker.Slippage >= 1 {
		errs = append(errs, fmt.Errorf("broker.slippage %v out of range [0, 1)", c.Broker.Slippage))
	}
	if c.Feed.PageSize < 0 || c.Feed.PageSize > 100 {
		errs = append(errs, fmt.Errorf("feed.page_size %d must be at most 100", c.Feed.PageSize))
	}
	if c.Feed.Interval == "" {
		errs = append(errs, errors.New("feed.interval is required"))
	}
	if v, ok := c.Strategy.Parameters["steps"]; ok {
		if n, isInt := v.(int); !isInt || n <= 0 {
			errs = append(errs, fmt.Errorf("strategy.parameters.steps %v must be a positive integer", v))
		}
	}
	return errors.Join(errs...)
}

// RequireCredentials fails when live trading lacks any API secret.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Exchange.APIKey == "" {
		missing = append(missing, "OKX_API_KEY")
	}
	if c.Exchange.APISecret == "" {
		missing = append(missing, "OKX_API_SECRET")
	}
	if c.Exchange.Passphrase == "" {
		missing = append(missing, "OKX_PASSPHRASE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
