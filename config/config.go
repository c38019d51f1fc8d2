package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration.
type Config struct {
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Rate     RateConfig     `json:"rate" yaml:"rate"`
	Trading  TradingConfig  `json:"trading" yaml:"trading"`
	Executor ExecutorConfig `json:"executor" yaml:"executor"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// ExchangeConfig holds REST/WS endpoints and credentials.
type ExchangeConfig struct {
	BaseURL    string   `json:"base_url" yaml:"base_url"`
	WSURL      string   `json:"ws_url" yaml:"ws_url"`
	APIKey     string   `json:"api_key" yaml:"api_key"`
	APISecret  string   `json:"api_secret" yaml:"api_secret"`
	Timeout    Duration `json:"timeout" yaml:"timeout"`
	RecvWindow Duration `json:"recv_window" yaml:"recv_window"`
}

// RateLimit is one endpoint class budget: Requests per Window.
type RateLimit struct {
	Requests int      `json:"requests" yaml:"requests"`
	Window   Duration `json:"window" yaml:"window"`
}

// RateConfig holds the per-endpoint-class request budgets.
type RateConfig struct {
	Market  RateLimit `json:"market" yaml:"market"`
	Trade   RateLimit `json:"trade" yaml:"trade"`
	Account RateLimit `json:"account" yaml:"account"`
}

// TradingConfig describes what to trade and which candle series to maintain.
type TradingConfig struct {
	Symbols      []string `json:"symbols" yaml:"symbols"`
	Leverage     int      `json:"leverage" yaml:"leverage"`
	BaseInterval string   `json:"base_interval" yaml:"base_interval"`
	Timeframes   []string `json:"timeframes" yaml:"timeframes"`
	BufferSize   int      `json:"buffer_size" yaml:"buffer_size"`
	RiskPercent  float64  `json:"risk_percent" yaml:"risk_percent"`
}

// ExecutorConfig bounds the entry-fill wait and protection retry loops.
type ExecutorConfig struct {
	FillWaitAttempts int      `json:"fill_wait_attempts" yaml:"fill_wait_attempts"`
	FillWaitDelay    Duration `json:"fill_wait_delay" yaml:"fill_wait_delay"`
	ProtectAttempts  int      `json:"protect_attempts" yaml:"protect_attempts"`
	ProtectDelay     Duration `json:"protect_delay" yaml:"protect_delay"`
}

// JournalConfig selects the trade journal backend.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level       string `json:"level" yaml:"level"`             // "debug", "info", "warn", "error"
	Format      string `json:"format" yaml:"format"`           // "json" or "console"
	OutputFile  string `json:"output_file" yaml:"output_file"` // optional rotated file
	Environment string `json:"environment" yaml:"environment"` // "dev" or "prod"
}

// LoadFromFile loads configuration from a file (YAML or JSON based on content).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Exchange.Timeout <= 0 {
		return fmt.Errorf("exchange.timeout must be positive")
	}
	for name, rl := range map[string]RateLimit{
		"rate.market":  c.Rate.Market,
		"rate.trade":   c.Rate.Trade,
		"rate.account": c.Rate.Account,
	} {
		if rl.Requests <= 0 || rl.Window <= 0 {
			return fmt.Errorf("%s requests and window must be positive", name)
		}
	}
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols must not be empty")
	}
	if c.Trading.BaseInterval == "" {
		return fmt.Errorf("trading.base_interval is required")
	}
	if len(c.Trading.Timeframes) == 0 {
		return fmt.Errorf("trading.timeframes must not be empty")
	}
	if c.Trading.BufferSize <= 0 {
		return fmt.Errorf("trading.buffer_size must be positive")
	}
	if c.Trading.RiskPercent <= 0 || c.Trading.RiskPercent > 1 {
		return fmt.Errorf("trading.risk_percent must be between 0 and 1")
	}
	if c.Trading.Leverage < 1 {
		return fmt.Errorf("trading.leverage must be at least 1")
	}
	if c.Executor.FillWaitAttempts <= 0 || c.Executor.ProtectAttempts <= 0 {
		return fmt.Errorf("executor attempt counts must be positive")
	}
	if c.Journal.Type != "" && c.Journal.Type != "csv" && c.Journal.Type != "sqlite" {
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if c.Journal.Type == "csv" && c.Journal.TradesFile == "" {
		return fmt.Errorf("journal.trades_file required for CSV type")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path required for SQLite type")
	}
	return nil
}

// Default returns a configuration with sensible defaults. Credentials and
// the symbol list still have to come from the user's config file.
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			BaseURL:    "https://api.example-futures.com",
			WSURL:      "wss://stream.example-futures.com/ws",
			Timeout:    Duration(10 * time.Second),
			RecvWindow: Duration(5 * time.Second),
		},
		Rate: RateConfig{
			Market:  RateLimit{Requests: 20, Window: Duration(time.Second)},
			Trade:   RateLimit{Requests: 5, Window: Duration(time.Second)},
			Account: RateLimit{Requests: 10, Window: Duration(time.Second)},
		},
		Trading: TradingConfig{
			Symbols:      []string{"BTC-USDT"},
			Leverage:     5,
			BaseInterval: "1m",
			Timeframes:   []string{"5m", "15m", "1h"},
			BufferSize:   500,
			RiskPercent:  0.005,
		},
		Executor: ExecutorConfig{
			FillWaitAttempts: 10,
			FillWaitDelay:    Duration(500 * time.Millisecond),
			ProtectAttempts:  3,
			ProtectDelay:     Duration(time.Second),
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./trades.db",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Environment: "dev",
		},
	}
}
