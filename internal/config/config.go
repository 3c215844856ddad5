// Package config loads finvasia configuration from YAML, an optional .env
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when FINVASIA_CONFIG is unset.
const DefaultPath = "config/finvasia.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration.
type Config struct {
	Finvasia Finvasia      `yaml:"finvasia"`
	Session  SessionConfig `yaml:"session"`
	Storage  Storage       `yaml:"storage"`
	Server   Server        `yaml:"server"`
	Logging  Logging       `yaml:"logging"`
	Trading  TradingConfig `yaml:"trading"`
}

// Finvasia holds broker credentials and endpoints.
type Finvasia struct {
	UserID      string `yaml:"user_id"`
	Password    string `yaml:"password"`
	TOTP        string `yaml:"totp"`
	VendorCode  string `yaml:"vendor_code"`
	APIKey      string `yaml:"api_key"`
	IMEI        string `yaml:"imei"`
	AccessToken string `yaml:"access_token"`
	BaseURL     string `yaml:"base_url"`
	WSURL       string `yaml:"ws_url"`
	// RateLimitPerSec throttles REST calls; 0 disables throttling.
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// SessionConfig tunes the realtime session and its reconnect policy.
type SessionConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ConfirmDelay      time.Duration `yaml:"confirm_delay"`
	CloseTimeout      time.Duration `yaml:"close_timeout"`
	ReconnectMin      time.Duration `yaml:"reconnect_min"`
	ReconnectMax      time.Duration `yaml:"reconnect_max"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds the ops listener addresses.
type Server struct {
	MetricsAddr string `yaml:"metrics_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TradingConfig defines risk and execution parameters.
type TradingConfig struct {
	PaperMode        bool     `yaml:"paper_mode"`
	MaxOrderQty      float64  `yaml:"max_order_qty"`
	MaxOrderValue    float64  `yaml:"max_order_value"`
	AllowedExchanges []string `yaml:"allowed_exchanges"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			HeartbeatInterval: 3 * time.Second,
			ConfirmDelay:      3 * time.Second,
			CloseTimeout:      5 * time.Second,
			ReconnectMin:      time.Second,
			ReconnectMax:      time.Minute,
		},
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/finvasia.db",
		},
		Server: Server{
			MetricsAddr: ":9464",
			GRPCAddr:    ":9465",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Finvasia: Finvasia{
			IMEI:           "api",
			RateLimitBurst: 1,
		},
		Trading: TradingConfig{
			PaperMode: true,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration path from FINVASIA_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("FINVASIA_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path over Default(),
// loads .env if present, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default() plus the
// environment when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// dotEnvFile is read relative to the working directory.
var dotEnvFile = ".env"

// loadDotEnv loads dotEnvFile. Variables already set in the environment win;
// a missing file is not an error, a malformed one is.
func loadDotEnv() error {
	err := godotenv.Load(dotEnvFile)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", dotEnvFile, err)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	strs := []struct {
		env string
		dst *string
	}{
		{"FINVASIA_USER_ID", &cfg.Finvasia.UserID},
		{"FINVASIA_PASSWORD", &cfg.Finvasia.Password},
		{"FINVASIA_TOTP", &cfg.Finvasia.TOTP},
		{"FINVASIA_VENDOR_CODE", &cfg.Finvasia.VendorCode},
		{"FINVASIA_API_KEY", &cfg.Finvasia.APIKey},
		{"FINVASIA_IMEI", &cfg.Finvasia.IMEI},
		{"FINVASIA_ACCESS_TOKEN", &cfg.Finvasia.AccessToken},
		{"FINVASIA_BASE_URL", &cfg.Finvasia.BaseURL},
		{"FINVASIA_WS_URL", &cfg.Finvasia.WSURL},
		{"DATA_DIR", &cfg.Storage.DataDir},
		{"SQLITE_PATH", &cfg.Storage.SQLitePath},
		{"LOG_LEVEL", &cfg.Logging.Level},
		{"LOG_FORMAT", &cfg.Logging.Format},
		{"METRICS_ADDR", &cfg.Server.MetricsAddr},
		{"GRPC_ADDR", &cfg.Server.GRPCAddr},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("FINVASIA_PAPER_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.PaperMode = b
		}
	}
}
