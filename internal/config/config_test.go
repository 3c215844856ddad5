package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "finvasia-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
finvasia:
  user_id: "FA1234"
  vendor_code: "FA1234_U"
  api_key: "yaml-key"
  base_url: "https://example.test/NorenWClientTP"
  rate_limit_per_sec: 10
  rate_limit_burst: 5
session:
  heartbeat_interval: 2s
  confirm_delay: 1500ms
  reconnect_max: 30s
storage:
  data_dir: "/tmp/finvasia/data"
  sqlite_path: "/tmp/finvasia/finvasia.db"
server:
  metrics_addr: ":8080"
  grpc_addr: ":9090"
logging:
  level: "debug"
  format: "console"
trading:
  paper_mode: false
  max_order_qty: 500
  max_order_value: 250000
  allowed_exchanges: ["NSE", "NFO"]
`)

	// Clear any environment overrides that might interfere.
	for _, k := range []string{"FINVASIA_USER_ID", "FINVASIA_API_KEY", "DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "LOG_FORMAT", "FINVASIA_PAPER_MODE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Finvasia --
	if cfg.Finvasia.UserID != "FA1234" {
		t.Errorf("Finvasia.UserID = %q, want %q", cfg.Finvasia.UserID, "FA1234")
	}
	if cfg.Finvasia.APIKey != "yaml-key" {
		t.Errorf("Finvasia.APIKey = %q, want %q", cfg.Finvasia.APIKey, "yaml-key")
	}
	if cfg.Finvasia.IMEI != "api" {
		t.Errorf("Finvasia.IMEI = %q, want default %q", cfg.Finvasia.IMEI, "api")
	}
	if cfg.Finvasia.RateLimitPerSec != 10 || cfg.Finvasia.RateLimitBurst != 5 {
		t.Errorf("rate limit = %v/%d, want 10/5", cfg.Finvasia.RateLimitPerSec, cfg.Finvasia.RateLimitBurst)
	}

	// -- Session --
	if cfg.Session.HeartbeatInterval != 2*time.Second {
		t.Errorf("Session.HeartbeatInterval = %v, want %v", cfg.Session.HeartbeatInterval, 2*time.Second)
	}
	if cfg.Session.ConfirmDelay != 1500*time.Millisecond {
		t.Errorf("Session.ConfirmDelay = %v, want %v", cfg.Session.ConfirmDelay, 1500*time.Millisecond)
	}
	if cfg.Session.ReconnectMin != time.Second {
		t.Errorf("Session.ReconnectMin = %v, want default %v", cfg.Session.ReconnectMin, time.Second)
	}
	if cfg.Session.ReconnectMax != 30*time.Second {
		t.Errorf("Session.ReconnectMax = %v, want %v", cfg.Session.ReconnectMax, 30*time.Second)
	}

	// -- Storage --
	if cfg.Storage.SQLitePath != "/tmp/finvasia/finvasia.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/finvasia/finvasia.db")
	}

	// -- Server --
	if cfg.Server.MetricsAddr != ":8080" || cfg.Server.GRPCAddr != ":9090" {
		t.Errorf("Server = %+v", cfg.Server)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// -- Trading --
	if cfg.Trading.PaperMode {
		t.Error("Trading.PaperMode = true, want false")
	}
	if cfg.Trading.MaxOrderQty != 500 || cfg.Trading.MaxOrderValue != 250000 {
		t.Errorf("Trading limits = %+v", cfg.Trading)
	}
	if len(cfg.Trading.AllowedExchanges) != 2 || cfg.Trading.AllowedExchanges[1] != "NFO" {
		t.Errorf("Trading.AllowedExchanges = %v", cfg.Trading.AllowedExchanges)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
finvasia:
  api_key: "yaml-key"
  vendor_code: "yaml-vc"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("FINVASIA_API_KEY", "env-key")
	t.Setenv("FINVASIA_VENDOR_CODE", "")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("FINVASIA_PAPER_MODE", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Finvasia.APIKey != "env-key" {
		t.Errorf("Finvasia.APIKey = %q, want %q (env override)", cfg.Finvasia.APIKey, "env-key")
	}
	// vendor_code should remain from YAML since the env override is empty.
	if cfg.Finvasia.VendorCode != "yaml-vc" {
		t.Errorf("Finvasia.VendorCode = %q, want %q (from YAML)", cfg.Finvasia.VendorCode, "yaml-vc")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Trading.PaperMode {
		t.Error("Trading.PaperMode = true, want false (env override)")
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := Load(missing); err == nil {
		t.Error("Load() of a missing file should fail")
	}

	t.Setenv("FINVASIA_USER_ID", "FA5555")
	cfg, err := LoadOrDefault(missing)
	if err != nil {
		t.Fatalf("LoadOrDefault() returned error: %v", err)
	}
	if cfg.Finvasia.UserID != "FA5555" {
		t.Errorf("Finvasia.UserID = %q, want %q", cfg.Finvasia.UserID, "FA5555")
	}
	if cfg.Session.HeartbeatInterval != 3*time.Second {
		t.Errorf("Session.HeartbeatInterval = %v, want default", cfg.Session.HeartbeatInterval)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "session: [unclosed")
	if _, err := LoadOrDefault(path); err == nil {
		t.Error("LoadOrDefault() should surface YAML errors")
	}
}

func withDotEnv(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	prev := dotEnvFile
	dotEnvFile = path
	t.Cleanup(func() { dotEnvFile = prev })
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("FINVASIA_VENDOR_CODE", "")
	os.Unsetenv("FINVASIA_VENDOR_CODE")
	withDotEnv(t, "FINVASIA_VENDOR_CODE=FA1234_U\n")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() returned error: %v", err)
	}
	if cfg.Finvasia.VendorCode != "FA1234_U" {
		t.Errorf("Finvasia.VendorCode = %q, want %q", cfg.Finvasia.VendorCode, "FA1234_U")
	}
}

func TestLoadMalformedDotEnv(t *testing.T) {
	withDotEnv(t, "BAD-KEY=1\n")

	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadOrDefault() should surface a malformed .env")
	}
	path := writeConfig(t, "logging:\n  level: debug\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() should surface a malformed .env")
	}
}

func TestLoadMissingDotEnv(t *testing.T) {
	prev := dotEnvFile
	dotEnvFile = filepath.Join(t.TempDir(), ".env")
	t.Cleanup(func() { dotEnvFile = prev })

	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Errorf("LoadOrDefault() without .env returned error: %v", err)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("FINVASIA_CONFIG", "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
	t.Setenv("FINVASIA_CONFIG", "/etc/finvasia.yaml")
	if got := Path(); got != "/etc/finvasia.yaml" {
		t.Errorf("Path() = %q, want %q", got, "/etc/finvasia.yaml")
	}
}
