package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("version: \"2\"\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Mode != "dev" || cfg.DB.Driver != "mysql" || cfg.DB.Port != 3306 || cfg.Server.Addr != ":8443" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Ledger.LowStockThreshold != 3 || cfg.Ledger.LowStockBasis != "total" || !cfg.UseLocalLock() {
		t.Fatalf("ledger defaults %+v", cfg.Ledger)
	}
	if cfg.Retry.MaxAttempts != 4 || cfg.Retry.BaseDelay != 50*time.Millisecond || cfg.Retry.MaxDelay != time.Second {
		t.Fatalf("retry defaults %+v", cfg.Retry)
	}
	if cfg.Blob.Driver != "fs" || cfg.Blob.FSRoot != "./blobdata" {
		t.Fatalf("blob defaults %+v", cfg.Blob)
	}
}

func TestStockCacheFollowsLocalLock(t *testing.T) {
	cfg, err := Parse([]byte("ledger:\n  cache_size: 64\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := cfg.StockCacheSize(); got != 64 {
		t.Fatalf("single instance cache size = %d", got)
	}
	cfg, err = Parse([]byte("ledger:\n  local_lock: false\n  cache_size: 64\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := cfg.StockCacheSize(); got >= 0 {
		t.Fatalf("multi instance must disable the cache, got %d", got)
	}
}

func TestParseFile(t *testing.T) {
	yml := `
mode: release
database:
  driver: postgres
  host: db
  user: ledger
  dbname: assets
ledger:
  low_stock_threshold: 5
  low_stock_basis: available
  local_lock: false
retry:
  max_attempts: 2
  base_delay: 20ms
certificate:
  cert: server.crt
  key: server.key
`
	cfg, err := Parse([]byte(yml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DB.Port != 5432 || cfg.DB.Username != "ledger" {
		t.Fatalf("db %+v", cfg.DB)
	}
	if cfg.UseLocalLock() || cfg.Ledger.LowStockThreshold != 5 || cfg.Ledger.LowStockBasis != "available" {
		t.Fatalf("ledger %+v", cfg.Ledger)
	}
	if cfg.Retry.MaxAttempts != 2 || cfg.Retry.BaseDelay != 20*time.Millisecond {
		t.Fatalf("retry %+v", cfg.Retry)
	}
	if cfg.CertPath() != filepath.Join("config", "tls", "release", "server.crt") {
		t.Fatalf("cert path %s", cfg.CertPath())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LEDGER_DB_DRIVER", "sqlite")
	t.Setenv("LEDGER_DB_PATH", "/tmp/x.db")
	t.Setenv("LEDGER_DB_PORT", "1234")
	t.Setenv("LEDGER_JWT_SECRET", "s3cret")
	cfg, err := Parse([]byte("database:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "/tmp/x.db" || cfg.DB.Port != 1234 || cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("env not applied: %+v", cfg)
	}

	t.Setenv("LEDGER_DB_PORT", "abc")
	if _, err := Parse(nil); err == nil {
		t.Fatalf("bad port accepted")
	}
}

func TestValidate(t *testing.T) {
	for _, yml := range []string{
		"mode: staging\n",
		"database:\n  driver: oracle\n",
		"ledger:\n  low_stock_basis: median\n",
	} {
		if _, err := Parse([]byte(yml)); err == nil {
			t.Fatalf("accepted %q", yml)
		}
	}
}

func TestLoadFromConfigEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	if err := os.WriteFile(path, []byte("mode: release\ndatabase:\n  driver: sqlite\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEDGER_CONFIG", path)
	cfg, err := Load("does/not/exist.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "release" || cfg.DB.Driver != "sqlite" {
		t.Fatalf("unexpected %+v", cfg)
	}

	t.Setenv("LEDGER_CONFIG", filepath.Join(dir, "missing.yaml"))
	if _, err := Load(""); err == nil {
		t.Fatalf("missing file accepted")
	}
}
