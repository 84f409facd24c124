package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | sqlite | postgres
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Path     string `yaml:"path"` // sqlite のみ
	DSN      string `yaml:"dsn"`  // postgres: 指定があればそのまま使う
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type BlobConfig struct {
	Driver string   `yaml:"driver"` // fs | s3 | memory
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

type LedgerConfig struct {
	LowStockThreshold int    `yaml:"low_stock_threshold"`
	LowStockBasis     string `yaml:"low_stock_basis"` // total | available
	LocalLock         *bool  `yaml:"local_lock"`
	CacheSize         int    `yaml:"cache_size"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"` // 空なら認証なし
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Server      ServerConfig   `yaml:"server"`
	DB          DatabaseConfig `yaml:"database"`
	Certificate Certs          `yaml:"certificate"`
	Blob        BlobConfig     `yaml:"blob"`
	Ledger      LedgerConfig   `yaml:"ledger"`
	Retry       RetryConfig    `yaml:"retry"`
	Auth        AuthConfig     `yaml:"auth"`
}

// Load は .env → YAML → 環境変数 の順に読み込む。後勝ち。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env の読み込み失敗: %w", err)
	}
	if v := os.Getenv("LEDGER_CONFIG"); v != "" {
		path = v
	}
	if path == "" {
		path = DefaultPath
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	return Parse(buf)
}

// Parse decodes YAML, applies environment overrides and fills defaults.
func Parse(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"LEDGER_MODE":        &cfg.Mode,
		"LEDGER_DB_DRIVER":   &cfg.DB.Driver,
		"LEDGER_DB_HOST":     &cfg.DB.Host,
		"LEDGER_DB_USER":     &cfg.DB.Username,
		"LEDGER_DB_PASSWORD": &cfg.DB.Password,
		"LEDGER_DB_NAME":     &cfg.DB.DBName,
		"LEDGER_DB_PATH":     &cfg.DB.Path,
		"LEDGER_DB_DSN":      &cfg.DB.DSN,
		"LEDGER_BLOB_DRIVER": &cfg.Blob.Driver,
		"LEDGER_JWT_SECRET":  &cfg.Auth.JWTSecret,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("LEDGER_DB_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEDGER_DB_PORT が不正: %w", err)
		}
		cfg.DB.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8443"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "mysql"
	}
	if c.DB.Port == 0 {
		switch c.DB.Driver {
		case "mysql":
			c.DB.Port = 3306
		case "postgres":
			c.DB.Port = 5432
		}
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = "fs"
	}
	if c.Blob.FSRoot == "" {
		c.Blob.FSRoot = "./blobdata"
	}
	if c.Ledger.LowStockThreshold <= 0 {
		c.Ledger.LowStockThreshold = 3
	}
	if c.Ledger.LowStockBasis == "" {
		c.Ledger.LowStockBasis = "total"
	}
	if c.Ledger.LocalLock == nil {
		on := true
		c.Ledger.LocalLock = &on
	}
	if c.Ledger.CacheSize == 0 {
		c.Ledger.CacheSize = 256
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 4
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 50 * time.Millisecond
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = time.Second
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release, got %q", c.Mode)
	}
	switch c.DB.Driver {
	case "mysql", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.DB.Driver)
	}
	switch c.Ledger.LowStockBasis {
	case "total", "available":
	default:
		return fmt.Errorf("ledger.low_stock_basis must be total or available, got %q", c.Ledger.LowStockBasis)
	}
	return nil
}

// UseLocalLock: 単一インスタンス運用ならプロセス内ロックを併用する
func (c *Config) UseLocalLock() bool {
	return c.Ledger.LocalLock == nil || *c.Ledger.LocalLock
}

// StockCacheSize: 在庫キャッシュはプロセス内の通知でしか無効化されないので、
// local_lock=false（複数インスタンス）のときは -1 を返して無効にする。
func (c *Config) StockCacheSize() int {
	if !c.UseLocalLock() {
		return -1
	}
	return c.Ledger.CacheSize
}

// 証明書は config/tls/<mode>/ 以下に置く
func (c *Config) CertPath() string {
	return filepath.Join("config", "tls", c.Mode, c.Certificate.Cert)
}

func (c *Config) KeyPath() string {
	return filepath.Join("config", "tls", c.Mode, c.Certificate.Key)
}
