package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" として database/sql に登録
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"ASSET-ledger/internal/platform/config"
)

// DB は *sql.DB と方言をまとめたハンドル。各 Store に明示的に渡す。
type DB struct {
	*sql.DB
	Dialect Dialect
}

func Connect(ctx context.Context, c config.DatabaseConfig) (*DB, error) {
	d, err := ParseDialect(c.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := buildDSN(d, c)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	switch d {
	case SQLite:
		// 書き込みは _txlock=immediate で DB 全体直列。読み取りは WAL で並行。
		conn.SetMaxOpenConns(8)
	default:
		conn.SetMaxOpenConns(80)
		conn.SetMaxIdleConns(20)
	}
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	return &DB{DB: conn, Dialect: d}, nil
}

// OpenSQLite は sqlite ファイルを開いてスキーマを作る。テストと単体運用向け。
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	conn, err := Connect(ctx, config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func buildDSN(d Dialect, c config.DatabaseConfig) (string, error) {
	switch d {
	case MySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
			c.Username, c.Password, c.Host, c.Port, c.DBName), nil
	case SQLite:
		path := c.Path
		if path == "" {
			path = "ledger.db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return "", fmt.Errorf("create dirs: %w", err)
		}
		return "file:" + path +
			"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)" +
			"&_txlock=immediate&_time_format=sqlite", nil
	case Postgres:
		if c.DSN != "" {
			return c.DSN, nil
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			c.Username, c.Password, c.Host, c.Port, c.DBName), nil
	}
	return "", fmt.Errorf("unknown dialect %q", d)
}
