package db

import (
	"context"
	"fmt"
	"strings"
)

// テーブル定義。型は方言ごとに置換する。
var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS assets (
	asset_id             BIGINT       NOT NULL PRIMARY KEY,
	management_number    VARCHAR(64)  NOT NULL DEFAULT '',
	name                 VARCHAR(255) NOT NULL DEFAULT '',
	total_quantity       INT          NOT NULL CHECK (total_quantity >= 0),
	functional_condition VARCHAR(32)  NOT NULL DEFAULT '',
	physical_condition   VARCHAR(32)  NOT NULL DEFAULT '',
	category_id          BIGINT       NULL,
	subcategory_id       BIGINT       NULL,
	location_id          BIGINT       NULL,
	updated_at           {{TS}}       NOT NULL
){{ENGINE}}`,

	`CREATE TABLE IF NOT EXISTS loans (
	loan_id                   VARCHAR(26)  NOT NULL PRIMARY KEY,
	ticket_number             VARCHAR(32)  NOT NULL UNIQUE,
	asset_id                  BIGINT       NOT NULL,
	quantity                  INT          NOT NULL CHECK (quantity > 0),
	direction                 VARCHAR(3)   NOT NULL DEFAULT 'OUT',
	borrower                  VARCHAR(255) NOT NULL,
	purpose                   {{TEXT}}     NULL,
	lent_by                   VARCHAR(255) NULL,
	created_at                {{TS}}       NOT NULL,
	estimated_return_at       {{TS}}       NULL,
	real_return_at            {{TS}}       NULL,
	deliverer_signature       VARCHAR(255) NOT NULL,
	receiver_signature        VARCHAR(255) NOT NULL,
	returner_signature        VARCHAR(255) NULL,
	return_receiver_signature VARCHAR(255) NULL,
	return_notes              {{TEXT}}     NULL,
	FOREIGN KEY (asset_id) REFERENCES assets (asset_id){{LOANS_INDEX}}
){{ENGINE}}`,

	`CREATE TABLE IF NOT EXISTS maintenance_schedules (
	entry_id   VARCHAR(26) NOT NULL PRIMARY KEY,
	asset_id   BIGINT      NOT NULL,
	plan_year  INT         NOT NULL,
	slots      BIGINT      NOT NULL DEFAULT 0,
	frequency  VARCHAR(16) NOT NULL,
	status     VARCHAR(16) NOT NULL DEFAULT 'PENDING',
	notes      {{TEXT}}    NULL,
	created_at {{TS}}      NOT NULL,
	updated_at {{TS}}      NOT NULL,
	UNIQUE (asset_id, plan_year),
	FOREIGN KEY (asset_id) REFERENCES assets (asset_id)
){{ENGINE}}`,

	`CREATE TABLE IF NOT EXISTS maintenance_executions (
	execution_id      VARCHAR(26)  NOT NULL PRIMARY KEY,
	asset_id          BIGINT       NOT NULL,
	schedule_entry_id VARCHAR(26)  NULL,
	performed_at      {{TS}}       NOT NULL,
	maintenance_type  VARCHAR(16)  NOT NULL,
	description       {{TEXT}}     NOT NULL,
	faults_found      {{TEXT}}     NULL,
	parts_used        {{TEXT}}     NULL,
	responsible       VARCHAR(255) NOT NULL,
	cost              {{DECIMAL}}  NULL,
	created_at        {{TS}}       NOT NULL,
	FOREIGN KEY (asset_id) REFERENCES assets (asset_id),
	FOREIGN KEY (schedule_entry_id) REFERENCES maintenance_schedules (entry_id){{EXEC_INDEX}}
){{ENGINE}}`,

	`CREATE TABLE IF NOT EXISTS operators (
	operator_id   VARCHAR(64)  NOT NULL PRIMARY KEY,
	password_hash VARCHAR(255) NOT NULL,
	role          VARCHAR(16)  NOT NULL DEFAULT 'operator',
	is_disabled   INT          NOT NULL DEFAULT 0,
	created_at    {{TS}}       NOT NULL
){{ENGINE}}`,
}

// MySQL は CREATE INDEX IF NOT EXISTS が無いのでテーブル定義側に埋め込む
var indexDDL = []string{
	`CREATE INDEX IF NOT EXISTS idx_loans_asset_open ON loans (asset_id, real_return_at)`,
	`CREATE INDEX IF NOT EXISTS idx_exec_asset ON maintenance_executions (asset_id, performed_at)`,
}

func replacer(d Dialect) *strings.Replacer {
	switch d {
	case MySQL:
		return strings.NewReplacer(
			"{{TS}}", "DATETIME(6)",
			"{{TEXT}}", "TEXT",
			"{{DECIMAL}}", "DECIMAL(12,2)",
			"{{ENGINE}}", " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
			"{{LOANS_INDEX}}", ",\n\tINDEX idx_loans_asset_open (asset_id, real_return_at)",
			"{{EXEC_INDEX}}", ",\n\tINDEX idx_exec_asset (asset_id, performed_at)",
		)
	case Postgres:
		return strings.NewReplacer(
			"{{TS}}", "TIMESTAMPTZ",
			"{{TEXT}}", "TEXT",
			"{{DECIMAL}}", "NUMERIC(12,2)",
			"{{ENGINE}}", "",
			"{{LOANS_INDEX}}", "",
			"{{EXEC_INDEX}}", "",
		)
	default:
		// sqlite: DECIMAL にすると NUMERIC 親和性で "12.50" が REAL になるので TEXT で持つ
		return strings.NewReplacer(
			"{{TS}}", "TIMESTAMP",
			"{{TEXT}}", "TEXT",
			"{{DECIMAL}}", "TEXT",
			"{{ENGINE}}", "",
			"{{LOANS_INDEX}}", "",
			"{{EXEC_INDEX}}", "",
		)
	}
}

// Migrate はスキーマを冪等に作成する
func Migrate(ctx context.Context, db *DB) error {
	r := replacer(db.Dialect)
	for _, stmt := range tableDDL {
		if _, err := db.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if db.Dialect == MySQL {
		return nil
	}
	for _, stmt := range indexDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate index: %w", err)
		}
	}
	return nil
}
