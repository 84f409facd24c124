// Package stock は貸出台帳から利用可能数を導出する。available は永続化しない。
package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
)

// Level は1資産の総数と貸出中数量
type Level struct {
	Total  int
	Active int
}

// Available = total - active。負値は台帳の不整合なので丸めずにエラーにする。
func Available(total, active int) (int, error) {
	avail := total - active
	if avail < 0 {
		return 0, apierr.ErrConsistency(fmt.Sprintf("available stock is negative (total=%d, active=%d)", total, active))
	}
	return avail, nil
}

// Available returns total - active for the level.
func (l Level) Available() (int, error) { return Available(l.Total, l.Active) }

// LoadTotal は資産の total_quantity を読む。lock=true なら行ロックを取る（mysql/postgres）。
// sqlite は BEGIN IMMEDIATE で DB 全体が直列化されているので句は付かない。
func LoadTotal(ctx context.Context, tx db.DBTX, d db.Dialect, assetID int64, lock bool) (int, error) {
	q := `SELECT total_quantity FROM assets WHERE asset_id = ?`
	if lock {
		q += d.ForUpdate()
	}
	var total int
	if err := tx.QueryRowContext(ctx, d.Rebind(q), assetID).Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apierr.ErrNotFound("asset not found")
		}
		return 0, fmt.Errorf("select total_quantity: %w", err)
	}
	return total, nil
}

// SumActive: real_return_at IS NULL の貸出数量合計
func SumActive(ctx context.Context, tx db.DBTX, d db.Dialect, assetID int64) (int, error) {
	var active int
	q := d.Rebind(`SELECT COALESCE(SUM(quantity), 0) FROM loans WHERE asset_id = ? AND real_return_at IS NULL`)
	if err := tx.QueryRowContext(ctx, q, assetID).Scan(&active); err != nil {
		return 0, fmt.Errorf("sum active loans: %w", err)
	}
	return active, nil
}

// LoadLevel reads total and active quantity inside one transaction.
func LoadLevel(ctx context.Context, tx db.DBTX, d db.Dialect, assetID int64, lock bool) (Level, error) {
	total, err := LoadTotal(ctx, tx, d, assetID, lock)
	if err != nil {
		return Level{}, err
	}
	active, err := SumActive(ctx, tx, d, assetID)
	if err != nil {
		return Level{}, err
	}
	return Level{Total: total, Active: active}, nil
}
