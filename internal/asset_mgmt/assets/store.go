package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ASSET-ledger/internal/asset_mgmt/stock"
	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
)

type Store struct{ db *db.DB }

func NewStore(conn *db.DB) *Store { return &Store{db: conn} }

const assetColumns = `asset_id, management_number, name, total_quantity, functional_condition,
	physical_condition, category_id, subcategory_id, location_id, updated_at`

func scanAsset(row interface{ Scan(...any) error }) (*Asset, error) {
	var a Asset
	if err := row.Scan(
		&a.AssetID, &a.ManagementNumber, &a.Name, &a.TotalQuantity, &a.FunctionalCondition,
		&a.PhysicalCondition, &a.CategoryID, &a.SubcategoryID, &a.LocationID, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*Asset, error) {
	q := s.db.Dialect.Rebind(`SELECT ` + assetColumns + ` FROM assets WHERE asset_id = ?`)
	a, err := scanAsset(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("asset not found")
		}
		return nil, fmt.Errorf("select asset: %w", err)
	}
	return a, nil
}

func (s *Store) List(ctx context.Context, p Page) ([]Asset, int64, error) {
	order := "ASC"
	if strings.ToLower(p.Order) == "desc" {
		order = "DESC"
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	q := s.db.Dialect.Rebind(`SELECT ` + assetColumns + ` FROM assets ORDER BY asset_id ` + order + ` LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryContext(ctx, q, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	list := []Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ExecUpsert はカタログ側の編集を反映する。台帳からは呼ばない。
// 既存資産は行ロックを取り、貸出中数量を下回る total は拒否する。
func (s *Store) ExecUpsert(ctx context.Context, a *Asset) error {
	return db.RunInTx(ctx, s.db.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		lv, err := stock.LoadLevel(ctx, tx, s.db.Dialect, a.AssetID, true)
		switch {
		case apierr.Is(err, apierr.CodeNotFound):
			// 新規登録
		case err != nil:
			return err
		case a.TotalQuantity < lv.Active:
			return apierr.ErrConflict(fmt.Sprintf(
				"total_quantity %d is below the quantity on loan (%d)", a.TotalQuantity, lv.Active))
		}
		return s.upsert(ctx, tx, a)
	})
}

func (s *Store) upsert(ctx context.Context, tx db.DBTX, a *Asset) error {
	var q string
	switch s.db.Dialect {
	case db.MySQL:
		q = `
		INSERT INTO assets (` + assetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		management_number = VALUES(management_number), name = VALUES(name),
		total_quantity = VALUES(total_quantity), functional_condition = VALUES(functional_condition),
		physical_condition = VALUES(physical_condition), category_id = VALUES(category_id),
		subcategory_id = VALUES(subcategory_id), location_id = VALUES(location_id),
		updated_at = VALUES(updated_at)`
	default:
		q = `
		INSERT INTO assets (` + assetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset_id) DO UPDATE SET
		management_number = excluded.management_number, name = excluded.name,
		total_quantity = excluded.total_quantity, functional_condition = excluded.functional_condition,
		physical_condition = excluded.physical_condition, category_id = excluded.category_id,
		subcategory_id = excluded.subcategory_id, location_id = excluded.location_id,
		updated_at = excluded.updated_at`
	}
	_, err := tx.ExecContext(ctx, s.db.Dialect.Rebind(q),
		a.AssetID, a.ManagementNumber, a.Name, a.TotalQuantity, a.FunctionalCondition,
		a.PhysicalCondition, a.CategoryID, a.SubcategoryID, a.LocationID, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}
