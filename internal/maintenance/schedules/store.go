package schedules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
)

type Store struct{ db *db.DB }

func NewStore(conn *db.DB) *Store { return &Store{db: conn} }

const entryColumns = `entry_id, asset_id, plan_year, slots, frequency, status, notes, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var (
		e     Entry
		slots int64
	)
	if err := row.Scan(&e.EntryID, &e.AssetID, &e.Year, &slots, &e.Frequency, &e.Status, &e.Notes, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Slots = Grid(slots) & gridMask
	return &e, nil
}

func assetExists(ctx context.Context, q db.DBTX, d db.Dialect, assetID int64) error {
	var one int
	err := q.QueryRowContext(ctx, d.Rebind(`SELECT 1 FROM assets WHERE asset_id = ?`), assetID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.ErrNotFound("asset not found")
	}
	return err
}

// ExecCreate: (asset_id, plan_year) の UNIQUE 制約違反は DUPLICATE_YEAR
func (s *Store) ExecCreate(ctx context.Context, e *Entry) error {
	return db.RunInTx(ctx, s.db.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := assetExists(ctx, tx, s.db.Dialect, e.AssetID); err != nil {
			return err
		}
		q := s.db.Dialect.Rebind(`INSERT INTO maintenance_schedules (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, q,
			e.EntryID, e.AssetID, e.Year, int64(e.Slots), e.Frequency, e.Status, e.Notes, e.CreatedAt, e.UpdatedAt)
		if err != nil {
			if db.IsDuplicateKey(err) {
				return apierr.ErrDuplicateYear(fmt.Sprintf("schedule for asset %d year %d already exists", e.AssetID, e.Year))
			}
			return fmt.Errorf("insert schedule: %w", err)
		}
		return nil
	})
}

// ExecUpdate は行ロック下で現在値を読み、mutate を適用して書き戻す
func (s *Store) ExecUpdate(ctx context.Context, entryID string, mutate func(e *Entry) error) (*Entry, error) {
	var out *Entry
	err := db.RunInTx(ctx, s.db.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		q := s.db.Dialect.Rebind(`SELECT ` + entryColumns + ` FROM maintenance_schedules WHERE entry_id = ?` + s.db.Dialect.ForUpdate())
		e, err := scanEntry(tx.QueryRowContext(ctx, q, entryID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apierr.ErrNotFound("schedule entry not found")
			}
			return fmt.Errorf("select schedule: %w", err)
		}
		if err := mutate(e); err != nil {
			return err
		}
		uq := s.db.Dialect.Rebind(`
		UPDATE maintenance_schedules
		SET slots = ?, frequency = ?, status = ?, notes = ?, updated_at = ?
		WHERE entry_id = ?`)
		if _, err := tx.ExecContext(ctx, uq, int64(e.Slots), e.Frequency, e.Status, e.Notes, e.UpdatedAt, e.EntryID); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		out = e
		return nil
	})
	return out, err
}

// SetStatus は status 列だけ更新する（スロットには触れない）
func (s *Store) SetStatus(ctx context.Context, entryID string, st Status, at time.Time) error {
	q := s.db.Dialect.Rebind(`UPDATE maintenance_schedules SET status = ?, updated_at = ? WHERE entry_id = ?`)
	res, err := s.db.ExecContext(ctx, q, st, at, entryID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return apierr.ErrNotFound("schedule entry not found")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, entryID string) (*Entry, error) {
	q := s.db.Dialect.Rebind(`SELECT ` + entryColumns + ` FROM maintenance_schedules WHERE entry_id = ?`)
	e, err := scanEntry(s.db.QueryRowContext(ctx, q, entryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("schedule entry not found")
		}
		return nil, fmt.Errorf("select schedule: %w", err)
	}
	return e, nil
}

func (s *Store) GetByAssetYear(ctx context.Context, assetID int64, year int) (*Entry, error) {
	q := s.db.Dialect.Rebind(`SELECT ` + entryColumns + ` FROM maintenance_schedules WHERE asset_id = ? AND plan_year = ?`)
	e, err := scanEntry(s.db.QueryRowContext(ctx, q, assetID, year))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound(fmt.Sprintf("no schedule for asset %d year %d", assetID, year))
		}
		return nil, fmt.Errorf("select schedule: %w", err)
	}
	return e, nil
}

func (s *Store) ListByAsset(ctx context.Context, assetID int64) ([]Entry, error) {
	q := s.db.Dialect.Rebind(`SELECT ` + entryColumns + ` FROM maintenance_schedules WHERE asset_id = ? ORDER BY plan_year`)
	return s.list(ctx, q, assetID)
}

// ListForSlot: 指定スロットが立っているその年のエントリ
func (s *Store) ListForSlot(ctx context.Context, year int, mask Grid) ([]Entry, error) {
	q := s.db.Dialect.Rebind(`SELECT ` + entryColumns + ` FROM maintenance_schedules
		WHERE plan_year = ? AND (slots & ?) <> 0 ORDER BY asset_id`)
	return s.list(ctx, q, year, int64(mask))
}

func (s *Store) list(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
