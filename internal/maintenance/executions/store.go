package executions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
)

type Store struct{ db *db.DB }

func NewStore(conn *db.DB) *Store { return &Store{db: conn} }

const execColumns = `execution_id, asset_id, schedule_entry_id, performed_at, maintenance_type, description,
	faults_found, parts_used, responsible, cost, created_at`

func scanExecution(row interface{ Scan(...any) error }) (*Execution, error) {
	var e Execution
	err := row.Scan(&e.ExecutionID, &e.AssetID, &e.ScheduleEntryID, &e.PerformedAt, &e.Type, &e.Description,
		&e.FaultsFound, &e.PartsUsed, &e.Responsible, &e.Cost, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ExecInsert は参照先（資産・予定エントリ）の存在だけ確認して追記する
func (s *Store) ExecInsert(ctx context.Context, e *Execution) error {
	d := s.db.Dialect
	return db.RunInTx(ctx, s.db.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, d.Rebind(`SELECT 1 FROM assets WHERE asset_id = ?`), e.AssetID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return apierr.ErrNotFound("asset not found")
		} else if err != nil {
			return err
		}
		if e.ScheduleEntryID.Valid {
			err := tx.QueryRowContext(ctx, d.Rebind(`SELECT 1 FROM maintenance_schedules WHERE entry_id = ?`), e.ScheduleEntryID.String).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return apierr.ErrNotFound("schedule entry not found")
			} else if err != nil {
				return err
			}
		}

		q := d.Rebind(`INSERT INTO maintenance_executions (` + execColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err = tx.ExecContext(ctx, q,
			e.ExecutionID, e.AssetID, e.ScheduleEntryID, e.PerformedAt, e.Type, e.Description,
			e.FaultsFound, e.PartsUsed, e.Responsible, e.Cost, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id string) (*Execution, error) {
	q := s.db.Dialect.Rebind(`SELECT ` + execColumns + ` FROM maintenance_executions WHERE execution_id = ?`)
	e, err := scanExecution(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("execution not found")
		}
		return nil, err
	}
	return e, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Execution, int64, error) {
	var where []string
	var args []any
	if f.AssetID != nil {
		where = append(where, "asset_id = ?")
		args = append(args, *f.AssetID)
	}
	if f.ScheduleEntryID != nil {
		where = append(where, "schedule_entry_id = ?")
		args = append(args, *f.ScheduleEntryID)
	}
	if f.From != nil {
		where = append(where, "performed_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "performed_at < ?")
		args = append(args, f.To.UTC())
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, s.db.Dialect.Rebind(`SELECT COUNT(*) FROM maintenance_executions`+cond), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := s.db.Dialect.Rebind(`SELECT ` + execColumns + ` FROM maintenance_executions` + cond +
		` ORDER BY performed_at DESC, execution_id DESC LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	out := []Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}
