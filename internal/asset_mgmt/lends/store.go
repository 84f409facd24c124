package lends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ASSET-ledger/internal/asset_mgmt/stock"
	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
)

type Store struct{ db *db.DB }

func NewStore(conn *db.DB) *Store { return &Store{db: conn} }

const loanColumns = `loan_id, ticket_number, asset_id, quantity, direction, borrower, purpose, lent_by,
	created_at, estimated_return_at, real_return_at, deliverer_signature, receiver_signature,
	returner_signature, return_receiver_signature, return_notes`

func scanLoan(row interface{ Scan(...any) error }) (*Loan, error) {
	var l Loan
	err := row.Scan(
		&l.LoanID, &l.TicketNumber, &l.AssetID, &l.Quantity, &l.Direction, &l.Borrower, &l.Purpose, &l.LentBy,
		&l.CreatedAt, &l.EstimatedReturnAt, &l.RealReturnAt, &l.DelivererSignature, &l.ReceiverSignature,
		&l.ReturnerSignature, &l.ReturnReceiverSignature, &l.ReturnNotes,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ExecCreateLoan: 資産行ロック → 在庫計算 → 数量チェック → INSERT を1トランザクションで行う。
// check は available を計算する（負値なら不整合エラー）。
func (s *Store) ExecCreateLoan(ctx context.Context, l *Loan, check func(assetID int64, lv stock.Level) (int, error)) error {
	return db.RunInTx(ctx, s.db.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		lv, err := stock.LoadLevel(ctx, tx, s.db.Dialect, l.AssetID, true)
		if err != nil {
			return err
		}
		avail, err := check(l.AssetID, lv)
		if err != nil {
			return err
		}
		if l.Quantity > avail {
			return apierr.ErrInsufficientStock(l.Quantity, avail)
		}

		q := s.db.Dialect.Rebind(`
		INSERT INTO loans (loan_id, ticket_number, asset_id, quantity, direction, borrower, purpose, lent_by,
		                   created_at, estimated_return_at, deliverer_signature, receiver_signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err = tx.ExecContext(ctx, q,
			l.LoanID, l.TicketNumber, l.AssetID, l.Quantity, l.Direction, l.Borrower, l.Purpose, l.LentBy,
			l.CreatedAt, l.EstimatedReturnAt, l.DelivererSignature, l.ReceiverSignature,
		)
		if err != nil {
			if db.IsDuplicateKey(err) {
				return apierr.ErrConflict("ticket number collision, retry")
			}
			return fmt.Errorf("insert loan: %w", err)
		}
		return nil
	})
}

// ExecReturn は未返却の行だけを更新する。0行なら存在確認して NotFound / AlreadyReturned を返す。
func (s *Store) ExecReturn(ctx context.Context, loanID string, at time.Time, returnerSig, receiverSig string, notes sql.NullString) error {
	return db.RunInTx(ctx, s.db.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		q := s.db.Dialect.Rebind(`
		UPDATE loans
		SET real_return_at = ?, returner_signature = ?, return_receiver_signature = ?, return_notes = ?
		WHERE loan_id = ? AND real_return_at IS NULL`)
		res, err := tx.ExecContext(ctx, q, at, returnerSig, receiverSig, notes, loanID)
		if err != nil {
			return fmt.Errorf("update loan return: %w", err)
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 1 {
			return nil
		}

		var ret sql.NullTime
		err = tx.QueryRowContext(ctx, s.db.Dialect.Rebind(`SELECT real_return_at FROM loans WHERE loan_id = ?`), loanID).Scan(&ret)
		if errors.Is(err, sql.ErrNoRows) {
			return apierr.ErrNotFound("loan not found")
		}
		if err != nil {
			return err
		}
		return apierr.ErrAlreadyReturned("loan already returned")
	})
}

func (s *Store) getBy(ctx context.Context, col, v string) (*Loan, error) {
	q := s.db.Dialect.Rebind(`SELECT ` + loanColumns + ` FROM loans WHERE ` + col + ` = ?`)
	l, err := scanLoan(s.db.QueryRowContext(ctx, q, v))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("loan not found")
		}
		return nil, fmt.Errorf("select loan: %w", err)
	}
	return l, nil
}

func (s *Store) GetByID(ctx context.Context, loanID string) (*Loan, error) {
	return s.getBy(ctx, "loan_id", loanID)
}

func (s *Store) GetByTicket(ctx context.Context, ticket string) (*Loan, error) {
	return s.getBy(ctx, "ticket_number", ticket)
}

// List: now は overdue 判定用（アプリ側の時計で比較する）
func (s *Store) List(ctx context.Context, f LoanFilter, now time.Time) ([]Loan, int64, error) {
	var where []string
	var args []any
	if f.AssetID != nil {
		where = append(where, "asset_id = ?")
		args = append(args, *f.AssetID)
	}
	if f.Borrower != nil {
		where = append(where, "borrower = ?")
		args = append(args, *f.Borrower)
	}
	switch f.State {
	case StateActive:
		where = append(where, "real_return_at IS NULL")
	case StateReturned:
		where = append(where, "real_return_at IS NOT NULL")
	case StateOverdue:
		where = append(where, "real_return_at IS NULL AND estimated_return_at IS NOT NULL AND estimated_return_at < ?")
		args = append(args, now)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, s.db.Dialect.Rebind(`SELECT COUNT(*) FROM loans`+cond), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := s.db.Dialect.Rebind(`SELECT ` + loanColumns + ` FROM loans` + cond + ` ORDER BY created_at DESC, loan_id DESC LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	out := []Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}
