package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
)

// Operator は貸出・返却・保守記録を行う担当者アカウント
type Operator struct {
	OperatorID   string
	PasswordHash string
	Role         string
	IsDisabled   bool
	CreatedAt    time.Time
}

type Store struct{ db *db.DB }

func NewStore(conn *db.DB) *Store { return &Store{db: conn} }

func (s *Store) Get(ctx context.Context, id string) (*Operator, error) {
	q := s.db.Dialect.Rebind(`
SELECT operator_id, password_hash, role, is_disabled, created_at
FROM operators
WHERE operator_id = ?`)
	var o Operator
	var disabled int
	err := s.db.QueryRowContext(ctx, q, id).Scan(&o.OperatorID, &o.PasswordHash, &o.Role, &disabled, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.ErrNotFound("operator not found")
	}
	if err != nil {
		return nil, err
	}
	o.IsDisabled = disabled != 0
	return &o, nil
}

func (s *Store) Create(ctx context.Context, o *Operator) error {
	q := s.db.Dialect.Rebind(`
INSERT INTO operators (operator_id, password_hash, role, is_disabled, created_at)
VALUES (?, ?, ?, 0, ?)`)
	if _, err := s.db.ExecContext(ctx, q, o.OperatorID, o.PasswordHash, o.Role, o.CreatedAt); err != nil {
		if db.IsDuplicateKey(err) {
			return apierr.ErrConflict("operator already exists")
		}
		return fmt.Errorf("insert operator: %w", err)
	}
	return nil
}

func (s *Store) SetDisabled(ctx context.Context, id string, disabled bool) error {
	v := 0
	if disabled {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, s.db.Dialect.Rebind(`UPDATE operators SET is_disabled = ? WHERE operator_id = ?`), v, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.ErrNotFound("operator not found")
	}
	return nil
}
