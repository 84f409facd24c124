package lends

import (
	"database/sql"
	"time"
)

const DirectionOut = "OUT"

type State string

const (
	StateActive   State = "ACTIVE"
	StateReturned State = "RETURNED"
	StateOverdue  State = "OVERDUE" // 保存しない。estimated_return_at と now から導出
)

type Loan struct {
	LoanID                  string
	TicketNumber            string
	AssetID                 int64
	Quantity                int
	Direction               string
	Borrower                string
	Purpose                 sql.NullString
	LentBy                  sql.NullString
	CreatedAt               time.Time
	EstimatedReturnAt       sql.NullTime
	RealReturnAt            sql.NullTime
	DelivererSignature      string // blob key
	ReceiverSignature       string // blob key
	ReturnerSignature       sql.NullString
	ReturnReceiverSignature sql.NullString
	ReturnNotes             sql.NullString
}

func (l *Loan) Returned() bool { return l.RealReturnAt.Valid }

// IsOverdue: 未返却かつ返却予定日時を過ぎている
func (l *Loan) IsOverdue(now time.Time) bool {
	return !l.Returned() && l.EstimatedReturnAt.Valid && l.EstimatedReturnAt.Time.Before(now)
}

func (l *Loan) State(now time.Time) State {
	switch {
	case l.Returned():
		return StateReturned
	case l.IsOverdue(now):
		return StateOverdue
	default:
		return StateActive
	}
}
