package lends

import (
	"encoding/json"
	"time"
)

// POST /loans
type CreateLoanRequest struct {
	AssetID           int64       `json:"asset_id"`
	Quantity          json.Number `json:"quantity"`
	Borrower          string      `json:"borrower"`
	Purpose           *string     `json:"purpose,omitempty"`
	LentBy            *string     `json:"lent_by,omitempty"`
	EstimatedReturnAt *time.Time  `json:"estimated_return_at,omitempty"`

	// base64 か data URL
	DelivererSignature string `json:"deliverer_signature"`
	ReceiverSignature  string `json:"receiver_signature"`
}

// POST /loans/:loan_ref/return
type ReturnRequest struct {
	ReturnedAt              *time.Time `json:"returned_at,omitempty"` // 省略時は現在時刻
	ReturnerSignature       string     `json:"returner_signature"`
	ReturnReceiverSignature string     `json:"return_receiver_signature"`
	Notes                   *string    `json:"notes,omitempty"`
}

type LoanResponse struct {
	LoanID                  string     `json:"loan_id"`
	TicketNumber            string     `json:"ticket_number"`
	AssetID                 int64      `json:"asset_id"`
	Quantity                int        `json:"quantity"`
	Direction               string     `json:"direction"`
	Borrower                string     `json:"borrower"`
	Purpose                 *string    `json:"purpose,omitempty"`
	LentBy                  *string    `json:"lent_by,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	EstimatedReturnAt       *time.Time `json:"estimated_return_at,omitempty"`
	RealReturnAt            *time.Time `json:"real_return_at,omitempty"`
	DelivererSignature      string     `json:"deliverer_signature_key"`
	ReceiverSignature       string     `json:"receiver_signature_key"`
	ReturnerSignature       *string    `json:"returner_signature_key,omitempty"`
	ReturnReceiverSignature *string    `json:"return_receiver_signature_key,omitempty"`
	ReturnNotes             *string    `json:"return_notes,omitempty"`
	State                   State      `json:"state"`
	Overdue                 bool       `json:"overdue"`
}

type LoanFilter struct {
	AssetID  *int64
	Borrower *string
	State    State // "" = 全件
	Limit    int
	Offset   int
}

func toResponse(l *Loan, now time.Time) LoanResponse {
	return LoanResponse{
		LoanID:                  l.LoanID,
		TicketNumber:            l.TicketNumber,
		AssetID:                 l.AssetID,
		Quantity:                l.Quantity,
		Direction:               l.Direction,
		Borrower:                l.Borrower,
		Purpose:                 strPtr(l.Purpose.String, l.Purpose.Valid),
		LentBy:                  strPtr(l.LentBy.String, l.LentBy.Valid),
		CreatedAt:               l.CreatedAt,
		EstimatedReturnAt:       timePtr(l.EstimatedReturnAt.Time, l.EstimatedReturnAt.Valid),
		RealReturnAt:            timePtr(l.RealReturnAt.Time, l.RealReturnAt.Valid),
		DelivererSignature:      l.DelivererSignature,
		ReceiverSignature:       l.ReceiverSignature,
		ReturnerSignature:       strPtr(l.ReturnerSignature.String, l.ReturnerSignature.Valid),
		ReturnReceiverSignature: strPtr(l.ReturnReceiverSignature.String, l.ReturnReceiverSignature.Valid),
		ReturnNotes:             strPtr(l.ReturnNotes.String, l.ReturnNotes.Valid),
		State:                   l.State(now),
		Overdue:                 l.IsOverdue(now),
	}
}

func strPtr(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}

func timePtr(t time.Time, ok bool) *time.Time {
	if !ok {
		return nil
	}
	t = t.UTC()
	return &t
}
