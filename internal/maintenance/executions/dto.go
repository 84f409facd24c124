package executions

import (
	"time"

	"github.com/shopspring/decimal"
)

// POST /maintenance/executions
type RecordRequest struct {
	AssetID         int64            `json:"asset_id"`
	ScheduleEntryID *string          `json:"schedule_entry_id,omitempty"`
	PerformedAt     time.Time        `json:"performed_at"`
	Type            string           `json:"type"`
	Description     string           `json:"description"`
	Responsible     string           `json:"responsible"`
	Cost            *decimal.Decimal `json:"cost,omitempty"` // "1250.50" でも 1250.5 でも可
	PartsUsed       *string          `json:"parts_used,omitempty"`
	FaultsFound     *string          `json:"faults_found,omitempty"`
}

type ExecutionResponse struct {
	ExecutionID     string           `json:"execution_id"`
	AssetID         int64            `json:"asset_id"`
	ScheduleEntryID *string          `json:"schedule_entry_id,omitempty"`
	PerformedAt     time.Time        `json:"performed_at"`
	Type            Type             `json:"type"`
	Description     string           `json:"description"`
	FaultsFound     *string          `json:"faults_found,omitempty"`
	PartsUsed       *string          `json:"parts_used,omitempty"`
	Responsible     string           `json:"responsible"`
	Cost            *decimal.Decimal `json:"cost,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type Filter struct {
	AssetID         *int64
	ScheduleEntryID *string
	From            *time.Time // inclusive
	To              *time.Time // exclusive
	Limit           int
	Offset          int
}

type ListResult struct {
	Items     []ExecutionResponse `json:"items"`
	Total     int64               `json:"total"`
	TotalCost decimal.Decimal     `json:"total_cost"`
}

func toResponse(e *Execution) ExecutionResponse {
	r := ExecutionResponse{
		ExecutionID: e.ExecutionID,
		AssetID:     e.AssetID,
		PerformedAt: e.PerformedAt.UTC(),
		Type:        e.Type,
		Description: e.Description,
		Responsible: e.Responsible,
		CreatedAt:   e.CreatedAt,
	}
	if e.ScheduleEntryID.Valid {
		v := e.ScheduleEntryID.String
		r.ScheduleEntryID = &v
	}
	if e.FaultsFound.Valid {
		v := e.FaultsFound.String
		r.FaultsFound = &v
	}
	if e.PartsUsed.Valid {
		v := e.PartsUsed.String
		r.PartsUsed = &v
	}
	if e.Cost.Valid {
		v := e.Cost.Decimal
		r.Cost = &v
	}
	return r
}
