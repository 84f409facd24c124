package schedules

import "time"

// POST /maintenance/schedules
type CreateEntryRequest struct {
	AssetID   int64           `json:"asset_id"`
	Year      int             `json:"year"`
	Slots     map[string]bool `json:"slots"` // jan_w1..dec_w4、省略は false
	Frequency string          `json:"frequency"`
	Notes     *string         `json:"notes,omitempty"`
}

// PATCH /maintenance/schedules/:entry_id
type UpdateEntryRequest struct {
	Slots     map[string]bool `json:"slots,omitempty"`
	Frequency *string         `json:"frequency,omitempty"`
	Status    *string         `json:"status,omitempty"`
	Notes     *string         `json:"notes,omitempty"`
}

// PUT /maintenance/schedules/:entry_id/status
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type EntryResponse struct {
	EntryID   string    `json:"entry_id"`
	AssetID   int64     `json:"asset_id"`
	Year      int       `json:"year"`
	Slots     Grid      `json:"slots"`
	Frequency Frequency `json:"frequency"`
	Status    Status    `json:"status"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WeekGrid struct {
	EntryID   string                      `json:"entry_id"`
	AssetID   int64                       `json:"asset_id"`
	Year      int                         `json:"year"`
	Status    Status                      `json:"status"`
	Frequency Frequency                   `json:"frequency"`
	Slots     Grid                        `json:"slots"`
	Matrix    [Months][WeeksPerMonth]bool `json:"matrix"`
	Cells     [Months][WeeksPerMonth]Cell `json:"cells"`
}

type StatusGroup struct {
	Status  Status          `json:"status"`
	Entries []EntryResponse `json:"entries"`
}

type WeekEntries struct {
	Year   int           `json:"year"`
	Month  int           `json:"month"`
	Week   int           `json:"week"`
	Total  int           `json:"total"`
	Groups []StatusGroup `json:"groups"`
}

func toResponse(e *Entry) EntryResponse {
	r := EntryResponse{
		EntryID:   e.EntryID,
		AssetID:   e.AssetID,
		Year:      e.Year,
		Slots:     e.Slots,
		Frequency: e.Frequency,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.Notes.Valid {
		n := e.Notes.String
		r.Notes = &n
	}
	return r
}
