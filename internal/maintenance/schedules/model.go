package schedules

import (
	"database/sql"
	"strings"
	"time"
)

type Frequency string

const (
	FreqDaily     Frequency = "DAILY"
	FreqWeekly    Frequency = "WEEKLY"
	FreqMonthly   Frequency = "MONTHLY"
	FreqQuarterly Frequency = "QUARTERLY"
	FreqBiannual  Frequency = "BIANNUAL"
	FreqAnnual    Frequency = "ANNUAL"
)

func ParseFrequency(s string) (Frequency, bool) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqQuarterly, FreqBiannual, FreqAnnual:
		return f, true
	}
	return "", false
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDone      Status = "DONE"
	StatusPostponed Status = "POSTPONED"
	StatusCanceled  Status = "CANCELED"
)

// 週ビューでのグループ順
var statusOrder = []Status{StatusPending, StatusPostponed, StatusDone, StatusCanceled}

// ParseStatus: 遷移制約はない（どの状態からどの状態へも可）
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range statusOrder {
		if v == st {
			return st, true
		}
	}
	return "", false
}

type Entry struct {
	EntryID   string
	AssetID   int64
	Year      int
	Slots     Grid
	Frequency Frequency
	Status    Status
	Notes     sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cell は表示用の導出値
type Cell struct {
	Month     int    `json:"month"`
	Week      int    `json:"week"`
	Scheduled bool   `json:"scheduled"`
	Display   string `json:"display"` // scheduled / done / flagged / suppressed / ""
	Color     string `json:"color,omitempty"`
	Priority  int    `json:"priority"` // 1 が最優先。予定なしは 0
}

// DeriveCell は副作用なし
func DeriveCell(st Status, month, week int, scheduled bool) Cell {
	c := Cell{Month: month, Week: week, Scheduled: scheduled}
	if !scheduled {
		return c
	}
	switch st {
	case StatusPostponed:
		c.Display, c.Color, c.Priority = "flagged", "orange", 1
	case StatusPending:
		c.Display, c.Color, c.Priority = "scheduled", "blue", 2
	case StatusDone:
		c.Display, c.Color, c.Priority = "done", "green", 3
	case StatusCanceled:
		c.Display, c.Color, c.Priority = "suppressed", "gray", 4
	}
	return c
}
