package executions

import (
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePreventive Type = "PREVENTIVE"
	TypeCorrective Type = "CORRECTIVE"
	TypePredictive Type = "PREDICTIVE"
)

func ParseType(s string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypePreventive, TypeCorrective, TypePredictive:
		return t, true
	}
	return "", false
}

// Execution は追記のみ。予定エントリへの参照は任意で、予定側の状態は変えない。
type Execution struct {
	ExecutionID     string
	AssetID         int64
	ScheduleEntryID sql.NullString
	PerformedAt     time.Time
	Type            Type
	Description     string
	FaultsFound     sql.NullString
	PartsUsed       sql.NullString
	Responsible     string
	Cost            decimal.NullDecimal
	CreatedAt       time.Time
}
