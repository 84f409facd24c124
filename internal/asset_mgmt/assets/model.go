package assets

import (
	"database/sql"
	"time"
)

// Asset は assets テーブルの1行。total_quantity はカタログ側の編集でのみ変わる。
type Asset struct {
	AssetID             int64
	ManagementNumber    string
	Name                string
	TotalQuantity       int
	FunctionalCondition string
	PhysicalCondition   string
	CategoryID          sql.NullInt64
	SubcategoryID       sql.NullInt64
	LocationID          sql.NullInt64
	UpdatedAt           time.Time
}
