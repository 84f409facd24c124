package stock

type Basis string

const (
	BasisTotal     Basis = "total"     // total_quantity < threshold（従来の挙動）
	BasisAvailable Basis = "available" // available < threshold
)

type Snapshot struct {
	AssetID      int64 `json:"asset_id"`
	Total        int   `json:"total_quantity"`
	ActiveLoaned int   `json:"active_loaned_quantity"`
	Available    int   `json:"available_stock"`
	NoStock      bool  `json:"no_stock"`
	LowStock     bool  `json:"low_stock"`
}

type ReportRow struct {
	AssetID          int64  `json:"asset_id"`
	ManagementNumber string `json:"management_number"`
	Name             string `json:"name"`
	Total            int    `json:"total_quantity"`
	ActiveLoaned     int    `json:"active_loaned_quantity"`
	Available        int    `json:"available_stock"`
	NoStock          bool   `json:"no_stock"`
}

type LowStockReport struct {
	Threshold int         `json:"threshold"`
	Basis     Basis       `json:"basis"`
	Items     []ReportRow `json:"items"`
}
