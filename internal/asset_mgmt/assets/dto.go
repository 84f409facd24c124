package assets

import "time"

// カタログ同期用 (PUT /assets/:asset_id)
type UpsertAssetRequest struct {
	ManagementNumber    string `json:"management_number"`
	Name                string `json:"name" binding:"required"`
	TotalQuantity       *int   `json:"total_quantity" binding:"required"`
	FunctionalCondition string `json:"functional_condition"`
	PhysicalCondition   string `json:"physical_condition"`
	CategoryID          *int64 `json:"category_id,omitempty"`
	SubcategoryID       *int64 `json:"subcategory_id,omitempty"`
	LocationID          *int64 `json:"location_id,omitempty"`
}

type AssetResponse struct {
	AssetID             int64     `json:"asset_id"`
	ManagementNumber    string    `json:"management_number"`
	Name                string    `json:"name"`
	TotalQuantity       int       `json:"total_quantity"`
	FunctionalCondition string    `json:"functional_condition"`
	PhysicalCondition   string    `json:"physical_condition"`
	CategoryID          *int64    `json:"category_id,omitempty"`
	SubcategoryID       *int64    `json:"subcategory_id,omitempty"`
	LocationID          *int64    `json:"location_id,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

func toResponse(a *Asset) AssetResponse {
	return AssetResponse{
		AssetID:             a.AssetID,
		ManagementNumber:    a.ManagementNumber,
		Name:                a.Name,
		TotalQuantity:       a.TotalQuantity,
		FunctionalCondition: a.FunctionalCondition,
		PhysicalCondition:   a.PhysicalCondition,
		CategoryID:          nullToPtr(a.CategoryID.Int64, a.CategoryID.Valid),
		SubcategoryID:       nullToPtr(a.SubcategoryID.Int64, a.SubcategoryID.Valid),
		LocationID:          nullToPtr(a.LocationID.Int64, a.LocationID.Valid),
		UpdatedAt:           a.UpdatedAt,
	}
}

func nullToPtr(v int64, ok bool) *int64 {
	if !ok {
		return nil
	}
	return &v
}
