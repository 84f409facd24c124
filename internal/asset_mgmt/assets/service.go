package assets

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
	"ASSET-ledger/internal/platform/notify"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	store *Store
	clock Clock
	pub   notify.Publisher
}

func NewService(conn *db.DB, pub notify.Publisher) *Service {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &Service{store: NewStore(conn), clock: realClock{}, pub: pub}
}

func (s *Service) GetAsset(ctx context.Context, id int64) (AssetResponse, error) {
	if id <= 0 {
		return AssetResponse{}, apierr.ErrInvalid("asset_id must be > 0")
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return AssetResponse{}, err
	}
	return toResponse(a), nil
}

func (s *Service) ListAssets(ctx context.Context, p Page) ([]AssetResponse, int64, error) {
	items, total, err := s.store.List(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]AssetResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i]))
	}
	return out, total, nil
}

// UpsertAsset: total_quantity >= 0 かつ貸出中数量以上であることを保証する。
func (s *Service) UpsertAsset(ctx context.Context, id int64, in UpsertAssetRequest) (AssetResponse, error) {
	if id <= 0 {
		return AssetResponse{}, apierr.ErrInvalid("asset_id must be > 0")
	}
	if strings.TrimSpace(in.Name) == "" {
		return AssetResponse{}, apierr.ErrInvalid("name is required")
	}
	if in.TotalQuantity == nil {
		return AssetResponse{}, apierr.ErrInvalid("total_quantity is required")
	}
	if *in.TotalQuantity < 0 {
		return AssetResponse{}, apierr.ErrInvalidQuantity("total_quantity must be >= 0")
	}
	a := &Asset{
		AssetID:             id,
		ManagementNumber:    strings.TrimSpace(in.ManagementNumber),
		Name:                strings.TrimSpace(in.Name),
		TotalQuantity:       *in.TotalQuantity,
		FunctionalCondition: in.FunctionalCondition,
		PhysicalCondition:   in.PhysicalCondition,
		CategoryID:          toNullInt(in.CategoryID),
		SubcategoryID:       toNullInt(in.SubcategoryID),
		LocationID:          toNullInt(in.LocationID),
		UpdatedAt:           s.clock.Now(),
	}
	if err := s.store.ExecUpsert(ctx, a); err != nil {
		return AssetResponse{}, err
	}
	// total が変わるので在庫キャッシュを落とす
	s.pub.Publish(ctx, notify.Event{Kind: notify.AssetUpdated, AssetID: id, RefID: strconv.FormatInt(id, 10), At: a.UpdatedAt})
	return s.GetAsset(ctx, id)
}

func toNullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
