package stock

import (
	"context"
	"fmt"
	"log"
	"sort"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
	"ASSET-ledger/internal/platform/metrics"
)

const DefaultThreshold = 3

type Options struct {
	Threshold int
	Basis     Basis
	CacheSize int
	Metrics   *metrics.Metrics
}

type Service struct {
	db        *db.DB
	cache     *Cache
	metrics   *metrics.Metrics
	threshold int
	basis     Basis
}

func NewService(conn *db.DB, opt Options) (*Service, error) {
	if opt.Threshold <= 0 {
		opt.Threshold = DefaultThreshold
	}
	switch opt.Basis {
	case BasisTotal, BasisAvailable:
	case "":
		opt.Basis = BasisTotal
	default:
		return nil, fmt.Errorf("unknown low stock basis %q", opt.Basis)
	}
	cache, err := NewCache(opt.CacheSize, opt.Metrics)
	if err != nil {
		return nil, err
	}
	return &Service{db: conn, cache: cache, metrics: opt.Metrics, threshold: opt.Threshold, basis: opt.Basis}, nil
}

// Cache は notify.Hub への登録用
func (s *Service) Cache() *Cache { return s.cache }

func (s *Service) level(ctx context.Context, assetID int64) (Level, error) {
	if assetID <= 0 {
		return Level{}, apierr.ErrInvalid("asset_id must be > 0")
	}
	if lv, ok := s.cache.Get(assetID); ok {
		return lv, nil
	}
	gen := s.cache.Generation()
	var lv Level
	err := db.ReadOnly(ctx, s.db.DB, func(ctx context.Context, tx db.DBTX) error {
		var err error
		lv, err = LoadLevel(ctx, tx, s.db.Dialect, assetID, false)
		return err
	})
	if err != nil {
		return Level{}, err
	}
	s.cache.Add(assetID, lv, gen)
	return lv, nil
}

func (s *Service) ActiveLoanedQuantity(ctx context.Context, assetID int64) (int, error) {
	lv, err := s.level(ctx, assetID)
	if err != nil {
		return 0, err
	}
	return lv.Active, nil
}

func (s *Service) AvailableStock(ctx context.Context, assetID int64) (int, error) {
	lv, err := s.level(ctx, assetID)
	if err != nil {
		return 0, err
	}
	return s.Check(assetID, lv)
}

// Check は Available を計算し、不整合なら大きくログを出して数える
func (s *Service) Check(assetID int64, lv Level) (int, error) {
	avail, err := lv.Available()
	if err != nil {
		log.Printf("[ERROR] ledger consistency violation: asset=%d total=%d active=%d", assetID, lv.Total, lv.Active)
		s.metrics.Violation()
		s.cache.Invalidate(assetID)
		return 0, err
	}
	return avail, nil
}

func (s *Service) Snapshot(ctx context.Context, assetID int64) (Snapshot, error) {
	lv, err := s.level(ctx, assetID)
	if err != nil {
		return Snapshot{}, err
	}
	avail, err := s.Check(assetID, lv)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		AssetID:      assetID,
		Total:        lv.Total,
		ActiveLoaned: lv.Active,
		Available:    avail,
		NoStock:      avail == 0,
		LowStock:     s.isLow(lv.Total, avail, s.threshold),
	}, nil
}

func (s *Service) isLow(total, avail, threshold int) bool {
	if s.basis == BasisAvailable {
		return avail < threshold
	}
	return total < threshold
}

// LowStockReport は閾値未満の資産を available 昇順（0 が先頭）、同値は asset_id 昇順で返す。
// threshold <= 0 なら設定値を使う。
func (s *Service) LowStockReport(ctx context.Context, threshold int) (LowStockReport, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	q := `
	SELECT a.asset_id, a.management_number, a.name, a.total_quantity,
	       COALESCE((SELECT SUM(l.quantity) FROM loans l
	                 WHERE l.asset_id = a.asset_id AND l.real_return_at IS NULL), 0)
	FROM assets a`
	var args []any
	if s.basis == BasisTotal {
		q += ` WHERE a.total_quantity < ?`
		args = append(args, threshold)
	}

	rows := []ReportRow{}
	err := db.ReadOnly(ctx, s.db.DB, func(ctx context.Context, tx db.DBTX) error {
		rs, err := tx.QueryContext(ctx, s.db.Dialect.Rebind(q), args...)
		if err != nil {
			return fmt.Errorf("low stock query: %w", err)
		}
		defer rs.Close()
		for rs.Next() {
			var r ReportRow
			if err := rs.Scan(&r.AssetID, &r.ManagementNumber, &r.Name, &r.Total, &r.ActiveLoaned); err != nil {
				return err
			}
			rows = append(rows, r)
		}
		return rs.Err()
	})
	if err != nil {
		return LowStockReport{}, err
	}

	items := make([]ReportRow, 0, len(rows))
	for _, r := range rows {
		avail, err := s.Check(r.AssetID, Level{Total: r.Total, Active: r.ActiveLoaned})
		if err != nil {
			return LowStockReport{}, err
		}
		if !s.isLow(r.Total, avail, threshold) {
			continue
		}
		r.Available = avail
		r.NoStock = avail == 0
		items = append(items, r)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Available != items[j].Available {
			return items[i].Available < items[j].Available
		}
		return items[i].AssetID < items[j].AssetID
	})
	return LowStockReport{Threshold: threshold, Basis: s.basis, Items: items}, nil
}
