package stock

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
	"ASSET-ledger/internal/platform/metrics"
	"ASSET-ledger/internal/platform/notify"
)

func openDB(t *testing.T) *db.DB {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedAsset(t *testing.T, conn *db.DB, id int64, total int) {
	t.Helper()
	_, err := conn.ExecContext(context.Background(),
		`INSERT INTO assets (asset_id, management_number, name, total_quantity, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, "EQ", "asset", total, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed asset %d: %v", id, err)
	}
}

var loanSeq int

func seedLoan(t *testing.T, conn *db.DB, assetID int64, qty int, returned bool) {
	t.Helper()
	loanSeq++
	now := time.Now().UTC()
	var ret any
	if returned {
		ret = now
	}
	id := fmt.Sprintf("L%05d", loanSeq)
	_, err := conn.ExecContext(context.Background(), `
		INSERT INTO loans (loan_id, ticket_number, asset_id, quantity, borrower, created_at, real_return_at,
		                   deliverer_signature, receiver_signature)
		VALUES (?, ?, ?, ?, 'tester', ?, ?, 'sig/d', 'sig/r')`,
		id, "T-"+id, assetID, qty, now, ret)
	if err != nil {
		t.Fatalf("seed loan: %v", err)
	}
}

func newService(t *testing.T, conn *db.DB, basis Basis, m *metrics.Metrics) *Service {
	t.Helper()
	svc, err := NewService(conn, Options{Basis: basis, CacheSize: 16, Metrics: m})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestAvailable(t *testing.T) {
	if v, err := Available(5, 3); err != nil || v != 2 {
		t.Fatalf("Available(5,3) = %d, %v", v, err)
	}
	if v, err := Available(3, 3); err != nil || v != 0 {
		t.Fatalf("Available(3,3) = %d, %v", v, err)
	}
	if _, err := Available(2, 3); !apierr.Is(err, apierr.CodeConsistencyViolation) {
		t.Fatalf("negative must be a consistency violation, got %v", err)
	}
}

func TestAvailableStockMatchesLedger(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	seedAsset(t, conn, 1, 5)
	seedLoan(t, conn, 1, 2, false)
	seedLoan(t, conn, 1, 1, false)
	seedLoan(t, conn, 1, 4, true) // 返却済みは数えない
	svc := newService(t, conn, BasisTotal, nil)

	active, err := svc.ActiveLoanedQuantity(ctx, 1)
	if err != nil || active != 3 {
		t.Fatalf("active = %d, %v", active, err)
	}
	avail, err := svc.AvailableStock(ctx, 1)
	if err != nil || avail != 2 {
		t.Fatalf("available = %d, %v", avail, err)
	}
	if _, err := svc.AvailableStock(ctx, 42); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown asset, got %v", err)
	}
}

func TestCacheInvalidatedOnCommitEvent(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	seedAsset(t, conn, 1, 5)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := newService(t, conn, BasisTotal, m)
	hub := notify.NewHub()
	hub.OnCommit(svc.Cache().OnEvent)

	if v, _ := svc.AvailableStock(ctx, 1); v != 5 {
		t.Fatalf("available = %d", v)
	}
	seedLoan(t, conn, 1, 2, false)
	// 無効化前はキャッシュの値
	if v, _ := svc.AvailableStock(ctx, 1); v != 5 {
		t.Fatalf("expected cached value 5, got %d", v)
	}
	hub.Publish(ctx, notify.Event{Kind: notify.LoanCreated, AssetID: 1})
	if v, _ := svc.AvailableStock(ctx, 1); v != 3 {
		t.Fatalf("expected 3 after invalidation, got %d", v)
	}
	if hits := testutil.ToFloat64(m.StockCache.WithLabelValues("hit")); hits != 1 {
		t.Fatalf("cache hits = %v", hits)
	}

	// 関係ないイベントでは落とさない
	before := svc.Cache().Generation()
	svc.Cache().OnEvent(notify.Event{Kind: notify.ScheduleCreated, AssetID: 1})
	if svc.Cache().Generation() != before {
		t.Fatalf("schedule event must not invalidate stock cache")
	}
}

func TestDisabledCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	seedAsset(t, conn, 1, 5)
	svc, err := NewService(conn, Options{CacheSize: -1})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Cache() != nil {
		t.Fatalf("cache should be disabled")
	}
	hub := notify.NewHub()
	hub.OnCommit(svc.Cache().OnEvent)

	if v, _ := svc.AvailableStock(ctx, 1); v != 5 {
		t.Fatalf("available = %d", v)
	}
	// 別インスタンスの書き込み（通知なし）でもすぐ見える
	seedLoan(t, conn, 1, 2, false)
	if v, _ := svc.AvailableStock(ctx, 1); v != 3 {
		t.Fatalf("expected 3 without cache, got %d", v)
	}
	hub.Publish(ctx, notify.Event{Kind: notify.LoanCreated, AssetID: 1})
}

func TestCacheSkipsStaleAdd(t *testing.T) {
	c, err := NewCache(4, nil)
	if err != nil {
		t.Fatal(err)
	}
	gen := c.Generation()
	c.Invalidate(7) // 読み取り中にコミットがあった
	if c.Add(7, Level{Total: 5}, gen) {
		t.Fatalf("stale level must not be cached")
	}
	if _, ok := c.Get(7); ok {
		t.Fatalf("unexpected cache entry")
	}
	if !c.Add(7, Level{Total: 5}, c.Generation()) || c.Len() != 1 {
		t.Fatalf("fresh level should be cached")
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("purge left %d entries", c.Len())
	}
}

func TestLowStockReportOrdering(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	seedAsset(t, conn, 1, 2) // avail 2
	seedAsset(t, conn, 2, 1)
	seedLoan(t, conn, 2, 1, false) // avail 0
	seedAsset(t, conn, 3, 2)
	seedLoan(t, conn, 3, 1, false) // avail 1
	seedAsset(t, conn, 4, 0)       // avail 0
	seedAsset(t, conn, 5, 10)
	seedLoan(t, conn, 5, 9, false) // total 10 なので対象外
	svc := newService(t, conn, BasisTotal, nil)

	rep, err := svc.LowStockReport(ctx, 0)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Threshold != DefaultThreshold || rep.Basis != BasisTotal {
		t.Fatalf("unexpected header %+v", rep)
	}
	want := []int64{2, 4, 3, 1}
	if len(rep.Items) != len(want) {
		t.Fatalf("items = %+v", rep.Items)
	}
	for i, id := range want {
		if rep.Items[i].AssetID != id {
			t.Fatalf("position %d: got asset %d, want %d (%+v)", i, rep.Items[i].AssetID, id, rep.Items)
		}
	}
	seenPositive := false
	for _, r := range rep.Items {
		if r.Available > 0 {
			seenPositive = true
		} else if seenPositive {
			t.Fatalf("zero-stock asset after positive one: %+v", rep.Items)
		}
		if r.NoStock != (r.Available == 0) {
			t.Fatalf("no_stock flag mismatch: %+v", r)
		}
	}
}

func TestLowStockReportAvailableBasis(t *testing.T) {
	conn := openDB(t)
	seedAsset(t, conn, 1, 10)
	seedLoan(t, conn, 1, 9, false) // avail 1
	seedAsset(t, conn, 2, 2)       // avail 2
	seedAsset(t, conn, 3, 50)      // avail 50
	svc := newService(t, conn, BasisAvailable, nil)

	rep, err := svc.LowStockReport(context.Background(), 3)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rep.Items) != 2 || rep.Items[0].AssetID != 1 || rep.Items[1].AssetID != 2 {
		t.Fatalf("unexpected items %+v", rep.Items)
	}

	snap, err := svc.Snapshot(context.Background(), 1)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.LowStock || snap.NoStock || snap.Available != 1 || snap.ActiveLoaned != 9 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestConsistencyViolationIsFatal(t *testing.T) {
	conn := openDB(t)
	seedAsset(t, conn, 1, 2)
	seedLoan(t, conn, 1, 3, false) // 台帳の外から壊す
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := newService(t, conn, BasisTotal, m)

	if _, err := svc.AvailableStock(context.Background(), 1); !apierr.Is(err, apierr.CodeConsistencyViolation) {
		t.Fatalf("expected CONSISTENCY_VIOLATION, got %v", err)
	}
	if _, err := svc.LowStockReport(context.Background(), 3); !apierr.Is(err, apierr.CodeConsistencyViolation) {
		t.Fatalf("report must abort on violation, got %v", err)
	}
	if got := testutil.ToFloat64(m.ConsistencyViolations); got != 2 {
		t.Fatalf("violations counted = %v", got)
	}
}

func TestNewServiceRejectsUnknownBasis(t *testing.T) {
	if _, err := NewService(nil, Options{Basis: "median"}); err == nil {
		t.Fatalf("expected error")
	}
}
