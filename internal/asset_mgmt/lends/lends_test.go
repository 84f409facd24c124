package lends

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ASSET-ledger/internal/asset_mgmt/stock"
	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/blob"
	"ASSET-ledger/internal/platform/db"
	"ASSET-ledger/internal/platform/metrics"
	"ASSET-ledger/internal/platform/notify"
)

const sig = "cG5n" // "png"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	conn    *db.DB
	svc     *Service
	stock   *stock.Service
	blobs   *blob.Memory
	hub     *notify.Hub
	metrics *metrics.Metrics
	clock   *fakeClock
}

func newEnv(t *testing.T, localLock bool) *env {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	m := metrics.New(prometheus.NewRegistry())
	st, err := stock.NewService(conn, stock.Options{Metrics: m})
	if err != nil {
		t.Fatalf("stock service: %v", err)
	}
	hub := notify.NewHub()
	hub.OnCommit(st.Cache().OnEvent)
	blobs := blob.NewMemory()

	svc := NewService(conn, Deps{
		Blobs:     blobs,
		Publisher: hub,
		Stock:     st,
		Retrier:   db.NewRetrier(3, time.Millisecond, 5*time.Millisecond),
		Metrics:   m,
		LocalLock: localLock,
	})
	clock := &fakeClock{t: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	svc.clock = clock
	return &env{conn: conn, svc: svc, stock: st, blobs: blobs, hub: hub, metrics: m, clock: clock}
}

func (e *env) seedAsset(t *testing.T, id int64, total int) {
	t.Helper()
	_, err := e.conn.ExecContext(context.Background(),
		`INSERT INTO assets (asset_id, management_number, name, total_quantity, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, "EQ", "asset", total, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed asset: %v", err)
	}
}

func loanReq(assetID int64, qty string) CreateLoanRequest {
	return CreateLoanRequest{
		AssetID:            assetID,
		Quantity:           json.Number(qty),
		Borrower:           "yamada",
		DelivererSignature: sig,
		ReceiverSignature:  "data:image/png;base64," + sig,
	}
}

func returnReq() ReturnRequest {
	return ReturnRequest{ReturnerSignature: sig, ReturnReceiverSignature: sig}
}

func (e *env) available(t *testing.T, assetID int64) int {
	t.Helper()
	v, err := e.stock.AvailableStock(context.Background(), assetID)
	if err != nil {
		t.Fatalf("available stock: %v", err)
	}
	return v
}

func TestLoanScenarios(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, true)
	e.seedAsset(t, 1, 5)

	// 1: 5台中3台貸出 → 残り2
	first, err := e.svc.CreateLoan(ctx, loanReq(1, "3"))
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	if got := e.available(t, 1); got != 2 {
		t.Fatalf("available after first loan = %d, want 2", got)
	}
	if first.State != StateActive || first.Direction != DirectionOut || first.RealReturnAt != nil {
		t.Fatalf("unexpected loan %+v", first)
	}

	// 2: 残り2に対して3 → 在庫不足
	_, err = e.svc.CreateLoan(ctx, loanReq(1, "3"))
	if !apierr.Is(err, apierr.CodeInsufficientStock) {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}
	if got := e.available(t, 1); got != 2 {
		t.Fatalf("failed loan changed stock: %d", got)
	}

	// 4: 返却で5に戻る
	e.clock.Advance(time.Hour)
	ret, err := e.svc.RegisterReturn(ctx, first.LoanID, returnReq())
	if err != nil {
		t.Fatalf("register return: %v", err)
	}
	if ret.RealReturnAt == nil || ret.State != StateReturned || ret.ReturnerSignature == nil {
		t.Fatalf("return not recorded: %+v", ret)
	}
	if got := e.available(t, 1); got != 5 {
		t.Fatalf("available after return = %d, want 5", got)
	}

	if got := testutil.ToFloat64(e.metrics.LoansCreated); got != 1 {
		t.Fatalf("loans created metric = %v", got)
	}
	if got := testutil.ToFloat64(e.metrics.LoanRejections.WithLabelValues("createLoan", "INSUFFICIENT_STOCK")); got != 1 {
		t.Fatalf("rejection metric = %v", got)
	}
}

func TestCreateLoanRejectsBadQuantity(t *testing.T) {
	e := newEnv(t, true)
	e.seedAsset(t, 1, 5)
	for _, q := range []string{"0", "-1", "2.5", "", "abc"} {
		_, err := e.svc.CreateLoan(context.Background(), loanReq(1, q))
		if !apierr.Is(err, apierr.CodeInvalidQuantity) {
			t.Fatalf("quantity %q: expected INVALID_QUANTITY, got %v", q, err)
		}
	}
	if e.blobs.Len() != 0 {
		t.Fatalf("invalid request must not upload signatures")
	}
}

func TestCreateLoanValidation(t *testing.T) {
	e := newEnv(t, true)
	e.seedAsset(t, 1, 5)
	ctx := context.Background()

	req := loanReq(1, "1")
	req.ReceiverSignature = ""
	if _, err := e.svc.CreateLoan(ctx, req); !apierr.Is(err, apierr.CodeInvalidArgument) {
		t.Fatalf("missing signature: %v", err)
	}
	req = loanReq(1, "1")
	req.DelivererSignature = "not base64!"
	if _, err := e.svc.CreateLoan(ctx, req); !apierr.Is(err, apierr.CodeInvalidArgument) {
		t.Fatalf("bad signature: %v", err)
	}
	req = loanReq(1, "1")
	past := e.clock.Now().Add(-time.Hour)
	req.EstimatedReturnAt = &past
	if _, err := e.svc.CreateLoan(ctx, req); !apierr.Is(err, apierr.CodeInvalidArgument) {
		t.Fatalf("past estimated return: %v", err)
	}
	if _, err := e.svc.CreateLoan(ctx, loanReq(99, "1")); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("unknown asset: %v", err)
	}
	if e.blobs.Len() != 0 {
		t.Fatalf("signatures left behind after failures: %d", e.blobs.Len())
	}
}

func TestFailedLoanRemovesSignatures(t *testing.T) {
	e := newEnv(t, true)
	e.seedAsset(t, 1, 2)
	ctx := context.Background()
	if _, err := e.svc.CreateLoan(ctx, loanReq(1, "2")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.blobs.Len() != 2 {
		t.Fatalf("expected 2 signature blobs, got %d", e.blobs.Len())
	}
	if _, err := e.svc.CreateLoan(ctx, loanReq(1, "1")); !apierr.Is(err, apierr.CodeInsufficientStock) {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}
	if e.blobs.Len() != 2 {
		t.Fatalf("rejected loan left signatures: %d", e.blobs.Len())
	}
	var n int
	if err := e.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("loan rows = %d, %v", n, err)
	}
}

func TestConcurrentLoansSameAsset(t *testing.T) {
	for _, local := range []bool{true, false} {
		name := "db-lock-only"
		if local {
			name = "local-lock"
		}
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, local)
			e.seedAsset(t, 1, 5)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = e.svc.CreateLoan(context.Background(), loanReq(1, "3"))
				}(i)
			}
			wg.Wait()

			ok, short := 0, 0
			for _, err := range errs {
				switch {
				case err == nil:
					ok++
				case apierr.Is(err, apierr.CodeInsufficientStock):
					short++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if ok != 1 || short != 1 {
				t.Fatalf("want exactly one success, got ok=%d insufficient=%d", ok, short)
			}
			if got := e.available(t, 1); got != 2 {
				t.Fatalf("available = %d, want 2", got)
			}
		})
	}
}

func TestConcurrentLoansNeverOversell(t *testing.T) {
	e := newEnv(t, false)
	e.seedAsset(t, 1, 7)

	qtys := []string{"1", "2", "3", "1", "2", "3", "1", "2", "3", "1"}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, q := range qtys {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			res, err := e.svc.CreateLoan(context.Background(), loanReq(1, q))
			if err != nil {
				if !apierr.Is(err, apierr.CodeInsufficientStock) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			accepted += res.Quantity
			mu.Unlock()
		}(q)
	}
	wg.Wait()

	if accepted > 7 {
		t.Fatalf("accepted %d units of 7", accepted)
	}
	active, err := e.stock.ActiveLoanedQuantity(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if active != accepted {
		t.Fatalf("ledger active %d != accepted %d", active, accepted)
	}
	if got := e.available(t, 1); got != 7-accepted || got < 0 {
		t.Fatalf("available = %d, accepted = %d", got, accepted)
	}
}

func TestRegisterReturnOnce(t *testing.T) {
	e := newEnv(t, true)
	e.seedAsset(t, 1, 5)
	ctx := context.Background()
	loan, err := e.svc.CreateLoan(ctx, loanReq(1, "2"))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.RegisterReturn(ctx, loan.TicketNumber, returnReq())
		}(i)
	}
	wg.Wait()

	ok, already := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apierr.Is(err, apierr.CodeAlreadyReturned):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != len(errs)-1 {
		t.Fatalf("ok=%d already=%d", ok, already)
	}
	// 2 (貸出) + 2 (返却) のみ残る
	if e.blobs.Len() != 4 {
		t.Fatalf("signature blobs = %d, want 4", e.blobs.Len())
	}
	if got := e.available(t, 1); got != 5 {
		t.Fatalf("available = %d", got)
	}

	_, err = e.svc.RegisterReturn(ctx, loan.LoanID, returnReq())
	if !apierr.Is(err, apierr.CodeAlreadyReturned) {
		t.Fatalf("sequential second return: %v", err)
	}
}

func TestRegisterReturnErrors(t *testing.T) {
	e := newEnv(t, true)
	e.seedAsset(t, 1, 5)
	ctx := context.Background()

	if _, err := e.svc.RegisterReturn(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", returnReq()); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := e.svc.RegisterReturn(ctx, "LN-20250101-XXXXXXXX", returnReq()); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for ticket, got %v", err)
	}
	if _, err := e.svc.RegisterReturn(ctx, "garbage", returnReq()); !apierr.Is(err, apierr.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}

	loan, err := e.svc.CreateLoan(ctx, loanReq(1, "1"))
	if err != nil {
		t.Fatal(err)
	}
	before := loan.CreatedAt.Add(-time.Minute)
	req := returnReq()
	req.ReturnedAt = &before
	if _, err := e.svc.RegisterReturn(ctx, loan.LoanID, req); !apierr.Is(err, apierr.CodeInvalidArgument) {
		t.Fatalf("return before creation: %v", err)
	}
	future := e.clock.Now().Add(time.Hour)
	req.ReturnedAt = &future
	if _, err := e.svc.RegisterReturn(ctx, loan.LoanID, req); !apierr.Is(err, apierr.CodeInvalidArgument) {
		t.Fatalf("return in the future: %v", err)
	}
	got, err := e.svc.GetLoan(ctx, loan.LoanID)
	if err != nil || got.RealReturnAt != nil {
		t.Fatalf("failed return modified the loan: %+v %v", got, err)
	}
}

func TestFindByTicketNumber(t *testing.T) {
	e := newEnv(t, true)
	e.seedAsset(t, 1, 5)
	ctx := context.Background()
	loan, err := e.svc.CreateLoan(ctx, loanReq(1, "1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(loan.TicketNumber) != len("LN-20250401-XXXXXXXX") || loan.TicketNumber[:12] != "LN-20250401-" {
		t.Fatalf("unexpected ticket %q", loan.TicketNumber)
	}

	got, err := e.svc.FindByTicketNumber(ctx, "  "+loan.TicketNumber+" ")
	if err != nil || got.LoanID != loan.LoanID {
		t.Fatalf("lookup by ticket: %+v %v", got, err)
	}
	// 全角入力
	wide := "ＬＮ－２０２５０４０１－" + toFullWidth(loan.TicketNumber[12:])
	got, err = e.svc.FindByTicketNumber(ctx, wide)
	if err != nil || got.LoanID != loan.LoanID {
		t.Fatalf("lookup by full-width ticket %q: %v", wide, err)
	}
	if _, err := e.svc.FindByTicketNumber(ctx, "LN-19990101-AAAAAAAA"); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetLoanHandlerAcceptsIDOrTicket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := newEnv(t, true)
	e.seedAsset(t, 1, 5)
	loan, err := e.svc.CreateLoan(context.Background(), loanReq(1, "1"))
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	RegisterRoutes(r, r, e.svc)

	cases := []struct {
		ref  string
		want int
	}{
		{loan.LoanID, http.StatusOK},
		{strings.ToLower(loan.TicketNumber), http.StatusOK},
		{"LN-19990101-AAAAAAAA", http.StatusNotFound},
		{"garbage", http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/loans/"+tc.ref, nil))
		if w.Code != tc.want {
			t.Fatalf("GET /loans/%s = %d, want %d: %s", tc.ref, w.Code, tc.want, w.Body.String())
		}
		if tc.want != http.StatusOK {
			continue
		}
		var got LoanResponse
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.LoanID != loan.LoanID {
			t.Fatalf("GET /loans/%s body = %s (%v)", tc.ref, w.Body.String(), err)
		}
	}
}

func toFullWidth(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '!' && r <= '~' {
			r += 0xFEE0
		}
		out = append(out, r)
	}
	return string(out)
}

func TestListLoansAndOverdue(t *testing.T) {
	e := newEnv(t, true)
	e.seedAsset(t, 1, 10)
	e.seedAsset(t, 2, 10)
	ctx := context.Background()

	due := e.clock.Now().Add(24 * time.Hour)
	req := loanReq(1, "1")
	req.EstimatedReturnAt = &due
	late, err := e.svc.CreateLoan(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(time.Minute)
	open, err := e.svc.CreateLoan(ctx, loanReq(2, "1"))
	if err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(time.Minute)
	done, err := e.svc.CreateLoan(ctx, loanReq(1, "2"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.RegisterReturn(ctx, done.LoanID, returnReq()); err != nil {
		t.Fatal(err)
	}

	e.clock.Advance(48 * time.Hour)

	items, total, err := e.svc.ListLoans(ctx, LoanFilter{State: StateOverdue})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].LoanID != late.LoanID || !items[0].Overdue || items[0].State != StateOverdue {
		t.Fatalf("overdue list = %+v", items)
	}

	items, total, err = e.svc.ListLoans(ctx, LoanFilter{State: StateActive})
	if err != nil || total != 2 {
		t.Fatalf("active list total=%d err=%v", total, err)
	}
	if items[0].LoanID != open.LoanID {
		t.Fatalf("expected newest first, got %+v", items)
	}

	asset := int64(1)
	_, total, err = e.svc.ListLoans(ctx, LoanFilter{AssetID: &asset, State: StateReturned})
	if err != nil || total != 1 {
		t.Fatalf("returned list total=%d err=%v", total, err)
	}

	if _, _, err := e.svc.ListLoans(ctx, LoanFilter{State: "LOST"}); !apierr.Is(err, apierr.CodeInvalidArgument) {
		t.Fatalf("unknown state: %v", err)
	}
}

func TestLoanEventsPublished(t *testing.T) {
	e := newEnv(t, true)
	e.seedAsset(t, 1, 5)
	var (
		mu    sync.Mutex
		kinds []notify.Kind
	)
	e.hub.OnCommit(func(ev notify.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	ctx := context.Background()
	loan, err := e.svc.CreateLoan(ctx, loanReq(1, "1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.CreateLoan(ctx, loanReq(1, "9")); err == nil {
		t.Fatalf("expected failure")
	}
	if _, err := e.svc.RegisterReturn(ctx, loan.LoanID, returnReq()); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 2 || kinds[0] != notify.LoanCreated || kinds[1] != notify.LoanReturned {
		t.Fatalf("events = %v", kinds)
	}
}

func TestAssetLocksReleased(t *testing.T) {
	l := newAssetLocks()
	unlock := l.Lock(1)
	done := make(chan struct{})
	go func() {
		u := l.Lock(1)
		u()
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("second lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-done
	if l.size() != 0 {
		t.Fatalf("lock table not cleaned: %d", l.size())
	}
}

func TestDecodeSignature(t *testing.T) {
	s, err := decodeSignature("receiver", "data:image/png;base64,"+sig)
	if err != nil || s.contentType != "image/png" || string(s.data) != "png" {
		t.Fatalf("data url: %+v %v", s, err)
	}
	if _, err := decodeSignature("receiver", "data:image/png,"+sig); err == nil {
		t.Fatalf("non-base64 data url accepted")
	}
	if _, err := decodeSignature("receiver", "  "); !apierr.Is(err, apierr.CodeInvalidArgument) {
		t.Fatalf("blank signature: %v", err)
	}
}

func TestLoanStateDerivation(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	l := &Loan{}
	if l.State(now) != StateActive {
		t.Fatalf("no due date must be active")
	}
	l.EstimatedReturnAt.Time, l.EstimatedReturnAt.Valid = now.Add(-time.Second), true
	if l.State(now) != StateOverdue || !l.IsOverdue(now) {
		t.Fatalf("past due must be overdue")
	}
	l.RealReturnAt.Time, l.RealReturnAt.Valid = now, true
	if l.State(now) != StateReturned || l.IsOverdue(now) {
		t.Fatalf("returned loan is never overdue")
	}
}
