package lends

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log"
	"strconv"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"ASSET-ledger/internal/asset_mgmt/stock"
	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/blob"
	"ASSET-ledger/internal/platform/db"
	"ASSET-ledger/internal/platform/metrics"
	"ASSET-ledger/internal/platform/notify"
)

// -------------- Clock & ID --------------

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// -------------- Service --------------

type Deps struct {
	Blobs     blob.Store
	Publisher notify.Publisher
	Stock     *stock.Service // nil なら不整合ログ/メトリクスなしで計算のみ
	Retrier   *db.Retrier
	Metrics   *metrics.Metrics
	LocalLock bool
}

type Service struct {
	store   *Store
	clock   Clock
	id      IDGen
	blobs   blob.Store
	pub     notify.Publisher
	stock   *stock.Service
	retry   *db.Retrier
	metrics *metrics.Metrics
	locks   *assetLocks
}

func NewService(conn *db.DB, d Deps) *Service {
	s := &Service{
		store:   NewStore(conn),
		clock:   realClock{},
		id:      ulidGen{},
		blobs:   d.Blobs,
		pub:     d.Publisher,
		stock:   d.Stock,
		retry:   d.Retrier,
		metrics: d.Metrics,
	}
	if s.blobs == nil {
		s.blobs = blob.NewMemory()
	}
	if s.pub == nil {
		s.pub = notify.Nop{}
	}
	if d.LocalLock {
		s.locks = newAssetLocks()
	}
	return s
}

func (s *Service) check(assetID int64, lv stock.Level) (int, error) {
	if s.stock != nil {
		return s.stock.Check(assetID, lv)
	}
	return lv.Available()
}

// ParseQuantity: 正の整数のみ。2.5 や "abc" は INVALID_QUANTITY
func ParseQuantity(n string) (int, error) {
	n = strings.TrimSpace(n)
	q, err := strconv.Atoi(n)
	if err != nil {
		return 0, apierr.ErrInvalidQuantity("quantity must be an integer")
	}
	if q <= 0 {
		return 0, apierr.ErrInvalidQuantity("quantity must be > 0")
	}
	return q, nil
}

// CreateLoan は在庫チェックと INSERT を資産行ロック下で行う。
// 失敗時は台帳に何も残さず、アップロード済みの署名も消す。
func (s *Service) CreateLoan(ctx context.Context, in CreateLoanRequest) (res LoanResponse, err error) {
	defer func() {
		if err != nil {
			s.reject("createLoan", err)
		}
	}()

	qty, err := ParseQuantity(in.Quantity.String())
	if err != nil {
		return LoanResponse{}, err
	}
	if in.AssetID <= 0 {
		return LoanResponse{}, apierr.ErrInvalid("asset_id must be > 0")
	}
	borrower := strings.TrimSpace(in.Borrower)
	if borrower == "" {
		return LoanResponse{}, apierr.ErrInvalid("borrower required")
	}
	deliverer, err := decodeSignature("deliverer", in.DelivererSignature)
	if err != nil {
		return LoanResponse{}, err
	}
	receiver, err := decodeSignature("receiver", in.ReceiverSignature)
	if err != nil {
		return LoanResponse{}, err
	}

	now := s.clock.Now()
	loanID := s.id.NewULID(now)
	l := &Loan{
		LoanID:             loanID,
		TicketNumber:       NewTicketNumber(now, loanID),
		AssetID:            in.AssetID,
		Quantity:           qty,
		Direction:          DirectionOut,
		Borrower:           borrower,
		Purpose:            toNullString(in.Purpose),
		LentBy:             toNullString(in.LentBy),
		CreatedAt:          now,
		DelivererSignature: signatureKey(loanID, "deliverer"),
		ReceiverSignature:  signatureKey(loanID, "receiver"),
	}
	if in.EstimatedReturnAt != nil {
		if in.EstimatedReturnAt.Before(now) {
			return LoanResponse{}, apierr.ErrInvalid("estimated_return_at must be in the future")
		}
		l.EstimatedReturnAt = sql.NullTime{Time: in.EstimatedReturnAt.UTC(), Valid: true}
	}

	if s.locks != nil {
		unlock := s.locks.Lock(in.AssetID)
		defer unlock()
	}

	up := &uploads{store: s.blobs}
	if err := up.put(ctx, l.DelivererSignature, deliverer, loanID); err != nil {
		up.rollback(ctx)
		return LoanResponse{}, err
	}
	if err := up.put(ctx, l.ReceiverSignature, receiver, loanID); err != nil {
		up.rollback(ctx)
		return LoanResponse{}, err
	}

	err = s.retry.Do(ctx, "createLoan", func(ctx context.Context) error {
		return s.store.ExecCreateLoan(ctx, l, s.check)
	})
	if err != nil {
		up.rollback(ctx)
		return LoanResponse{}, err
	}

	s.metrics.LoanCreated()
	s.pub.Publish(ctx, notify.Event{Kind: notify.LoanCreated, AssetID: l.AssetID, RefID: l.LoanID, At: now})
	log.Printf("[INFO] loan created: ticket=%s asset=%d qty=%d", l.TicketNumber, l.AssetID, l.Quantity)
	return toResponse(l, now), nil
}

// RegisterReturn は一度だけ成功する。2回目以降は ALREADY_RETURNED。
func (s *Service) RegisterReturn(ctx context.Context, ref string, in ReturnRequest) (res LoanResponse, err error) {
	defer func() {
		if err != nil {
			s.reject("registerReturn", err)
		}
	}()

	returner, err := decodeSignature("returner", in.ReturnerSignature)
	if err != nil {
		return LoanResponse{}, err
	}
	receiver, err := decodeSignature("return_receiver", in.ReturnReceiverSignature)
	if err != nil {
		return LoanResponse{}, err
	}

	l, err := s.lookup(ctx, ref)
	if err != nil {
		return LoanResponse{}, err
	}
	if l.Returned() {
		return LoanResponse{}, apierr.ErrAlreadyReturned("loan already returned")
	}

	now := s.clock.Now()
	at := now
	if in.ReturnedAt != nil {
		at = in.ReturnedAt.UTC()
	}
	if at.Before(l.CreatedAt) {
		return LoanResponse{}, apierr.ErrInvalid("returned_at must not be before the loan was created")
	}
	if at.After(now) {
		return LoanResponse{}, apierr.ErrInvalid("returned_at must not be in the future")
	}

	// 同時返却でキーが衝突しないよう試行ごとに別キー
	attempt := s.id.NewULID(now)
	up := &uploads{store: s.blobs}
	returnerKey := signatureKey(l.LoanID, "returner-"+attempt)
	receiverKey := signatureKey(l.LoanID, "return_receiver-"+attempt)
	if err := up.put(ctx, returnerKey, returner, l.LoanID); err != nil {
		up.rollback(ctx)
		return LoanResponse{}, err
	}
	if err := up.put(ctx, receiverKey, receiver, l.LoanID); err != nil {
		up.rollback(ctx)
		return LoanResponse{}, err
	}

	notes := toNullString(in.Notes)
	err = s.retry.Do(ctx, "registerReturn", func(ctx context.Context) error {
		return s.store.ExecReturn(ctx, l.LoanID, at, returnerKey, receiverKey, notes)
	})
	if err != nil {
		up.rollback(ctx)
		return LoanResponse{}, err
	}

	l.RealReturnAt = sql.NullTime{Time: at, Valid: true}
	l.ReturnerSignature = sql.NullString{String: returnerKey, Valid: true}
	l.ReturnReceiverSignature = sql.NullString{String: receiverKey, Valid: true}
	l.ReturnNotes = notes

	s.metrics.LoanReturned()
	s.pub.Publish(ctx, notify.Event{Kind: notify.LoanReturned, AssetID: l.AssetID, RefID: l.LoanID, At: now})
	log.Printf("[INFO] loan returned: ticket=%s asset=%d qty=%d", l.TicketNumber, l.AssetID, l.Quantity)
	return toResponse(l, now), nil
}

// FindByTicketNumber は返却窓口で使う
func (s *Service) FindByTicketNumber(ctx context.Context, ticket string) (LoanResponse, error) {
	t := NormalizeTicket(ticket)
	if t == "" {
		return LoanResponse{}, apierr.ErrInvalid("ticket_number required")
	}
	l, err := s.store.GetByTicket(ctx, t)
	if err != nil {
		return LoanResponse{}, err
	}
	return toResponse(l, s.clock.Now()), nil
}

// GetLoan: ref は loan_id (ULID) かチケット番号
func (s *Service) GetLoan(ctx context.Context, ref string) (LoanResponse, error) {
	l, err := s.lookup(ctx, ref)
	if err != nil {
		return LoanResponse{}, err
	}
	return toResponse(l, s.clock.Now()), nil
}

func (s *Service) ListLoans(ctx context.Context, f LoanFilter) ([]LoanResponse, int64, error) {
	switch f.State {
	case "", StateActive, StateReturned, StateOverdue:
	default:
		return nil, 0, apierr.ErrInvalid("state must be ACTIVE, RETURNED or OVERDUE")
	}
	now := s.clock.Now()
	items, total, err := s.store.List(ctx, f, now)
	if err != nil {
		return nil, 0, err
	}
	out := make([]LoanResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i], now))
	}
	return out, total, nil
}

func (s *Service) lookup(ctx context.Context, ref string) (*Loan, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apierr.ErrInvalid("loan reference required")
	}
	if IsTicketNumber(ref) {
		return s.store.GetByTicket(ctx, NormalizeTicket(ref))
	}
	if _, err := ulid.ParseStrict(strings.ToUpper(ref)); err != nil {
		return nil, apierr.ErrInvalid("loan reference must be a loan id or ticket number")
	}
	return s.store.GetByID(ctx, strings.ToUpper(ref))
}

func (s *Service) reject(op string, err error) {
	code := apierr.CodeInternal
	if api, ok := apierr.As(err); ok {
		code = api.Code
	} else {
		log.Printf("[ERROR] %s failed: %v", op, err)
	}
	s.metrics.Rejected(op, string(code))
}

// ---------- helpers ----------

func signatureKey(loanID, role string) string {
	return "loans/" + loanID + "/" + role
}

func toNullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
