package executions

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
	"ASSET-ledger/internal/platform/metrics"
	"ASSET-ledger/internal/platform/notify"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	store   *Store
	clock   Clock
	pub     notify.Publisher
	retry   *db.Retrier
	metrics *metrics.Metrics
}

func NewService(conn *db.DB, pub notify.Publisher, retry *db.Retrier, m *metrics.Metrics) *Service {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &Service{store: NewStore(conn), clock: realClock{}, pub: pub, retry: retry, metrics: m}
}

// RecordExecution は実施記録を追記する。予定グリッドとは独立で、DONE への変更は SetStatus で別に行う。
func (s *Service) RecordExecution(ctx context.Context, in RecordRequest) (ExecutionResponse, error) {
	if in.AssetID <= 0 {
		return ExecutionResponse{}, apierr.ErrInvalid("asset_id must be > 0")
	}
	typ, ok := ParseType(in.Type)
	if !ok {
		return ExecutionResponse{}, apierr.ErrInvalid("type must be PREVENTIVE, CORRECTIVE or PREDICTIVE")
	}
	if in.PerformedAt.IsZero() {
		return ExecutionResponse{}, apierr.ErrInvalid("performed_at required")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return ExecutionResponse{}, apierr.ErrInvalid("description required")
	}
	resp := strings.TrimSpace(in.Responsible)
	if resp == "" {
		return ExecutionResponse{}, apierr.ErrInvalid("responsible required")
	}
	var cost decimal.NullDecimal
	if in.Cost != nil {
		if in.Cost.IsNegative() {
			return ExecutionResponse{}, apierr.ErrInvalid("cost must be >= 0")
		}
		cost = decimal.NullDecimal{Decimal: in.Cost.Round(2), Valid: true}
	}

	now := s.clock.Now()
	e := &Execution{
		ExecutionID:     newULID(now),
		AssetID:         in.AssetID,
		ScheduleEntryID: toNullString(in.ScheduleEntryID),
		PerformedAt:     in.PerformedAt.UTC(),
		Type:            typ,
		Description:     desc,
		FaultsFound:     toNullString(in.FaultsFound),
		PartsUsed:       toNullString(in.PartsUsed),
		Responsible:     resp,
		Cost:            cost,
		CreatedAt:       now,
	}
	err := s.retry.Do(ctx, "recordExecution", func(ctx context.Context) error {
		return s.store.ExecInsert(ctx, e)
	})
	if err != nil {
		return ExecutionResponse{}, err
	}

	s.metrics.ExecutionRecorded()
	s.pub.Publish(ctx, notify.Event{Kind: notify.ExecutionRecorded, AssetID: e.AssetID, RefID: e.ExecutionID, At: now})
	return toResponse(e), nil
}

func (s *Service) GetExecution(ctx context.Context, id string) (ExecutionResponse, error) {
	e, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return ExecutionResponse{}, err
	}
	return toResponse(e), nil
}

// ListExecutions の TotalCost は返したページ分の合計
func (s *Service) ListExecutions(ctx context.Context, f Filter) (ListResult, error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return ListResult{}, apierr.ErrInvalid("from must be before to")
	}
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return ListResult{}, err
	}
	res := ListResult{Items: make([]ExecutionResponse, 0, len(items)), Total: total, TotalCost: decimal.Zero}
	for i := range items {
		if items[i].Cost.Valid {
			res.TotalCost = res.TotalCost.Add(items[i].Cost.Decimal)
		}
		res.Items = append(res.Items, toResponse(&items[i]))
	}
	return res, nil
}

func newULID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0)).String()
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
