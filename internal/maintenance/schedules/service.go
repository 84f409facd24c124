package schedules

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
	"ASSET-ledger/internal/platform/metrics"
	"ASSET-ledger/internal/platform/notify"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

const (
	minYear = 2000
	maxYear = 2100
)

type Service struct {
	store   *Store
	clock   Clock
	id      IDGen
	pub     notify.Publisher
	retry   *db.Retrier
	metrics *metrics.Metrics
}

func NewService(conn *db.DB, pub notify.Publisher, retry *db.Retrier, m *metrics.Metrics) *Service {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &Service{store: NewStore(conn), clock: realClock{}, id: ulidGen{}, pub: pub, retry: retry, metrics: m}
}

// CreateEntry は (asset, year) に1件だけ作る。既にあれば DUPLICATE_YEAR（編集は UpdateEntry）。
// 初期状態は常に PENDING。
func (s *Service) CreateEntry(ctx context.Context, in CreateEntryRequest) (EntryResponse, error) {
	if in.AssetID <= 0 {
		return EntryResponse{}, apierr.ErrInvalid("asset_id must be > 0")
	}
	if err := validYear(in.Year); err != nil {
		return EntryResponse{}, err
	}
	freq, ok := ParseFrequency(in.Frequency)
	if !ok {
		return EntryResponse{}, apierr.ErrInvalid("frequency must be one of DAILY, WEEKLY, MONTHLY, QUARTERLY, BIANNUAL, ANNUAL")
	}
	slots, err := GridFromNamed(in.Slots)
	if err != nil {
		return EntryResponse{}, apierr.ErrInvalid(err.Error())
	}

	now := s.clock.Now()
	e := &Entry{
		EntryID:   s.id.NewULID(now),
		AssetID:   in.AssetID,
		Year:      in.Year,
		Slots:     slots,
		Frequency: freq,
		Status:    StatusPending,
		Notes:     toNullString(in.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.retry.Do(ctx, "createScheduleEntry", func(ctx context.Context) error {
		return s.store.ExecCreate(ctx, e)
	})
	if err != nil {
		return EntryResponse{}, err
	}

	s.metrics.ScheduleWrite("create")
	s.pub.Publish(ctx, notify.Event{Kind: notify.ScheduleCreated, AssetID: e.AssetID, RefID: e.EntryID, At: now})
	log.Printf("[INFO] schedule created: asset=%d year=%d slots=%d", e.AssetID, e.Year, e.Slots.Count())
	return toResponse(e), nil
}

// UpdateEntry: 指定フィールドだけ更新。スロットは指定分だけ上書きし、他は保持する。
func (s *Service) UpdateEntry(ctx context.Context, entryID string, in UpdateEntryRequest) (EntryResponse, error) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return EntryResponse{}, apierr.ErrInvalid("entry_id required")
	}
	// 入力検証は Tx の外で済ませる
	if _, err := GridFromNamed(in.Slots); err != nil {
		return EntryResponse{}, apierr.ErrInvalid(err.Error())
	}
	var (
		freq Frequency
		st   Status
		ok   bool
	)
	if in.Frequency != nil {
		if freq, ok = ParseFrequency(*in.Frequency); !ok {
			return EntryResponse{}, apierr.ErrInvalid("invalid frequency")
		}
	}
	if in.Status != nil {
		if st, ok = ParseStatus(*in.Status); !ok {
			return EntryResponse{}, apierr.ErrInvalid("invalid status")
		}
	}

	now := s.clock.Now()
	var out *Entry
	err := s.retry.Do(ctx, "updateScheduleEntry", func(ctx context.Context) error {
		var err error
		out, err = s.store.ExecUpdate(ctx, entryID, func(e *Entry) error {
			slots, err := e.Slots.Apply(in.Slots)
			if err != nil {
				return apierr.ErrInvalid(err.Error())
			}
			e.Slots = slots
			if in.Frequency != nil {
				e.Frequency = freq
			}
			if in.Status != nil {
				e.Status = st
			}
			if in.Notes != nil {
				e.Notes = toNullString(in.Notes)
			}
			e.UpdatedAt = now
			return nil
		})
		return err
	})
	if err != nil {
		return EntryResponse{}, err
	}

	s.metrics.ScheduleWrite("update")
	s.pub.Publish(ctx, notify.Event{Kind: notify.ScheduleUpdated, AssetID: out.AssetID, RefID: out.EntryID, At: now})
	return toResponse(out), nil
}

// SetStatus は明示的な状態変更。どの状態からでも遷移できる。
func (s *Service) SetStatus(ctx context.Context, entryID, status string) (EntryResponse, error) {
	st, ok := ParseStatus(status)
	if !ok {
		return EntryResponse{}, apierr.ErrInvalid("status must be one of PENDING, DONE, POSTPONED, CANCELED")
	}
	now := s.clock.Now()
	err := s.retry.Do(ctx, "setScheduleStatus", func(ctx context.Context) error {
		return s.store.SetStatus(ctx, entryID, st, now)
	})
	if err != nil {
		return EntryResponse{}, err
	}
	e, err := s.store.Get(ctx, entryID)
	if err != nil {
		return EntryResponse{}, err
	}

	s.metrics.ScheduleWrite("status")
	s.pub.Publish(ctx, notify.Event{Kind: notify.ScheduleUpdated, AssetID: e.AssetID, RefID: e.EntryID, At: now})
	log.Printf("[INFO] schedule %s status -> %s", e.EntryID, st)
	return toResponse(e), nil
}

func (s *Service) GetEntry(ctx context.Context, entryID string) (EntryResponse, error) {
	e, err := s.store.Get(ctx, entryID)
	if err != nil {
		return EntryResponse{}, err
	}
	return toResponse(e), nil
}

func (s *Service) ListByAsset(ctx context.Context, assetID int64) ([]EntryResponse, error) {
	if assetID <= 0 {
		return nil, apierr.ErrInvalid("asset_id must be > 0")
	}
	items, err := s.store.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	out := make([]EntryResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i]))
	}
	return out, nil
}

// WeekGridFor は保存されたスロットをそのまま返し、表示用のセル情報を付ける
func (s *Service) WeekGridFor(ctx context.Context, assetID int64, year int) (WeekGrid, error) {
	if err := validYear(year); err != nil {
		return WeekGrid{}, err
	}
	e, err := s.store.GetByAssetYear(ctx, assetID, year)
	if err != nil {
		return WeekGrid{}, err
	}
	return BuildWeekGrid(e), nil
}

// BuildWeekGrid is pure.
func BuildWeekGrid(e *Entry) WeekGrid {
	g := WeekGrid{
		EntryID:   e.EntryID,
		AssetID:   e.AssetID,
		Year:      e.Year,
		Status:    e.Status,
		Frequency: e.Frequency,
		Slots:     e.Slots,
		Matrix:    e.Slots.Matrix(),
	}
	for m := 1; m <= Months; m++ {
		for w := 1; w <= WeeksPerMonth; w++ {
			g.Cells[m-1][w-1] = DeriveCell(e.Status, m, w, g.Matrix[m-1][w-1])
		}
	}
	return g
}

// EntriesForWeek: その週のスロットが立っているエントリを状態ごとにまとめる
func (s *Service) EntriesForWeek(ctx context.Context, year, month, week int) (WeekEntries, error) {
	if err := validYear(year); err != nil {
		return WeekEntries{}, err
	}
	if _, err := slotBit(month, week); err != nil {
		return WeekEntries{}, apierr.ErrInvalid(err.Error())
	}
	items, err := s.store.ListForSlot(ctx, year, SlotMask(month, week))
	if err != nil {
		return WeekEntries{}, err
	}

	byStatus := make(map[Status][]EntryResponse, len(statusOrder))
	for i := range items {
		byStatus[items[i].Status] = append(byStatus[items[i].Status], toResponse(&items[i]))
	}
	out := WeekEntries{Year: year, Month: month, Week: week, Total: len(items)}
	for _, st := range statusOrder {
		entries := byStatus[st]
		if entries == nil {
			entries = []EntryResponse{}
		}
		out.Groups = append(out.Groups, StatusGroup{Status: st, Entries: entries})
	}
	return out, nil
}

func validYear(y int) error {
	if y < minYear || y > maxYear {
		return apierr.ErrInvalid(fmt.Sprintf("year must be between %d and %d", minYear, maxYear))
	}
	return nil
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
