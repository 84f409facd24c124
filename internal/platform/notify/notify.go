// Package notify fans out post-commit events to dashboards and caches.
package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

type Kind string

const (
	LoanCreated       Kind = "loan.created"
	LoanReturned      Kind = "loan.returned"
	ScheduleCreated   Kind = "schedule.created"
	ScheduleUpdated   Kind = "schedule.updated"
	ExecutionRecorded Kind = "execution.recorded"
	AssetUpdated      Kind = "asset.updated"
)

type Event struct {
	Kind    Kind      `json:"kind"`
	AssetID int64     `json:"asset_id"`
	RefID   string    `json:"ref_id"` // loan_id / entry_id / execution_id
	At      time.Time `json:"at"`
}

// Publisher はサービス層が依存するインターフェース
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Handler func(ctx context.Context, e Event) error

// Hub: 同期ハンドラ (キャッシュ無効化) は Publish 内で、非同期ハンドラは goroutine で呼ぶ。
// 非同期側は配送保証なし・失敗はログのみ。
type Hub struct {
	mu      sync.RWMutex
	sync    []func(Event)
	async   []Handler
	wg      sync.WaitGroup
	timeout time.Duration
}

func NewHub() *Hub { return &Hub{timeout: 10 * time.Second} }

// OnCommit registers a handler that runs inline, before Publish returns.
func (h *Hub) OnCommit(fn func(Event)) {
	h.mu.Lock()
	h.sync = append(h.sync, fn)
	h.mu.Unlock()
}

// Subscribe registers a fire-and-forget handler.
func (h *Hub) Subscribe(fn Handler) {
	h.mu.Lock()
	h.async = append(h.async, fn)
	h.mu.Unlock()
}

func (h *Hub) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	h.mu.RLock()
	syncs := append([]func(Event){}, h.sync...)
	asyncs := append([]Handler(nil), h.async...)
	h.mu.RUnlock()

	for _, fn := range syncs {
		fn(e)
	}

	// リクエストのキャンセルに巻き込まれないよう切り離す
	base := context.WithoutCancel(ctx)
	for _, fn := range asyncs {
		h.wg.Add(1)
		go func(fn Handler) {
			defer h.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[WARN] notify: subscriber panic on %s: %v", e.Kind, r)
				}
			}()
			hctx, cancel := context.WithTimeout(base, h.timeout)
			defer cancel()
			if err := fn(hctx, e); err != nil {
				log.Printf("[WARN] notify: subscriber failed on %s (%s): %v", e.Kind, e.RefID, err)
			}
		}(fn)
	}
}

// Wait blocks until in-flight async deliveries finish. Used on shutdown.
func (h *Hub) Wait() { h.wg.Wait() }

// LogSubscriber は dashboard 未接続時の既定購読者
func LogSubscriber(_ context.Context, e Event) error {
	log.Printf("[INFO] event %s asset=%d ref=%s", e.Kind, e.AssetID, e.RefID)
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
