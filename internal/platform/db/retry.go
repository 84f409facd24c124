package db

import (
	"context"
	"log"
	"math/rand/v2"
	"time"

	"ASSET-ledger/internal/platform/apierr"
)

// Retrier はストレージ境界の一時障害だけを指数バックオフで再試行する。
// APIError (在庫不足・重複年など) は即座に返す。
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnRetry is called before each sleep; used for metrics.
	OnRetry func(op string, attempt int, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(maxAttempts int, base, max time.Duration) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Retrier{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: max}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// fn must be safe to re-run, i.e. it owns its whole transaction.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if r == nil {
		return fn(ctx)
	}
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if _, isAPI := apierr.As(err); isAPI || !IsTransient(err) || attempt >= attempts {
			return err
		}
		if r.OnRetry != nil {
			r.OnRetry(op, attempt, err)
		}
		log.Printf("[WARN] %s: transient storage error (attempt %d/%d): %v", op, attempt, attempts, err)
		if serr := r.doSleep(ctx, r.backoff(attempt)); serr != nil {
			return err
		}
	}
}

func (r *Retrier) backoff(attempt int) time.Duration {
	d := r.BaseDelay
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if r.MaxDelay > 0 && d >= r.MaxDelay {
			d = r.MaxDelay
			break
		}
	}
	// ±25% jitter
	jitter := time.Duration(rand.Int64N(int64(d)/2+1)) - d/4
	return d + jitter
}

func (r *Retrier) doSleep(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
