package stock

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"ASSET-ledger/internal/platform/metrics"
	"ASSET-ledger/internal/platform/notify"
)

// Cache は資産ごとの Level を保持する。書き込みのコミット後に Invalidate される。
// 読み取り開始時の世代を Add に渡し、その間に無効化があれば格納しない。
// nil の Cache は常にミスする（複数インスタンス運用ではキャッシュしない）。
type Cache struct {
	mu      sync.Mutex
	gen     atomic.Uint64
	lru     *lru.Cache[int64, Level]
	metrics *metrics.Metrics
}

// NewCache: size < 0 ならキャッシュ無効で nil を返す
func NewCache(size int, m *metrics.Metrics) (*Cache, error) {
	if size < 0 {
		return nil, nil
	}
	if size == 0 {
		size = 256
	}
	c, err := lru.New[int64, Level](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c, metrics: m}, nil
}

// Generation は読み取り前に取得しておく
func (c *Cache) Generation() uint64 {
	if c == nil {
		return 0
	}
	return c.gen.Load()
}

func (c *Cache) Get(assetID int64) (Level, bool) {
	if c == nil {
		return Level{}, false
	}
	lv, ok := c.lru.Get(assetID)
	c.metrics.CacheLookup(ok)
	return lv, ok
}

// Add stores lv only if no invalidation happened since gen was read.
func (c *Cache) Add(assetID int64, lv Level, gen uint64) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen {
		return false
	}
	c.lru.Add(assetID, lv)
	return true
}

func (c *Cache) Invalidate(assetID int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gen.Add(1)
	c.lru.Remove(assetID)
	c.mu.Unlock()
}

func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gen.Add(1)
	c.lru.Purge()
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// OnEvent は notify.Hub.OnCommit に登録する。在庫に関わるイベントだけ見る。
func (c *Cache) OnEvent(e notify.Event) {
	switch e.Kind {
	case notify.LoanCreated, notify.LoanReturned, notify.AssetUpdated:
		c.Invalidate(e.AssetID)
	}
}
