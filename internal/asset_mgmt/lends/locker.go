package lends

import "sync"

// assetLocks は資産IDごとの排他。単一インスタンス運用で DB ロックの手前に置く。
// 参照数が 0 になったエントリは捨てる。
type assetLocks struct {
	mu sync.Mutex
	m  map[int64]*assetLock
}

type assetLock struct {
	mu   sync.Mutex
	refs int
}

func newAssetLocks() *assetLocks { return &assetLocks{m: make(map[int64]*assetLock)} }

// Lock blocks until the asset is free and returns the unlock func.
func (a *assetLocks) Lock(assetID int64) func() {
	a.mu.Lock()
	l, ok := a.m[assetID]
	if !ok {
		l = &assetLock{}
		a.m[assetID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.m, assetID)
		}
		a.mu.Unlock()
	}
}

func (a *assetLocks) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.m)
}
