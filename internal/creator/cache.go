package creator

import (
	"sync"
	"time"

	"github.com/creatorships/dashboard/internal/model"
)

// DefaultCacheTTL は検索結果キャッシュの既定の有効期間。
const DefaultCacheTTL = 5 * time.Minute

// Result は1ページ分の検索結果と条件に一致する総件数。
type Result struct {
	Creators   []model.Creator `json:"creators"`
	TotalCount int             `json:"total_count"`
}

type cacheEntry struct {
	result    Result
	timestamp time.Time
}

// Cache は利用者1人分の検索結果キャッシュ。
// 時計とTTLは外部から与え、エントリはTTLを過ぎると読み出されなくなる。
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache はCacheを生成する。nowがnilの場合はtime.Nowを使用する。
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Get はTTL内のエントリを返す。
func (c *Cache) Get(key string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.timestamp) >= c.ttl {
		return Result{}, false
	}
	return e.result, true
}

// Set は現在時刻でエントリを保存する。
func (c *Cache) Set(key string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: r, timestamp: c.now()}
}

// Clear は全エントリを削除する。
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Sweep は期限切れのエントリを削除し、削除件数を返す。
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.timestamp) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len はエントリ数を返す。期限切れのものも含む。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Registry は利用者ごとのCacheを払い出す。
type Registry struct {
	mu     sync.Mutex
	caches map[string]*Cache
	ttl    time.Duration
	now    func() time.Time
}

// NewRegistry はRegistryを生成する。
func NewRegistry(ttl time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		caches: make(map[string]*Cache),
		ttl:    ttl,
		now:    now,
	}
}

// For は利用者のCacheを返す。存在しなければ作成する。
func (r *Registry) For(owner string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[owner]
	if !ok {
		c = NewCache(r.ttl, r.now)
		r.caches[owner] = c
	}
	return c
}

// Drop は利用者のCacheを丸ごと破棄する。
func (r *Registry) Drop(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caches, owner)
}

// Owners は保持している利用者数を返す。
func (r *Registry) Owners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.caches)
}

// Sweep は全利用者の期限切れエントリを削除し、空になったCacheを破棄する。
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for owner, c := range r.caches {
		removed += c.Sweep()
		if c.Len() == 0 {
			delete(r.caches, owner)
		}
	}
	return removed
}
