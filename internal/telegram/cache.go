package telegram

import (
	"sync"
	"time"
)

// BotIDCacheConfig はボットIDキャッシュの設定。
type BotIDCacheConfig struct {
	TTL     time.Duration
	MaxSize int
	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// CacheStats はキャッシュの統計情報。
type CacheStats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Size      int
	TTL       time.Duration
}

type cachedBotID struct {
	botID    int64
	cachedAt time.Time
}

// BotIDCache はボット名からボットIDへの有界キャッシュ。並行利用に対応する。
// 上限に達した場合は最も古いエントリを追い出す。
type BotIDCache struct {
	mu      sync.Mutex
	entries map[string]cachedBotID
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

// NewBotIDCache はBotIDCacheを生成する。TTLの既定値は24時間、MaxSizeの既定値は64。
func NewBotIDCache(c BotIDCacheConfig) *BotIDCache {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 64
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &BotIDCache{
		entries: make(map[string]cachedBotID),
		ttl:     c.TTL,
		maxSize: c.MaxSize,
		now:     c.Now,
	}
}

// Get はボットIDを返す。未登録または期限切れの場合はfalse。期限切れのエントリは削除する。
func (c *BotIDCache) Get(botName string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[botName]
	if !ok {
		c.misses++
		return 0, false
	}
	if c.now().Sub(entry.cachedAt) >= c.ttl {
		delete(c.entries, botName)
		c.misses++
		return 0, false
	}
	c.hits++
	return entry.botID, true
}

// Set はボットIDを保存する。
func (c *BotIDCache) Set(botName string, botID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[botName]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[botName] = cachedBotID{botID: botID, cachedAt: c.now()}
	c.sets++
}

func (c *BotIDCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.cachedAt.Before(oldest) {
			oldestKey, oldest, first = k, e.cachedAt, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Reset は全エントリと統計を消去する。
func (c *BotIDCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedBotID)
	c.hits, c.misses, c.sets, c.evictions = 0, 0, 0, 0
}

// Stats は統計情報を返す。
func (c *BotIDCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Evictions: c.evictions,
		Size:      len(c.entries),
		TTL:       c.ttl,
	}
}
