package statistics

import (
	"sync"
	"time"
)

// CachedProvider 带 TTL 缓存的统计信息源
// 包装一个底层 Provider，避免同一轮规划内反复采集
type CachedProvider struct {
	mu       sync.RWMutex
	upstream Provider
	cache    map[string]*cacheEntry
	ttl      time.Duration

	hits   int64
	misses int64
}

type cacheEntry struct {
	stats    *TableStatistics
	cachedAt time.Time
}

// NewCachedProvider 创建带缓存的统计信息源
func NewCachedProvider(upstream Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		cache:    make(map[string]*cacheEntry),
		ttl:      ttl,
	}
}

// TableStatistics 实现 Provider，过期项重新向上游取
func (p *CachedProvider) TableStatistics(tableName string) (*TableStatistics, error) {
	p.mu.RLock()
	entry, ok := p.cache[tableName]
	p.mu.RUnlock()

	if ok && time.Since(entry.cachedAt) <= p.ttl {
		p.mu.Lock()
		p.hits++
		p.mu.Unlock()
		return entry.stats, nil
	}

	stats, err := p.upstream.TableStatistics(tableName)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.misses++
	p.cache[tableName] = &cacheEntry{stats: stats, cachedAt: time.Now()}
	p.mu.Unlock()
	return stats, nil
}

// Invalidate 移除某张表的缓存项
func (p *CachedProvider) Invalidate(tableName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, tableName)
}

// HitRate 返回缓存命中率
func (p *CachedProvider) HitRate() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := p.hits + p.misses
	if total == 0 {
		return 0
	}
	return float64(p.hits) / float64(total)
}
