package prompt

import (
	"sync"

	"mint/internal/model"
)

// CacheMonitor 统计静态段缓存命中情况
type CacheMonitor struct {
	mu          sync.Mutex
	hits        int64
	misses      int64
	tokensSaved int64
	lastKey     string
}

// NewCacheMonitor 创建缓存监视器
func NewCacheMonitor() *CacheMonitor {
	return &CacheMonitor{}
}

// Observe 记录一次模型调用的缓存结果
// 命中时节省的 token 数为命中的静态段 token 数
func (m *CacheMonitor) Observe(cacheKey string, hit bool, cachedTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastKey = cacheKey
	if hit {
		m.hits++
		m.tokensSaved += int64(cachedTokens)
		return
	}
	m.misses++
}

// CacheStats 当前统计快照
func (m *CacheMonitor) CacheStats() model.CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := model.CacheStats{Hits: m.hits, Misses: m.misses, TokensSaved: m.tokensSaved}
	if total := m.hits + m.misses; total > 0 {
		s.HitRate = float64(m.hits) / float64(total)
	}
	return s
}

// LastKey 最近一次调用的静态段指纹
func (m *CacheMonitor) LastKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastKey
}

// Reset 清空统计
func (m *CacheMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits, m.misses, m.tokensSaved, m.lastKey = 0, 0, 0, ""
}
