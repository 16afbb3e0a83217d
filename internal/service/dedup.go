package service

import (
	"context"
	"sync"
	"time"
)

// Deduper 已处理消息 ID 集合（cache.Deduper 为 Redis 实现）
type Deduper interface {
	Claim(ctx context.Context, userID, messageID string) (bool, error)
	Release(ctx context.Context, userID, messageID string) error
}

// MemoryDeduper 进程内去重，条目过期后可再次处理
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

// NewMemoryDeduper 创建内存去重器
func NewMemoryDeduper(ttl time.Duration, now func() time.Time) *MemoryDeduper {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryDeduper{ttl: ttl, now: now, seen: make(map[string]time.Time)}
}

// Claim 占用消息 ID
func (d *MemoryDeduper) Claim(_ context.Context, userID, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}

	key := userID + ":" + messageID
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

// Release 释放消息 ID
func (d *MemoryDeduper) Release(_ context.Context, userID, messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, userID+":"+messageID)
	return nil
}
