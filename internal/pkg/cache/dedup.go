package cache

import (
	"context"
	"time"
)

// Deduper 基于 SETNX 的消息去重，跨进程生效
type Deduper struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewDeduper 创建去重器，ttl 为已处理消息 ID 的保留时间
func NewDeduper(cache *RedisCache, ttl time.Duration) *Deduper {
	return &Deduper{cache: cache, ttl: ttl}
}

// Claim 占用消息 ID，返回 false 表示已被处理过（或正在处理）
func (d *Deduper) Claim(ctx context.Context, userID, messageID string) (bool, error) {
	return d.cache.client.SetNX(ctx, MessageDedupKey(userID, messageID), time.Now().Unix(), d.ttl).Result()
}

// Release 释放消息 ID（处理失败时调用，允许重投）
func (d *Deduper) Release(ctx context.Context, userID, messageID string) error {
	return d.cache.client.Del(ctx, MessageDedupKey(userID, messageID)).Err()
}
