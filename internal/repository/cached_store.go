package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"mint/internal/model"
	"mint/internal/pkg/cache"
	"mint/internal/pkg/logger"
)

// Store 对话上下文存储
type Store interface {
	Load(ctx context.Context, userID string) (*model.ConversationContext, error)
	Save(ctx context.Context, cc *model.ConversationContext) error
}

// Cache 缓存后端（cache.RedisCache 实现）
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedStore 读穿透缓存：先查 Redis，未命中再查底层存储
// 缓存故障只记日志，不影响本轮
type CachedStore struct {
	backing Store
	cache   Cache
	ttl     time.Duration
	log     zerolog.Logger
}

// NewCachedStore 创建带缓存的存储，ttl <= 0 时使用默认值
func NewCachedStore(backing Store, c Cache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = cache.ConversationCacheTTL
	}
	return &CachedStore{
		backing: backing,
		cache:   c,
		ttl:     ttl,
		log:     logger.Component("conversation_cache"),
	}
}

// Load 加载上下文
func (s *CachedStore) Load(ctx context.Context, userID string) (*model.ConversationContext, error) {
	key := cache.ConversationCacheKey(userID)

	var cc model.ConversationContext
	err := s.cache.Get(ctx, key, &cc)
	if err == nil {
		return &cc, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("cache read failed, falling back to store")
	}

	loaded, err := s.backing.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, loaded, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("cache fill failed")
	}
	return loaded, nil
}

// Save 先写底层存储，再刷新缓存
func (s *CachedStore) Save(ctx context.Context, cc *model.ConversationContext) error {
	if err := s.backing.Save(ctx, cc); err != nil {
		return err
	}

	key := cache.ConversationCacheKey(cc.UserID)
	if err := s.cache.Set(ctx, key, cc, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("user_id", cc.UserID).Msg("cache refresh failed, evicting")
		if err := s.cache.Delete(ctx, key); err != nil {
			s.log.Error().Err(err).Str("user_id", cc.UserID).Msg("cache evict failed")
		}
	}
	return nil
}
