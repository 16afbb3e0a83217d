package repository

import (
	"context"
	"sync"

	"mint/internal/model"
)

// MemoryStore 进程内存储，未配置 MongoDB 时使用（本地对话、测试）
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*model.ConversationContext
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*model.ConversationContext)}
}

// Load 返回副本
func (s *MemoryStore) Load(ctx context.Context, userID string) (*model.ConversationContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cc, ok := s.items[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cc.Clone(), nil
}

// Save 保存副本
func (s *MemoryStore) Save(ctx context.Context, cc *model.ConversationContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cc.UserID] = cc.Clone()
	return nil
}

// Len 已保存的用户数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
