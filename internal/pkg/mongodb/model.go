package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Indexed 自带索引定义的集合（仓库实现）
type Indexed interface {
	Collection() string
	EnsureIndexes(ctx context.Context, db *mongo.Database) error
}

// EnsureAllIndexes 启动时为全部集合建索引
func EnsureAllIndexes(ctx context.Context, db *mongo.Database, items ...Indexed) error {
	for _, it := range items {
		if err := it.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("ensure indexes on %s: %w", it.Collection(), err)
		}
	}
	return nil
}

// CreateIndexes 批量创建索引
func CreateIndexes(ctx context.Context, coll *mongo.Collection, indexes []mongo.IndexModel) error {
	if len(indexes) == 0 {
		return nil
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
