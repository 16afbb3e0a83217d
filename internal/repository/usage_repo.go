package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mint/internal/model"
	"mint/internal/pkg/mongodb"
)

// UsageRepo 用量记录仓库（只追加）
type UsageRepo struct {
	collection *mongo.Collection
}

var _ mongodb.Indexed = (*UsageRepo)(nil)

// NewUsageRepo 创建用量仓库
func NewUsageRepo(db *mongo.Database) *UsageRepo {
	return &UsageRepo{collection: db.Collection("usage_records")}
}

// Collection 集合名
func (r *UsageRepo) Collection() string {
	return "usage_records"
}

// EnsureIndexes 按时间、按用户
func (r *UsageRepo) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return mongodb.CreateIndexes(ctx, db.Collection(r.Collection()), []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_timestamp"),
		},
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}, bson.E{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_user_timestamp"),
		},
	})
}

// Append 写入一条记录
func (r *UsageRepo) Append(ctx context.Context, rec model.UsageRecord) error {
	_, err := r.collection.InsertOne(ctx, rec)
	return appendResult(err)
}

// appendResult 记录以 UUIDv7 作 _id，重试撞上 E11000 说明上一次已写入
func appendResult(err error) error {
	if err == nil || mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return classify("append usage", err)
}

// List 查询 since 之后的记录，按时间倒序
func (r *UsageRepo) List(ctx context.Context, since time.Time, limit int64) ([]model.UsageRecord, error) {
	opts := options.Find().SetSort(bson.D{bson.E{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, bson.M{"timestamp": bson.M{"$gte": since}}, opts)
	if err != nil {
		return nil, classify("list usage", err)
	}
	defer cursor.Close(ctx)

	var records []model.UsageRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, classify("list usage", err)
	}
	return records, nil
}
