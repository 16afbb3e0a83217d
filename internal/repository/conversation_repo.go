package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mint/internal/model"
	"mint/internal/pkg/mongodb"
	"mint/internal/pkg/resilience"
)

// ErrNotFound 用户没有保存过上下文
var ErrNotFound = errors.New("conversation not found")

// ConversationRepo 对话上下文仓库，每个用户一条文档
type ConversationRepo struct {
	collection *mongo.Collection
}

var _ mongodb.Indexed = (*ConversationRepo)(nil)

// NewConversationRepo 创建对话仓库
func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{
		collection: db.Collection("conversations"),
	}
}

// Collection 集合名
func (r *ConversationRepo) Collection() string {
	return "conversations"
}

// EnsureIndexes user_id 唯一
func (r *ConversationRepo) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return mongodb.CreateIndexes(ctx, db.Collection(r.Collection()), []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_user_id").SetUnique(true),
		},
		{
			Keys:    bson.D{bson.E{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_updated"),
		},
	})
}

// Load 按用户加载上下文
func (r *ConversationRepo) Load(ctx context.Context, userID string) (*model.ConversationContext, error) {
	var cc model.ConversationContext
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("load conversation", err)
	}
	return &cc, nil
}

// Save 按 user_id 整体替换（不存在则插入）
func (r *ConversationRepo) Save(ctx context.Context, cc *model.ConversationContext) error {
	if cc.UpdatedAt.IsZero() {
		cc.UpdatedAt = time.Now()
	}
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"user_id": cc.UserID},
		cc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return classify("save conversation", err)
	}
	return nil
}

// classify 网络错误、超时与并发 upsert 冲突可重试，其余不重试
// 只追加的写入在此之前自行处理 E11000，见 appendResult
func classify(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || mongo.IsDuplicateKeyError(err) {
		return resilience.Transient(wrapped)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapped
	}
	return resilience.Permanent(wrapped)
}
