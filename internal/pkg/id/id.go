package id

import (
	"github.com/google/uuid"
)

// New 生成按时间有序的 UUIDv7，用作用量记录 _id（插入顺序与索引顺序一致）
func New() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return u.String()
}

// NewRandom 随机 UUIDv4（请求 ID、消息 ID）
func NewRandom() string {
	return uuid.New().String()
}

// IsValid 验证UUID格式是否有效
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
