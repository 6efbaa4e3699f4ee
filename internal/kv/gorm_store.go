package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/classboard/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 将键值对保存在 sqlite 的 kv_entries 表中。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 构造 GormStore。
func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{db: gdb}
}

// Get 读取指定键。
func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry db.KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load key %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set 写入或覆盖指定键。
func (s *GormStore) Set(ctx context.Context, key, value string) error {
	entry := db.KVEntry{Key: key, Value: value}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("upsert key %s: %w", key, err)
	}
	return nil
}

// Delete 删除指定键，键不存在时不报错。
func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&db.KVEntry{}).Error; err != nil {
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}

// Keys 按字典序返回以 prefix 开头的所有键。
func (s *GormStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	if err := s.db.WithContext(ctx).
		Model(&db.KVEntry{}).
		Where("key LIKE ?", prefix+"%").
		Order("key").
		Pluck("key", &keys).Error; err != nil {
		return nil, fmt.Errorf("list keys %s*: %w", prefix, err)
	}

	// LIKE 会把 _ 和 % 当作通配符，这里再精确过滤一次
	result := keys[:0]
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			result = append(result, key)
		}
	}
	return result, nil
}
