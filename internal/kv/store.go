// Package kv 提供持久化键值存储的统一接口。
// 管理员口令、登录标记、留言列表与每日活跃记录都以键值对的形式保存。
package kv

import (
	"context"
	"errors"
)

// ErrKeysUnsupported 表示该存储无法按前缀枚举键。
var ErrKeysUnsupported = errors.New("kv: key enumeration not supported")

// Store 是一组持久化的字符串键值对。
// 缺失的键不是错误：Get 返回 ok=false。
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
