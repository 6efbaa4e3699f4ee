package kv

import (
	"context"
	"fmt"

	"github.com/gin-contrib/sessions"
)

// SessionStore 把键值对保存在访客的签名 Cookie 会话里，
// 相当于每个浏览器各自的一份本地存储。
type SessionStore struct {
	session sessions.Session
}

// NewSessionStore 包装当前请求的会话。
func NewSessionStore(session sessions.Session) *SessionStore {
	return &SessionStore{session: session}
}

func (s *SessionStore) Get(_ context.Context, key string) (string, bool, error) {
	raw := s.session.Get(key)
	if raw == nil {
		return "", false, nil
	}
	switch value := raw.(type) {
	case string:
		return value, true, nil
	default:
		return fmt.Sprint(value), true, nil
	}
}

func (s *SessionStore) Set(_ context.Context, key, value string) error {
	s.session.Set(key, value)
	if err := s.session.Save(); err != nil {
		return fmt.Errorf("save session key %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) Delete(_ context.Context, key string) error {
	s.session.Delete(key)
	if err := s.session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Keys 会话不支持枚举。
func (s *SessionStore) Keys(context.Context, string) ([]string, error) {
	return nil, ErrKeysUnsupported
}
