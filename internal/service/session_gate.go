package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"time"

	"github.com/classboard/internal/kv"
)

const (
	// DefaultAdminPassword 是从未设置过口令时使用的管理员密码。
	DefaultAdminPassword = "admin123"

	adminPasswordKey = "admin-password"
	adminLoggedInKey = "admin-logged-in"
)

// ErrNotAuthorized 表示调用方没有有效的管理员凭证。
var ErrNotAuthorized = errors.New("admin login required")

// AdminToken 是管理员身份的凭证，只能由 SessionGate 签发。
// 零值无效。
type AdminToken struct {
	issuedAt time.Time
}

// Valid 报告凭证是否由 SessionGate 签发。
func (t AdminToken) Valid() bool {
	return !t.issuedAt.IsZero()
}

// SessionGate 管理共享的管理员口令和登录标记。
// 口令与登录标记可以存放在不同的存储里：口令是全站共享的，登录标记属于单个访客。
type SessionGate struct {
	secrets       kv.Store
	flags         kv.Store
	defaultSecret string
}

// NewSessionGate 构造 SessionGate，defaultSecret 为空时使用 DefaultAdminPassword。
func NewSessionGate(secrets, flags kv.Store, defaultSecret string) *SessionGate {
	if defaultSecret == "" {
		defaultSecret = DefaultAdminPassword
	}
	return &SessionGate{secrets: secrets, flags: flags, defaultSecret: defaultSecret}
}

// Secret 返回当前的管理员口令；未设置（或设置为空）时返回默认值。
func (g *SessionGate) Secret(ctx context.Context) string {
	value, ok, err := g.secrets.Get(ctx, adminPasswordKey)
	if err != nil {
		log.Printf("[session] load admin password failed, using default: %v", err)
		return g.defaultSecret
	}
	if !ok || value == "" {
		return g.defaultSecret
	}
	return value
}

// SetSecret 覆盖管理员口令。已登录的会话不会因此失效。
func (g *SessionGate) SetSecret(ctx context.Context, value string) error {
	return g.secrets.Set(ctx, adminPasswordKey, value)
}

// IsLoggedIn 返回持久化的登录标记，缺失或读取失败时视为未登录。
func (g *SessionGate) IsLoggedIn(ctx context.Context) bool {
	value, ok, err := g.flags.Get(ctx, adminLoggedInKey)
	if err != nil {
		log.Printf("[session] load login flag failed: %v", err)
		return false
	}
	return ok && value == "true"
}

// Login 用精确匹配比较口令，匹配时持久化登录标记。
// 不匹配时不改变任何状态。
func (g *SessionGate) Login(ctx context.Context, candidate string) bool {
	secret := g.Secret(ctx)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) != 1 {
		return false
	}
	if err := g.flags.Set(ctx, adminLoggedInKey, "true"); err != nil {
		log.Printf("[session] persist login flag failed: %v", err)
		return false
	}
	return true
}

// Logout 清除登录标记，可重复调用。
func (g *SessionGate) Logout(ctx context.Context) {
	if err := g.flags.Delete(ctx, adminLoggedInKey); err != nil {
		log.Printf("[session] clear login flag failed: %v", err)
	}
}

// Authorize 在已登录时签发 AdminToken，否则返回 ErrNotAuthorized。
func (g *SessionGate) Authorize(ctx context.Context) (AdminToken, error) {
	if !g.IsLoggedIn(ctx) {
		return AdminToken{}, ErrNotAuthorized
	}
	return AdminToken{issuedAt: time.Now()}, nil
}
