package handler

import (
	"context"
	"net/http"

	"github.com/classboard/internal/kv"
	"github.com/classboard/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type activityProvider interface {
	RecordVisitor(ctx context.Context, fingerprint string) error
	TodayActiveUsers(ctx context.Context) int
	TodayPostingUsers(ctx context.Context) int
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	posts         service.PostStore
	activity      activityProvider
	secrets       kv.Store
	defaultSecret string
}

const adminTokenContextKey = "__admin_token"

// NewAPI constructs a handler set with shared services.
// secrets 保存全站共享的管理员口令；登录标记保存在各访客自己的会话里。
func NewAPI(posts service.PostStore, activity *service.ActivityService, secrets kv.Store, defaultSecret string) *API {
	return &API{
		posts:         posts,
		activity:      activity,
		secrets:       secrets,
		defaultSecret: defaultSecret,
	}
}

// gate 为当前请求构造 SessionGate。
func (a *API) gate(c *gin.Context) *service.SessionGate {
	return service.NewSessionGate(a.secrets, kv.NewSessionStore(sessions.Default(c)), a.defaultSecret)
}

// AdminRequired 要求访客已登录管理员，并把签发的 AdminToken 放进请求上下文。
func (a *API) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := a.gate(c).Authorize(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusUnauthorized, "需要管理员登录")
			c.Abort()
			return
		}
		c.Set(adminTokenContextKey, token)
		c.Next()
	}
}

func adminToken(c *gin.Context) service.AdminToken {
	if value, exists := c.Get(adminTokenContextKey); exists {
		if token, ok := value.(service.AdminToken); ok {
			return token
		}
	}
	return service.AdminToken{}
}
