package router

import (
	"net/http"

	"github.com/classboard/internal/handler"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "classboard_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件，管理员登录状态按访客保存在 cookie 中
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/posts", api.ListPosts)
		apiGroup.GET("/posts/stream", api.StreamPosts)
		apiGroup.POST("/posts", api.CreatePost)

		apiGroup.POST("/admin/login", api.Login)
		apiGroup.POST("/admin/logout", api.Logout)
		apiGroup.GET("/admin/status", api.AdminStatus)

		apiGroup.POST("/activity/visit", api.RecordVisit)
		apiGroup.GET("/activity/today", api.TodayActivity)

		// 需要管理员登录的接口
		auth := apiGroup.Group("")
		auth.Use(api.AdminRequired())
		{
			auth.DELETE("/posts/:id", api.DeletePost)
			auth.DELETE("/posts", api.DeleteAllPosts)
			auth.PUT("/admin/password", api.ChangePassword)
		}
	}

	return r
}
