package handler

import (
	"io"
	"net/http"

	"github.com/classboard/internal/service"
	"github.com/gin-gonic/gin"
)

// StreamPosts 以 Server-Sent Events 推送留言列表。
// 本地后端只推送一次，推送后即结束响应；远程后端在集合变化时继续推送，直到客户端断开。
func (a *API) StreamPosts(c *gin.Context) {
	ctx := c.Request.Context()
	_, oneShot := a.posts.(*service.LocalPostStore)

	updates := make(chan []service.Post, 1)
	failures := make(chan error, 1)

	unsubscribe := a.posts.Subscribe(ctx,
		func(posts []service.Post) {
			// 只保留最新一次快照
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- posts:
			default:
			}
		},
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case posts := <-updates:
			c.SSEvent("posts", gin.H{"posts": posts})
			return !oneShot
		case err := <-failures:
			c.Error(err)
			c.SSEvent("error", gin.H{"error": "留言订阅失败"})
			return false
		}
	})
}
