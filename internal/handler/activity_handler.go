package handler

import (
	"net/http"

	"github.com/classboard/internal/service"
	"github.com/gin-gonic/gin"
)

// RecordVisit 用请求特征生成匿名指纹并记入今天的访客。
func (a *API) RecordVisit(c *gin.Context) {
	ctx := c.Request.Context()
	fingerprint := service.Fingerprint(
		c.Request.UserAgent(),
		c.GetHeader("Accept-Language"),
		c.ClientIP(),
	)
	if err := a.activity.RecordVisitor(ctx, fingerprint); err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "记录访问失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"activeUsers": a.activity.TodayActiveUsers(ctx)})
}

// TodayActivity 返回今天的访客数与发言人数。
func (a *API) TodayActivity(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"activeUsers":  a.activity.TodayActiveUsers(ctx),
		"postingUsers": a.activity.TodayPostingUsers(ctx),
	})
}
