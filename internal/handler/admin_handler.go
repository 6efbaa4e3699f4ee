package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type passwordRequest struct {
	Password string `json:"password"`
}

// Login 校验管理员口令并在访客会话中记录登录状态。
func (a *API) Login(c *gin.Context) {
	var req passwordRequest
	if !bindJSON(c, &req, "请求格式错误") {
		return
	}

	if !a.gate(c).Login(c.Request.Context(), req.Password) {
		respondError(c, http.StatusUnauthorized, "密码错误")
		return
	}

	c.JSON(http.StatusOK, gin.H{"loggedIn": true})
}

// Logout 清除访客会话中的登录状态，可重复调用。
func (a *API) Logout(c *gin.Context) {
	a.gate(c).Logout(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"loggedIn": false})
}

// AdminStatus 返回当前访客是否已登录管理员。
func (a *API) AdminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"loggedIn": a.gate(c).IsLoggedIn(c.Request.Context())})
}

// ChangePassword 更新全站共享的管理员口令。
func (a *API) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if !bindJSON(c, &req, "请求格式错误") {
		return
	}

	password := strings.TrimSpace(req.Password)
	if password == "" {
		respondError(c, http.StatusBadRequest, "新密码不能为空")
		return
	}

	if err := a.gate(c).SetSecret(c.Request.Context(), password); err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "保存密码失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "密码已更新"})
}
