package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/classboard/internal/service"
	"github.com/gin-gonic/gin"
)

// ListPosts 返回全部留言，最新的在前。
func (a *API) ListPosts(c *gin.Context) {
	posts, err := a.posts.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "获取留言列表失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// CreatePost 校验并发布一条留言，标题固定为 DefaultPostTitle。
func (a *API) CreatePost(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
		Author  string `json:"author"`
	}
	if !bindJSON(c, &req, "请求格式错误") {
		return
	}

	content := strings.TrimSpace(req.Content)
	author := strings.TrimSpace(req.Author)
	if content == "" || author == "" {
		respondError(c, http.StatusBadRequest, "内容和昵称不能为空")
		return
	}

	post, err := a.posts.Create(c.Request.Context(), service.PostInput{
		Title:   service.DefaultPostTitle,
		Content: content,
		Author:  author,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidPost) {
			respondError(c, http.StatusBadRequest, "内容和昵称不能为空")
			return
		}
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "发布留言失败")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// DeletePost 删除单条留言，ID 不存在时返回 deleted=false。
func (a *API) DeletePost(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, "无效的留言ID")
		return
	}

	deleted, err := a.posts.DeleteOne(c.Request.Context(), adminToken(c), id)
	if err != nil {
		if errors.Is(err, service.ErrNotAuthorized) {
			respondError(c, http.StatusUnauthorized, "需要管理员登录")
			return
		}
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "删除留言失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// DeleteAllPosts 清空留言。即使已登录也要再次输入口令确认。
// 远程后端部分失败时返回 207 并列出失败的 ID。
func (a *API) DeleteAllPosts(c *gin.Context) {
	var req passwordRequest
	if !bindJSON(c, &req, "请求格式错误") {
		return
	}
	if !a.gate(c).Login(c.Request.Context(), req.Password) {
		respondError(c, http.StatusUnauthorized, "密码错误")
		return
	}

	result, err := a.posts.DeleteAll(c.Request.Context(), adminToken(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"deleted": result.Deleted, "failed": result.Failed})
	case errors.Is(err, service.ErrPartialPurge):
		c.JSON(http.StatusMultiStatus, gin.H{
			"error":   "部分留言删除失败",
			"deleted": result.Deleted,
			"failed":  result.Failed,
		})
	case errors.Is(err, service.ErrNotAuthorized):
		respondError(c, http.StatusUnauthorized, "需要管理员登录")
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "删除全部留言失败",
			"deleted": result.Deleted,
			"failed":  result.Failed,
		})
	}
}
