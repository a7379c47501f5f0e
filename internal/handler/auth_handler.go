package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/contract-ai/internal/middleware"
	"github.com/ashwinyue/contract-ai/internal/service"
	"github.com/ashwinyue/contract-ai/internal/service/auth"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	svc *service.Services
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(svc *service.Services) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register 用户注册
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	resp, err := h.svc.Auth.Register(c.Request.Context(), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	Created(c, resp)
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	resp, err := h.svc.Auth.Login(c.Request.Context(), &req)
	if err != nil {
		Error(c, err)
		return
	}

	if !resp.Success {
		Unauthorized(c, resp.Message)
		return
	}
	Success(c, resp)
}

// Logout 退出登录，撤销当前令牌
func (h *AuthHandler) Logout(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" || token == authHeader {
		BadRequest(c, "Missing bearer token")
		return
	}

	if err := h.svc.Auth.RevokeToken(c.Request.Context(), token); err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"message": "Logged out"})
}

// Me 获取当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		Unauthorized(c, "Not authenticated")
		return
	}
	Success(c, user.ToUserInfo())
}
