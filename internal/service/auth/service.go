package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ashwinyue/contract-ai/internal/model"
	"github.com/ashwinyue/contract-ai/internal/repository"
)

var (
	jwtSecretOnce sync.Once
	jwtSecret     string
)

// getJwtSecret 获取 JWT 密钥
func getJwtSecret() string {
	jwtSecretOnce.Do(func() {
		if envSecret := strings.TrimSpace(os.Getenv("JWT_SECRET")); envSecret != "" {
			jwtSecret = envSecret
			return
		}

		randomBytes := make([]byte, 32)
		if _, err := rand.Read(randomBytes); err != nil {
			panic(fmt.Sprintf("failed to generate JWT secret: %v", err))
		}
		jwtSecret = base64.StdEncoding.EncodeToString(randomBytes)
	})

	return jwtSecret
}

// Service 认证服务
// 每个新注册用户自动获得一个独立租户，租户归属写入令牌声明
type Service struct {
	repo *repository.Repositories
}

// NewService 创建认证服务
func NewService(repo *repository.Repositories) *Service {
	return &Service{repo: repo}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message,omitempty"`
	User         *model.UserInfo `json:"user,omitempty"`
	Token        string          `json:"token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	User    *model.UserInfo `json:"user,omitempty"`
}

// Register 注册用户并创建其租户
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	// 检查邮箱是否已存在
	existingUser, _ := s.repo.User.GetByEmail(ctx, req.Email)
	if existingUser != nil {
		return nil, errors.New("user with this email already exists")
	}

	// 检查用户名是否已存在
	existingUser, _ = s.repo.User.GetByUsername(ctx, req.Username)
	if existingUser != nil {
		return nil, errors.New("user with this username already exists")
	}

	// 哈希密码
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 为用户创建租户
	tenant := &model.Tenant{
		ID:   uuid.New().String(),
		Name: fmt.Sprintf("%s's workspace", req.Username),
	}
	if err := s.repo.Tenant.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	// 创建用户
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		TenantID:     tenant.ID,
		IsActive:     true,
	}
	if err := s.repo.User.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &RegisterResponse{
		Success: true,
		Message: "Registration successful",
		User:    user.ToUserInfo(),
	}, nil
}

// Login 用户登录
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.repo.User.GetByEmail(ctx, req.Email)
	if err != nil || user == nil {
		return &LoginResponse{
			Success: false,
			Message: "Invalid email or password",
		}, nil
	}

	if !user.IsActive {
		return &LoginResponse{
			Success: false,
			Message: "Account is disabled",
		}, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return &LoginResponse{
			Success: false,
			Message: "Invalid email or password",
		}, nil
	}

	accessToken, refreshToken, err := s.generateTokens(ctx, user)
	if err != nil {
		return &LoginResponse{
			Success: false,
			Message: "Login failed",
		}, err
	}

	return &LoginResponse{
		Success:      true,
		Message:      "Login successful",
		User:         user.ToUserInfo(),
		Token:        accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// ValidateToken 验证令牌并返回用户
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*model.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(getJwtSecret()), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("invalid user ID in token")
	}

	// 检查令牌是否被撤销
	tokenRecord, err := s.repo.User.GetToken(ctx, tokenString)
	if err != nil || tokenRecord == nil || tokenRecord.IsRevoked {
		return nil, errors.New("token is revoked")
	}

	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil || user == nil {
		return nil, errors.New("user not found")
	}
	return user, nil
}

// RevokeToken 撤销令牌
func (s *Service) RevokeToken(ctx context.Context, tokenString string) error {
	return s.repo.User.RevokeToken(ctx, tokenString)
}

// generateTokens 生成访问令牌与刷新令牌
func (s *Service) generateTokens(ctx context.Context, user *model.User) (string, string, error) {
	now := time.Now()

	accessClaims := jwt.MapClaims{
		"user_id":   user.ID,
		"tenant_id": user.TenantID,
		"type":      "access",
		"exp":       now.Add(24 * time.Hour).Unix(),
		"iat":       now.Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).
		SignedString([]byte(getJwtSecret()))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshClaims := jwt.MapClaims{
		"user_id":   user.ID,
		"tenant_id": user.TenantID,
		"type":      "refresh",
		"exp":       now.Add(7 * 24 * time.Hour).Unix(),
		"iat":       now.Unix(),
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).
		SignedString([]byte(getJwtSecret()))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	// 记录令牌用于撤销检查
	if err := s.repo.User.CreateToken(ctx, &model.AuthToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Token:     accessToken,
		TokenType: "access_token",
		ExpiresAt: now.Add(24 * time.Hour),
	}); err != nil {
		return "", "", err
	}
	if err := s.repo.User.CreateToken(ctx, &model.AuthToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Token:     refreshToken,
		TokenType: "refresh_token",
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}); err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}
