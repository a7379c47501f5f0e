package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ashwinyue/contract-ai/internal/database"
	"github.com/ashwinyue/contract-ai/internal/model"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	CreateToken(ctx context.Context, token *model.AuthToken) error
	GetToken(ctx context.Context, token string) (*model.AuthToken, error)
	RevokeToken(ctx context.Context, token string) error
}

type userRepository struct {
	db *database.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 创建用户
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID 按 ID 获取用户
func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getBy(ctx, "id = ?", id)
}

// GetByUsername 按用户名获取用户
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getBy(ctx, "username = ?", username)
}

// GetByEmail 按邮箱获取用户
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "email = ?", email)
}

func (r *userRepository) getBy(ctx context.Context, cond string, arg interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(cond, arg).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CreateToken 记录签发的令牌
func (r *userRepository) CreateToken(ctx context.Context, token *model.AuthToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// GetToken 按令牌值查询记录
func (r *userRepository) GetToken(ctx context.Context, token string) (*model.AuthToken, error) {
	var record model.AuthToken
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &record, nil
}

// RevokeToken 吊销令牌
func (r *userRepository) RevokeToken(ctx context.Context, token string) error {
	err := r.db.WithContext(ctx).Model(&model.AuthToken{}).
		Where("token = ?", token).
		Update("is_revoked", true).Error
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
