package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ashwinyue/contract-ai/internal/database"
	"github.com/ashwinyue/contract-ai/internal/model"
)

// TenantRepository 租户仓储接口
type TenantRepository interface {
	Create(ctx context.Context, tenant *model.Tenant) error
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	AddStorageUsed(ctx context.Context, id string, delta int64) error
}

type tenantRepository struct {
	db *database.DB
}

// NewTenantRepository 创建租户仓储
func NewTenantRepository(db *database.DB) TenantRepository {
	return &tenantRepository{db: db}
}

// Create 创建租户
func (r *tenantRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID 按 ID 获取租户
func (r *tenantRepository) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// AddStorageUsed 增减租户存储用量，delta 可为负
func (r *tenantRepository) AddStorageUsed(ctx context.Context, id string, delta int64) error {
	err := r.db.WithContext(ctx).Model(&model.Tenant{}).
		Where("id = ?", id).
		Update("storage_used", gorm.Expr("storage_used + ?", delta)).Error
	if err != nil {
		return fmt.Errorf("failed to update storage used: %w", err)
	}
	return nil
}
