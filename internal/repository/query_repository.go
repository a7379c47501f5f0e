package repository

import (
	"context"
	"fmt"

	"github.com/ashwinyue/contract-ai/internal/database"
	"github.com/ashwinyue/contract-ai/internal/model"
)

// QueryRepository 查询记录仓储接口
type QueryRepository interface {
	Create(ctx context.Context, record *model.QueryRecord) error
	List(ctx context.Context, tenantID string, offset, limit int) ([]*model.QueryRecord, int64, error)
	Count(ctx context.Context, tenantID string) (int64, error)
}

type queryRepository struct {
	db *database.DB
}

// NewQueryRepository 创建查询记录仓储
func NewQueryRepository(db *database.DB) QueryRepository {
	return &queryRepository{db: db}
}

// Create 写入查询记录
func (r *queryRepository) Create(ctx context.Context, record *model.QueryRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create query record: %w", err)
	}
	return nil
}

// List 分页列出租户查询历史，按时间倒序
func (r *queryRepository) List(ctx context.Context, tenantID string, offset, limit int) ([]*model.QueryRecord, int64, error) {
	var records []*model.QueryRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.QueryRecord{}).Where("tenant_id = ?", tenantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count query records: %w", err)
	}

	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list query records: %w", err)
	}
	return records, total, nil
}

// Count 统计租户查询总数
func (r *queryRepository) Count(ctx context.Context, tenantID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.QueryRecord{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count query records: %w", err)
	}
	return total, nil
}
