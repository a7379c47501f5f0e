package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ashwinyue/contract-ai/internal/database"
	"github.com/ashwinyue/contract-ai/internal/model"
)

// DocumentRepository 文档仓储接口
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error)
	List(ctx context.Context, tenantID string, offset, limit int) ([]*model.Document, int64, error)
	Update(ctx context.Context, doc *model.Document) error
	UpdateStatus(ctx context.Context, docID, status, stage, errMsg string) error
	Delete(ctx context.Context, tenantID, docID string) error
	CountByStatus(ctx context.Context, tenantID string) (map[string]int64, error)
	CountByRisk(ctx context.Context, tenantID string) (map[string]int64, error)

	CreateChunks(ctx context.Context, chunks []*model.Chunk) error
	GetChunksByDocument(ctx context.Context, docID string) ([]*model.Chunk, error)
	GetChunksByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.Chunk, error)
	DeleteChunksByDocument(ctx context.Context, docID string) error
	ListAllChunks(ctx context.Context) ([]*model.Chunk, error)
}

type documentRepository struct {
	db *database.DB
}

// NewDocumentRepository 创建文档仓储
func NewDocumentRepository(db *database.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 创建文档记录
func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID 按租户获取文档，租户不匹配时与不存在表现一致
func (r *documentRepository) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", docID, tenantID).
		First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// List 分页列出租户文档
func (r *documentRepository) List(ctx context.Context, tenantID string, offset, limit int) ([]*model.Document, int64, error) {
	var docs []*model.Document
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Document{}).Where("tenant_id = ?", tenantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	err := query.Order("uploaded_on DESC").Offset(offset).Limit(limit).Find(&docs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

// Update 更新文档
func (r *documentRepository) Update(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Save(doc).Error; err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

// UpdateStatus 更新处理状态
func (r *documentRepository) UpdateStatus(ctx context.Context, docID, status, stage, errMsg string) error {
	updates := map[string]interface{}{
		"processing_status": status,
		"processing_stage":  stage,
		"error_msg":         errMsg,
	}
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", docID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

// Delete 删除文档及其所有分块（事务内级联）
func (r *documentRepository) Delete(ctx context.Context, tenantID, docID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", docID).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		result := tx.Where("id = ? AND tenant_id = ?", docID, tenantID).Delete(&model.Document{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CountByStatus 按处理状态统计
func (r *documentRepository) CountByStatus(ctx context.Context, tenantID string) (map[string]int64, error) {
	return r.countBy(ctx, tenantID, "processing_status")
}

// CountByRisk 按风险评级统计
func (r *documentRepository) CountByRisk(ctx context.Context, tenantID string) (map[string]int64, error) {
	return r.countBy(ctx, tenantID, "risk_score")
}

func (r *documentRepository) countBy(ctx context.Context, tenantID, column string) (map[string]int64, error) {
	type row struct {
		Key   string
		Count int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Select(column+" AS key, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count documents by %s: %w", column, err)
	}
	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.Key] = r.Count
	}
	return result, nil
}

// CreateChunks 批量创建分块
func (r *documentRepository) CreateChunks(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error; err != nil {
		return fmt.Errorf("failed to create chunks: %w", err)
	}
	return nil
}

// GetChunksByDocument 获取文档所有分块，按序号排序
func (r *documentRepository) GetChunksByDocument(ctx context.Context, docID string) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	return chunks, nil
}

// GetChunksByIDs 按租户批量获取分块
func (r *documentRepository) GetChunksByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var chunks []*model.Chunk
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks by ids: %w", err)
	}
	return chunks, nil
}

// DeleteChunksByDocument 删除文档的所有分块
func (r *documentRepository) DeleteChunksByDocument(ctx context.Context, docID string) error {
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Delete(&model.Chunk{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// ListAllChunks 列出所有分块（进程启动时重建向量索引）
// 仅加载已完成文档的分块，失败文档不应残留分块
func (r *documentRepository) ListAllChunks(ctx context.Context) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := r.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Where("documents.processing_status = ?", model.StatusCompleted).
		Order("chunks.document_id, chunks.chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list all chunks: %w", err)
	}
	return chunks, nil
}
