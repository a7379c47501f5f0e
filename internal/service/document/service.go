package document

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ashwinyue/contract-ai/internal/config"
	"github.com/ashwinyue/contract-ai/internal/model"
	"github.com/ashwinyue/contract-ai/internal/repository"
	"github.com/ashwinyue/contract-ai/internal/service/file"
	"github.com/ashwinyue/contract-ai/internal/service/processor"
	"github.com/ashwinyue/contract-ai/internal/service/types"
	"github.com/ashwinyue/contract-ai/internal/service/vectorindex"
)

// Pipeline 文档处理管道接口
type Pipeline interface {
	Enqueue(doc *model.Document) error
	Cancel(documentID string) bool
	IsRunning(documentID string) bool
	Progress(ctx context.Context, documentID string) (*processor.Progress, bool)
}

// KeywordIndexer 可选的关键词索引写入端，删除文档时级联清理
type KeywordIndexer interface {
	RemoveDocument(ctx context.Context, documentID string) error
}

// Status 文档状态视图
type Status struct {
	Document *model.Document     `json:"document"`
	Progress *processor.Progress `json:"progress,omitempty"`
}

// Service 文档管理服务
// 上传校验在创建任何记录之前完成，删除会级联清理文件、分块与索引条目
type Service struct {
	cfg      *config.Config
	repo     *repository.Repositories
	storage  file.Storage
	pipeline Pipeline
	index    *vectorindex.Index
	keyword  KeywordIndexer
}

// NewService 创建文档管理服务，keyword 可为 nil
func NewService(cfg *config.Config, repo *repository.Repositories, storage file.Storage, pipeline Pipeline, index *vectorindex.Index, keyword KeywordIndexer) *Service {
	return &Service{
		cfg:      cfg,
		repo:     repo,
		storage:  storage,
		pipeline: pipeline,
		index:    index,
		keyword:  keyword,
	}
}

// Upload 上传合同并启动异步处理
// 扩展名与大小校验失败时不会留下任何记录
func (s *Service) Upload(ctx context.Context, tenantID, fileName string, size int64, reader io.Reader) (*model.Document, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !s.cfg.Upload.IsAllowedExtension(ext) {
		return nil, fmt.Errorf("%w: unsupported file extension %q", types.ErrValidation, ext)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: file is empty", types.ErrValidation)
	}
	if size > s.cfg.Upload.MaxFileSize {
		return nil, fmt.Errorf("%w: file size %d exceeds limit %d",
			types.ErrValidation, size, s.cfg.Upload.MaxFileSize)
	}

	relativePath, err := s.storage.Save(ctx, &file.SaveRequest{
		TenantID: tenantID,
		FileName: fileName,
		Reader:   io.LimitReader(reader, s.cfg.Upload.MaxFileSize),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	doc := &model.Document{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		FileName:         filepath.Base(relativePath),
		OriginalFileName: fileName,
		FilePath:         s.storage.FullPath(relativePath),
		FileSize:         size,
		FileType:         ext,
		ProcessingStatus: model.StatusPending,
	}
	if err := s.repo.Document.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(ctx, relativePath); delErr != nil {
			log.Printf("Warning: failed to clean up file after create error: %v", delErr)
		}
		return nil, err
	}

	if err := s.repo.Tenant.AddStorageUsed(ctx, tenantID, size); err != nil {
		log.Printf("Warning: failed to update storage usage: %v", err)
	}

	if err := s.pipeline.Enqueue(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get 获取文档，跨租户访问与不存在同样返回 ErrNotFound
func (s *Service) Get(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	doc, err := s.repo.Document.GetByID(ctx, tenantID, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", types.ErrNotFound, docID)
	}
	return doc, nil
}

// List 分页列出租户文档
func (s *Service) List(ctx context.Context, tenantID string, page, pageSize int) ([]*model.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.Document.List(ctx, tenantID, (page-1)*pageSize, pageSize)
}

// GetStatus 查询文档处理状态
func (s *Service) GetStatus(ctx context.Context, tenantID, docID string) (*Status, error) {
	doc, err := s.Get(ctx, tenantID, docID)
	if err != nil {
		return nil, err
	}
	progress, _ := s.pipeline.Progress(ctx, docID)
	return &Status{Document: doc, Progress: progress}, nil
}

// GetChunks 获取文档的全部分块
func (s *Service) GetChunks(ctx context.Context, tenantID, docID string) ([]*model.Chunk, error) {
	if _, err := s.Get(ctx, tenantID, docID); err != nil {
		return nil, err
	}
	return s.repo.Document.GetChunksByDocument(ctx, docID)
}

// Delete 删除文档及其分块、索引条目与底层文件
// 处理中的任务先被取消
func (s *Service) Delete(ctx context.Context, tenantID, docID string) error {
	doc, err := s.Get(ctx, tenantID, docID)
	if err != nil {
		return err
	}

	if s.pipeline.Cancel(docID) {
		log.Printf("cancelled running job for document %s", docID)
	}

	s.index.RemoveDocument(docID)
	if s.keyword != nil {
		if err := s.keyword.RemoveDocument(ctx, docID); err != nil {
			log.Printf("Warning: failed to clean keyword index for %s: %v", docID, err)
		}
	}
	if err := s.repo.Document.Delete(ctx, tenantID, docID); err != nil {
		return err
	}

	if doc.FilePath != "" {
		relativePath := fmt.Sprintf("%s/%s", tenantID, doc.FileName)
		if err := s.storage.Delete(ctx, relativePath); err != nil {
			log.Printf("Warning: failed to delete file for document %s: %v", docID, err)
		}
	}
	if err := s.repo.Tenant.AddStorageUsed(ctx, tenantID, -doc.FileSize); err != nil {
		log.Printf("Warning: failed to update storage usage: %v", err)
	}
	return nil
}

// Reprocess 重新处理文档
// 已有任务运行时返回 ErrProcessing，旧分块与索引条目先被清理
func (s *Service) Reprocess(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	doc, err := s.Get(ctx, tenantID, docID)
	if err != nil {
		return nil, err
	}
	if s.pipeline.IsRunning(docID) {
		return nil, fmt.Errorf("%w: document %s", types.ErrProcessing, docID)
	}

	s.index.RemoveDocument(docID)
	if s.keyword != nil {
		if err := s.keyword.RemoveDocument(ctx, docID); err != nil {
			log.Printf("Warning: failed to clean keyword index for %s: %v", docID, err)
		}
	}
	if err := s.repo.Document.DeleteChunksByDocument(ctx, docID); err != nil {
		return nil, err
	}

	doc.ProcessingStatus = model.StatusPending
	doc.ProcessingStage = ""
	doc.ErrorMsg = ""
	doc.RetryCount++
	doc.ChunkCount = 0
	if err := s.repo.Document.Update(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.pipeline.Enqueue(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
