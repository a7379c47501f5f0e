package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"

	"github.com/ashwinyue/contract-ai/internal/config"
	"github.com/ashwinyue/contract-ai/internal/model"
	"github.com/ashwinyue/contract-ai/internal/repository"
	"github.com/ashwinyue/contract-ai/internal/service/chunker"
	"github.com/ashwinyue/contract-ai/internal/service/extract"
	"github.com/ashwinyue/contract-ai/internal/service/parser"
	"github.com/ashwinyue/contract-ai/internal/service/types"
	"github.com/ashwinyue/contract-ai/internal/service/vectorindex"
)

// ErrJobInProgress 文档已有处理任务在运行
var ErrJobInProgress = errors.New("document job already in progress")

// DocumentParser 文档解析接口
type DocumentParser interface {
	Parse(ctx context.Context, reader io.Reader, ext string) ([]parser.Page, error)
}

// KeywordIndexer 可选的关键词索引写入端
// 所有调用都是尽力而为，失败只记录警告
type KeywordIndexer interface {
	IndexChunks(ctx context.Context, chunks []*model.Chunk) error
	RemoveDocument(ctx context.Context, documentID string) error
}

// Service 文档处理协调器
// 驱动 pending -> parsing -> chunking -> embedding -> completed/failed 状态机，
// 同一文档同一时刻至多一个处理任务，失败时回滚已写入的分块与索引条目
type Service struct {
	cfg       *config.PipelineConfig
	repo      repository.DocumentRepository
	parser    DocumentParser
	chunker   *chunker.Chunker
	embedder  einoembedding.Embedder
	index     *vectorindex.Index
	extractor *extract.Service
	tracker   *Tracker
	keyword   KeywordIndexer

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// New 创建处理协调器
func New(
	cfg *config.PipelineConfig,
	repo repository.DocumentRepository,
	docParser DocumentParser,
	chk *chunker.Chunker,
	embedder einoembedding.Embedder,
	index *vectorindex.Index,
	extractor *extract.Service,
	tracker *Tracker,
	keyword KeywordIndexer,
) *Service {
	return &Service{
		cfg:       cfg,
		repo:      repo,
		parser:    docParser,
		chunker:   chk,
		embedder:  embedder,
		index:     index,
		extractor: extractor,
		tracker:   tracker,
		keyword:   keyword,
		jobs:      make(map[string]context.CancelFunc),
	}
}

// Enqueue 异步启动文档处理
// 同一文档已有任务在运行时返回 ErrJobInProgress
func (s *Service) Enqueue(doc *model.Document) error {
	s.mu.Lock()
	if _, exists := s.jobs[doc.ID]; exists {
		s.mu.Unlock()
		return ErrJobInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.jobs[doc.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(doc.ID)
		s.run(ctx, doc)
	}()
	return nil
}

// Cancel 取消文档的处理任务，返回是否有任务被取消
func (s *Service) Cancel(documentID string) bool {
	s.mu.Lock()
	cancel, ok := s.jobs[documentID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// IsRunning 文档是否有任务在运行
func (s *Service) IsRunning(documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[documentID]
	return ok
}

// Wait 等待所有任务结束（用于优雅关闭）
func (s *Service) Wait() {
	s.wg.Wait()
}

// Progress 查询处理进度
func (s *Service) Progress(ctx context.Context, documentID string) (*Progress, bool) {
	return s.tracker.Get(ctx, documentID)
}

func (s *Service) release(documentID string) {
	s.mu.Lock()
	cancel := s.jobs[documentID]
	delete(s.jobs, documentID)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run 执行完整处理管道
func (s *Service) run(ctx context.Context, doc *model.Document) {
	log.Printf("processing document %s (%s)", doc.ID, doc.OriginalFileName)

	// 解析
	s.setStage(ctx, doc.ID, model.StatusParsing)
	pages, err := s.parseFile(ctx, doc)
	if err != nil {
		s.fail(ctx, doc, model.StatusParsing, err)
		return
	}

	// 分块
	s.setStage(ctx, doc.ID, model.StatusChunking)
	passages, err := s.chunker.Split(pages)
	if err != nil {
		s.fail(ctx, doc, model.StatusChunking, err)
		return
	}

	// 向量化
	s.setStage(ctx, doc.ID, model.StatusEmbedding)
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	vectors, err := s.embedWithRetry(ctx, texts)
	if err != nil {
		s.fail(ctx, doc, model.StatusEmbedding, err)
		return
	}

	chunks, entries, err := s.buildChunks(doc, passages, vectors)
	if err != nil {
		s.fail(ctx, doc, model.StatusEmbedding, err)
		return
	}

	// 持久化分块，再原子发布到向量索引
	if err := s.repo.CreateChunks(ctx, chunks); err != nil {
		s.fail(ctx, doc, model.StatusEmbedding, err)
		return
	}
	if err := s.index.PublishBatch(doc.ID, entries); err != nil {
		s.fail(ctx, doc, model.StatusEmbedding, fmt.Errorf("%w: %v", types.ErrConsistency, err))
		return
	}

	// 镜像写入关键词索引，失败不阻塞处理
	if s.keyword != nil {
		if err := s.keyword.RemoveDocument(ctx, doc.ID); err != nil {
			log.Printf("Warning: failed to clear keyword index for %s: %v", doc.ID, err)
		}
		if err := s.keyword.IndexChunks(ctx, chunks); err != nil {
			log.Printf("Warning: failed to index chunks for %s: %v", doc.ID, err)
		}
	}

	// 提取合同元数据并完成
	s.applyMetadata(ctx, doc, pages)
	doc.ProcessingStatus = model.StatusCompleted
	doc.ProcessingStage = ""
	doc.ErrorMsg = ""
	doc.ChunkCount = len(chunks)
	if err := s.repo.Update(ctx, doc); err != nil {
		s.fail(ctx, doc, model.StatusEmbedding, err)
		return
	}

	s.tracker.Set(ctx, doc.ID, model.StatusCompleted, "", "")
	log.Printf("document %s completed with %d chunks", doc.ID, len(chunks))
}

// parseFile 读取并解析文档文件
func (s *Service) parseFile(ctx context.Context, doc *model.Document) ([]parser.Page, error) {
	if doc.FilePath == "" {
		return nil, fmt.Errorf("file path is empty")
	}
	file, err := os.Open(doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return s.parser.Parse(ctx, file, doc.FileType)
}

// embedWithRetry 带退避重试的批量向量化
func (s *Service) embedWithRetry(ctx context.Context, texts []string) ([][]float64, error) {
	backoff := time.Duration(s.cfg.RetryBackoffMS) * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		vectors, err := s.embedder.EmbedStrings(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
					types.ErrConsistency, len(vectors), len(texts))
			}
			return vectors, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		log.Printf("embedding attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", s.cfg.MaxRetries+1, lastErr)
}

// buildChunks 组装分块记录与索引条目
func (s *Service) buildChunks(doc *model.Document, passages []chunker.Passage, vectors [][]float64) ([]*model.Chunk, []vectorindex.Entry, error) {
	confidence := 1.0
	if doc.FileType != ".txt" {
		confidence = 0.8
	}

	chunks := make([]*model.Chunk, len(passages))
	entries := make([]vectorindex.Entry, len(passages))
	for i, p := range passages {
		embedded, err := json.Marshal(vectors[i])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode embedding: %w", err)
		}
		chunkID := uuid.New().String()
		chunks[i] = &model.Chunk{
			ID:         chunkID,
			DocumentID: doc.ID,
			TenantID:   doc.TenantID,
			Content:    p.Content,
			PageNumber: p.PageNumber,
			ChunkIndex: p.Index,
			Embedding:  string(embedded),
			Confidence: confidence,
		}
		entries[i] = vectorindex.Entry{
			ChunkID:    chunkID,
			DocumentID: doc.ID,
			TenantID:   doc.TenantID,
			Ordinal:    p.Index,
			Vector:     vectors[i],
		}
	}
	return chunks, entries, nil
}

// applyMetadata 提取合同元数据并写入文档
func (s *Service) applyMetadata(ctx context.Context, doc *model.Document, pages []parser.Page) {
	if s.extractor == nil {
		return
	}

	var sb strings.Builder
	for _, p := range pages {
		sb.WriteString(p.Text)
		sb.WriteString("\n")
	}

	meta := s.extractor.Extract(ctx, doc.OriginalFileName, sb.String())
	if doc.ContractName == "" {
		doc.ContractName = meta.ContractName
	}
	if len(meta.Parties) > 0 {
		if parties, err := json.Marshal(meta.Parties); err == nil {
			doc.Parties = string(parties)
		}
	}
	doc.ExpiryDate = meta.ExpiryDate
	doc.RiskScore = meta.RiskScore
	doc.Status = extract.LifecycleStatus(meta.ExpiryDate, time.Now())
}

// fail 回滚并标记失败
// 回滚删除已写入的分块与索引条目，保证失败的文档不残留部分数据
func (s *Service) fail(ctx context.Context, doc *model.Document, stage string, cause error) {
	log.Printf("document %s failed at %s: %v", doc.ID, stage, cause)

	s.index.RemoveDocument(doc.ID)
	// 回滚用独立上下文，任务被取消时清理仍需完成
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.repo.DeleteChunksByDocument(cleanupCtx, doc.ID); err != nil {
		log.Printf("Warning: failed to roll back chunks for %s: %v", doc.ID, err)
	}
	if s.keyword != nil {
		if err := s.keyword.RemoveDocument(cleanupCtx, doc.ID); err != nil {
			log.Printf("Warning: failed to roll back keyword index for %s: %v", doc.ID, err)
		}
	}

	if err := s.repo.UpdateStatus(cleanupCtx, doc.ID, model.StatusFailed, stage, cause.Error()); err != nil {
		log.Printf("Warning: failed to mark document %s failed: %v", doc.ID, err)
	}
	s.tracker.Set(cleanupCtx, doc.ID, model.StatusFailed, stage, cause.Error())
}

// setStage 推进状态机并同步进度
func (s *Service) setStage(ctx context.Context, documentID, status string) {
	if err := s.repo.UpdateStatus(ctx, documentID, status, status, ""); err != nil {
		log.Printf("Warning: failed to update status for %s: %v", documentID, err)
	}
	s.tracker.Set(ctx, documentID, status, status, "")
}
