package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/ashwinyue/contract-ai/internal/model"
	"github.com/ashwinyue/contract-ai/internal/repository"
	"github.com/ashwinyue/contract-ai/internal/service/types"
	"github.com/ashwinyue/contract-ai/internal/service/vectorindex"
)

// NoAnswerText 未检索到相关内容时的固定回答
const NoAnswerText = "No relevant information found in your contracts."

// Citation 回答引用的分块
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	PageNumber int     `json:"page_number"`
	ChunkIndex int     `json:"chunk_index"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence_score"`
}

// Answer 问答结果
type Answer struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	RecordID  string     `json:"record_id"`
}

// Analytics 租户合同统计
type Analytics struct {
	TotalDocuments  int64            `json:"total_documents"`
	StatusBreakdown map[string]int64 `json:"status_breakdown"`
	RiskBreakdown   map[string]int64 `json:"risk_breakdown"`
	TotalQueries    int64            `json:"total_queries"`
}

// Service 检索问答服务
// 检索只在调用方租户范围内进行；未命中任何分块时返回固定回答但仍写入历史
type Service struct {
	docRepo    repository.DocumentRepository
	queryRepo  repository.QueryRepository
	embedder   einoembedding.Embedder
	index      *vectorindex.Index
	chatModel  einomodel.ChatModel
	esSearcher ESSearcher
	esIndex    string
	topK       int
}

// NewService 创建检索问答服务
// chatModel 与 esSearcher 均可为 nil，缺失时分别退化为摘录式回答和纯向量检索
func NewService(
	docRepo repository.DocumentRepository,
	queryRepo repository.QueryRepository,
	embedder einoembedding.Embedder,
	index *vectorindex.Index,
	chatModel einomodel.ChatModel,
	esSearcher ESSearcher,
	esIndex string,
	topK int,
) *Service {
	if topK <= 0 {
		topK = 5
	}
	return &Service{
		docRepo:    docRepo,
		queryRepo:  queryRepo,
		embedder:   embedder,
		index:      index,
		chatModel:  chatModel,
		esSearcher: esSearcher,
		esIndex:    esIndex,
		topK:       topK,
	}
}

// Ask 回答关于租户合同的问题
// scope 非空时将检索限定到单个文档：跨租户或不存在的文档返回 ErrNotFound，
// 尚未处理完成的文档返回 ErrProcessing
func (s *Service) Ask(ctx context.Context, tenantID, question, scope string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", types.ErrValidation)
	}

	scope = strings.TrimSpace(scope)
	if scope != "" {
		doc, err := s.docRepo.GetByID(ctx, tenantID, scope)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, fmt.Errorf("%w: document %s", types.ErrNotFound, scope)
		}
		if doc.ProcessingStatus != model.StatusCompleted {
			return nil, fmt.Errorf("%w: document %s is not yet available for querying",
				types.ErrProcessing, scope)
		}
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	var results []vectorindex.Result
	if scope != "" {
		results, err = s.index.SearchDocument(tenantID, scope, vectors[0], s.topK)
	} else {
		results, err = s.index.Search(tenantID, vectors[0], s.topK)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConsistency, err)
	}

	// 关键词通道为尽力而为，失败不影响向量检索结果
	results = s.mergeKeywordHits(ctx, tenantID, scope, question, results)

	citations, chunks := s.resolveCitations(ctx, tenantID, results)

	answerText := NoAnswerText
	if len(citations) > 0 {
		answerText = s.compose(ctx, question, chunks)
	}

	record := &model.QueryRecord{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Question: question,
		Answer:   answerText,
		Evidence: encodeEvidence(citations),
	}
	if err := s.queryRepo.Create(ctx, record); err != nil {
		log.Printf("Warning: failed to save query record: %v", err)
	}

	return &Answer{
		Question:  question,
		Answer:    answerText,
		Citations: citations,
		RecordID:  record.ID,
	}, nil
}

// mergeKeywordHits 合并 BM25 关键词命中，补充向量检索未覆盖的分块
func (s *Service) mergeKeywordHits(ctx context.Context, tenantID, scope, question string, results []vectorindex.Result) []vectorindex.Result {
	if s.esSearcher == nil {
		return results
	}

	resp, err := s.esSearcher.DoSearch(ctx, s.esIndex, buildKeywordQuery(tenantID, scope, question, s.topK))
	if err != nil {
		log.Printf("Warning: keyword search failed: %v", err)
		return results
	}
	if resp.IsError {
		log.Printf("Warning: keyword search returned error: %s", resp.String)
		if resp.Body != nil {
			resp.Body.Close()
		}
		return results
	}

	hits, err := parseKeywordHits(resp.Body)
	if err != nil {
		log.Printf("Warning: %v", err)
		return results
	}

	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		seen[r.ChunkID] = struct{}{}
	}
	for _, h := range hits {
		if len(results) >= s.topK {
			break
		}
		if _, ok := seen[h.ChunkID]; ok {
			continue
		}
		// 关键词补充命中分数置 0，排在向量结果之后
		results = append(results, vectorindex.Result{
			Entry: vectorindex.Entry{ChunkID: h.ChunkID, TenantID: tenantID},
		})
	}
	return results
}

// resolveCitations 加载命中分块并组装引用
// 数据库中已不存在的分块直接跳过，租户过滤在查询内再次强制
func (s *Service) resolveCitations(ctx context.Context, tenantID string, results []vectorindex.Result) ([]Citation, []*model.Chunk) {
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	rows, err := s.docRepo.GetChunksByIDs(ctx, tenantID, ids)
	if err != nil {
		log.Printf("Warning: failed to load chunks: %v", err)
		return nil, nil
	}
	byID := make(map[string]*model.Chunk, len(rows))
	for _, c := range rows {
		byID[c.ID] = c
	}

	var citations []Citation
	var chunks []*model.Chunk
	for _, r := range results {
		c, ok := byID[r.ChunkID]
		if !ok {
			continue
		}
		citations = append(citations, Citation{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			PageNumber: c.PageNumber,
			ChunkIndex: c.ChunkIndex,
			Snippet:    snippet(c.Content, 200),
			Score:      r.Score,
			Confidence: c.Confidence,
		})
		chunks = append(chunks, c)
	}
	return citations, chunks
}

const answerPrompt = `You are a contract analysis assistant. Answer the question using only the contract excerpts below.
If the excerpts do not contain the answer, say so. Be concise and cite specific terms where possible.`

// compose 生成回答，优先走 LLM，失败或未配置时退化为摘录
func (s *Service) compose(ctx context.Context, question string, chunks []*model.Chunk) string {
	if s.chatModel != nil {
		var sb strings.Builder
		for i, c := range chunks {
			fmt.Fprintf(&sb, "[%d] (page %d) %s\n", i+1, c.PageNumber, c.Content)
		}
		resp, err := s.chatModel.Generate(ctx, []*schema.Message{
			{Role: schema.System, Content: answerPrompt},
			{Role: schema.User, Content: fmt.Sprintf("Excerpts:\n%s\nQuestion: %s", sb.String(), question)},
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return strings.TrimSpace(resp.Content)
		}
		if err != nil {
			log.Printf("Warning: answer generation failed, falling back to excerpt: %v", err)
		}
	}

	return "Based on your contracts: " + snippet(chunks[0].Content, 300)
}

// ListHistory 分页查询问答历史
func (s *Service) ListHistory(ctx context.Context, tenantID string, offset, limit int) ([]*model.QueryRecord, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.queryRepo.List(ctx, tenantID, offset, limit)
}

// Suggestions 生成推荐问题，结合固定问题与租户最近的合同
func (s *Service) Suggestions(ctx context.Context, tenantID string) ([]string, error) {
	suggestions := []string{
		"Show me all contracts expiring this month",
		"Find contracts with payment terms",
		"Show high-risk contracts",
		"Find contracts with termination clauses",
		"Which contracts auto-renew?",
	}

	docs, _, err := s.docRepo.List(ctx, tenantID, 0, 5)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		name := d.ContractName
		if name == "" {
			name = d.OriginalFileName
		}
		suggestions = append(suggestions, fmt.Sprintf("Find contracts similar to %s", name))
	}

	if len(suggestions) > 8 {
		suggestions = suggestions[:8]
	}
	return suggestions, nil
}

// GetAnalytics 统计租户合同与问答情况
func (s *Service) GetAnalytics(ctx context.Context, tenantID string) (*Analytics, error) {
	statusCounts, err := s.docRepo.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	riskCounts, err := s.docRepo.CountByRisk(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	totalQueries, err := s.queryRepo.Count(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range statusCounts {
		total += n
	}
	return &Analytics{
		TotalDocuments:  total,
		StatusBreakdown: statusCounts,
		RiskBreakdown:   riskCounts,
		TotalQueries:    totalQueries,
	}, nil
}

// WarmIndex 进程启动时从数据库重建向量索引
func (s *Service) WarmIndex(ctx context.Context) error {
	chunks, err := s.docRepo.ListAllChunks(ctx)
	if err != nil {
		return err
	}

	byDoc := make(map[string][]vectorindex.Entry)
	for _, c := range chunks {
		var vector []float64
		if err := json.Unmarshal([]byte(c.Embedding), &vector); err != nil {
			log.Printf("Warning: skipping chunk %s with invalid embedding: %v", c.ID, err)
			continue
		}
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], vectorindex.Entry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			TenantID:   c.TenantID,
			Ordinal:    c.ChunkIndex,
			Vector:     vector,
		})
	}

	for docID, entries := range byDoc {
		if err := s.index.PublishBatch(docID, entries); err != nil {
			log.Printf("Warning: failed to restore index for document %s: %v", docID, err)
		}
	}
	log.Printf("vector index warmed with %d documents, %d chunks", len(byDoc), len(chunks))
	return nil
}

// snippet 截取内容摘录
func snippet(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}

// encodeEvidence 编码证据分块 ID 列表
func encodeEvidence(citations []Citation) string {
	ids := make([]string, len(citations))
	for i, c := range citations {
		ids[i] = c.ChunkID
	}
	data, _ := json.Marshal(ids)
	return string(data)
}
