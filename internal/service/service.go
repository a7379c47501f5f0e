package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/dashscope"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"
	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/contract-ai/internal/config"
	"github.com/ashwinyue/contract-ai/internal/repository"
	"github.com/ashwinyue/contract-ai/internal/service/auth"
	"github.com/ashwinyue/contract-ai/internal/service/chunker"
	"github.com/ashwinyue/contract-ai/internal/service/document"
	"github.com/ashwinyue/contract-ai/internal/service/embedding"
	"github.com/ashwinyue/contract-ai/internal/service/extract"
	"github.com/ashwinyue/contract-ai/internal/service/file"
	"github.com/ashwinyue/contract-ai/internal/service/parser"
	"github.com/ashwinyue/contract-ai/internal/service/processor"
	"github.com/ashwinyue/contract-ai/internal/service/rag"
	"github.com/ashwinyue/contract-ai/internal/service/vectorindex"
)

// Services 服务集合
type Services struct {
	Auth      *auth.Service
	Document  *document.Service
	Processor *processor.Service
	RAG       *rag.Service

	// 配置
	Config *config.Config

	// Eino 组件（直接使用 eino 类型，无封装）
	Embedder  einoembedding.Embedder
	ChatModel ecomodel.ChatModel

	// 向量索引
	Index *vectorindex.Index
}

// NewServices 创建所有服务
// 使用简单的 newXxx() 函数直接初始化 eino 组件
func NewServices(repo *repository.Repositories, cfg *config.Config, redisClient *redis.Client) (*Services, error) {
	ctx := context.Background()

	// 创建 ChatModel（可选，用于元数据提取与回答生成）
	chatModel, err := newChatModel(ctx, cfg)
	if err != nil {
		log.Printf("Warning: failed to create chat model: %v", err)
	}

	// 创建 Embedding 器
	embedder := newEmbedder(ctx, cfg)

	// 向量索引
	index := vectorindex.New(cfg.AI.Embedding.Dimensions)

	// 文件存储
	storage, err := file.NewLocalStorage(cfg.Upload.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file storage: %w", err)
	}

	// 关键词索引（可选）
	esSearcher := rag.NewESSearcher(&cfg.Elastic)
	if esSearcher == nil {
		log.Printf("Warning: elasticsearch not configured, keyword channel disabled")
	}
	chunkIndexer := rag.NewChunkIndexer(esSearcher, cfg.Elastic.IndexPrefix+"_chunks")

	// 文档处理管道
	tracker := processor.NewTracker(redisClient)
	extractor := extract.New(chatModel)
	processorSvc := processor.New(
		&cfg.Pipeline,
		repo.Document,
		parser.New(),
		chunker.New(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap),
		embedder,
		index,
		extractor,
		tracker,
		chunkIndexer,
	)

	// 检索问答
	ragSvc := rag.NewService(
		repo.Document,
		repo.Query,
		embedder,
		index,
		chatModel,
		esSearcher,
		cfg.Elastic.IndexPrefix+"_chunks",
		cfg.Pipeline.TopK,
	)

	// 进程重启后恢复向量索引
	if err := ragSvc.WarmIndex(ctx); err != nil {
		log.Printf("Warning: failed to warm vector index: %v", err)
	}

	docSvc := document.NewService(cfg, repo, storage, processorSvc, index, chunkIndexer)

	return &Services{
		Auth:      auth.NewService(repo),
		Document:  docSvc,
		Processor: processorSvc,
		RAG:       ragSvc,
		Config:    cfg,
		Embedder:  embedder,
		ChatModel: chatModel,
		Index:     index,
	}, nil
}

// Shutdown 等待后台处理任务结束
func (s *Services) Shutdown() {
	s.Processor.Wait()
}

// newChatModel 创建 ChatModel
func newChatModel(ctx context.Context, cfg *config.Config) (ecomodel.ChatModel, error) {
	aiCfg := cfg.AI

	var apiKey, baseURL, modelName string

	switch aiCfg.Provider {
	case "openai":
		apiKey = aiCfg.OpenAI.APIKey
		baseURL = aiCfg.OpenAI.BaseURL
		modelName = aiCfg.OpenAI.Model
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", aiCfg.Provider)
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
	})
}

// newEmbedder 创建 Embedding 器
// 默认使用内置的确定性向量器，配置了 dashscope 时走外部服务
func newEmbedder(ctx context.Context, cfg *config.Config) einoembedding.Embedder {
	embCfg := cfg.AI.Embedding

	switch embCfg.Provider {
	case "hash", "":
		return embedding.NewHashEmbedder(embCfg.Dimensions)
	case "alibaba", "qwen", "dashscope":
		// 走外部服务
	default:
		log.Printf("Warning: unsupported embedding provider %s, falling back to hash", embCfg.Provider)
		return embedding.NewHashEmbedder(embCfg.Dimensions)
	}

	if embCfg.APIKey == "" {
		log.Printf("Warning: embedding api_key is empty, falling back to hash")
		return embedding.NewHashEmbedder(embCfg.Dimensions)
	}

	modelName := embCfg.Model
	if modelName == "" {
		modelName = "text-embedding-v3"
	}

	embConfig := &dashscope.EmbeddingConfig{
		APIKey: embCfg.APIKey,
		Model:  modelName,
	}
	if embCfg.Timeout > 0 {
		embConfig.Timeout = time.Duration(embCfg.Timeout) * time.Second
	}
	if embCfg.Dimensions > 0 {
		embConfig.Dimensions = &embCfg.Dimensions
	}

	embedder, err := dashscope.NewEmbedder(ctx, embConfig)
	if err != nil {
		log.Printf("Warning: failed to create dashscope embedder, falling back to hash: %v", err)
		return embedding.NewHashEmbedder(embCfg.Dimensions)
	}
	return embedder
}
