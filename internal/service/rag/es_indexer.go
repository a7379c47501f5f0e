package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashwinyue/contract-ai/internal/model"
)

// ChunkIndexer 将分块写入 ES 关键词索引
// 写入是尽力而为：调用方只记录警告，失败不影响向量检索与主流程
type ChunkIndexer struct {
	es    ESSearcher
	index string
}

// NewChunkIndexer 创建分块关键词索引器，es 为 nil 时返回 nil
func NewChunkIndexer(es ESSearcher, index string) *ChunkIndexer {
	if es == nil {
		return nil
	}
	return &ChunkIndexer{es: es, index: index}
}

// IndexChunks 批量写入分块，重复写入同一分块 ID 为覆盖
func (ci *ChunkIndexer) IndexChunks(ctx context.Context, chunks []*model.Chunk) error {
	if ci == nil || len(chunks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, c := range chunks {
		meta, _ := json.Marshal(map[string]interface{}{
			"index": map[string]interface{}{"_id": c.ID},
		})
		buf.Write(meta)
		buf.WriteByte('\n')

		src, _ := json.Marshal(map[string]interface{}{
			"tenant_id":   c.TenantID,
			"document_id": c.DocumentID,
			"content":     c.Content,
			"page_number": c.PageNumber,
			"chunk_index": c.ChunkIndex,
		})
		buf.Write(src)
		buf.WriteByte('\n')
	}

	resp, err := ci.es.DoBulk(ctx, ci.index, buf.Bytes())
	if err != nil {
		return fmt.Errorf("bulk index failed: %w", err)
	}
	if resp.Body != nil {
		resp.Body.Close()
	}
	if resp.IsError {
		return fmt.Errorf("bulk index returned error: %s", resp.String)
	}
	return nil
}

// RemoveDocument 删除文档的全部分块
func (ci *ChunkIndexer) RemoveDocument(ctx context.Context, documentID string) error {
	if ci == nil {
		return nil
	}

	query, _ := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"document_id": documentID},
		},
	})
	resp, err := ci.es.DoDeleteByQuery(ctx, ci.index, query)
	if err != nil {
		return fmt.Errorf("delete by query failed: %w", err)
	}
	if resp.Body != nil {
		resp.Body.Close()
	}
	if resp.IsError {
		return fmt.Errorf("delete by query returned error: %s", resp.String)
	}
	return nil
}
