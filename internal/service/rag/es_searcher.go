package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/ashwinyue/contract-ai/internal/config"
)

// ESSearcher Elasticsearch 客户端接口，用于抽象 ES 客户端
type ESSearcher interface {
	// DoSearch 执行搜索请求并返回响应
	DoSearch(ctx context.Context, index string, queryJSON []byte) (*ESResponse, error)
	// DoBulk 执行批量写入请求（NDJSON 格式）
	DoBulk(ctx context.Context, index string, body []byte) (*ESResponse, error)
	// DoDeleteByQuery 按查询删除文档
	DoDeleteByQuery(ctx context.Context, index string, queryJSON []byte) (*ESResponse, error)
}

// ESResponse Elasticsearch 搜索响应
type ESResponse struct {
	IsError bool
	Body    io.ReadCloser
	String  string
}

// realESSearcher 真实 ES 客户端的适配器
type realESSearcher struct {
	client *elasticsearch.Client
}

// NewESSearcher 按配置创建 ES 搜索器，未配置地址时返回 nil
func NewESSearcher(cfg *config.ElasticConfig) ESSearcher {
	if cfg.Host == "" {
		return nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Host},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil
	}
	return &realESSearcher{client: client}
}

func (r *realESSearcher) DoSearch(ctx context.Context, index string, queryJSON []byte) (*ESResponse, error) {
	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(index),
		r.client.Search.WithBody(bytes.NewReader(queryJSON)),
	)
	if err != nil {
		return nil, err
	}
	return &ESResponse{
		IsError: res.IsError(),
		Body:    res.Body,
		String:  res.String(),
	}, nil
}

func (r *realESSearcher) DoBulk(ctx context.Context, index string, body []byte) (*ESResponse, error) {
	res, err := r.client.Bulk(
		bytes.NewReader(body),
		r.client.Bulk.WithContext(ctx),
		r.client.Bulk.WithIndex(index),
	)
	if err != nil {
		return nil, err
	}
	return &ESResponse{
		IsError: res.IsError(),
		Body:    res.Body,
		String:  res.String(),
	}, nil
}

func (r *realESSearcher) DoDeleteByQuery(ctx context.Context, index string, queryJSON []byte) (*ESResponse, error) {
	res, err := r.client.DeleteByQuery(
		[]string{index},
		bytes.NewReader(queryJSON),
		r.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return nil, err
	}
	return &ESResponse{
		IsError: res.IsError(),
		Body:    res.Body,
		String:  res.String(),
	}, nil
}

// keywordHit 关键词检索命中
type keywordHit struct {
	ChunkID string
	Score   float64
}

// buildKeywordQuery 构建租户过滤的 BM25 查询
// documentID 非空时额外限定到单个文档
func buildKeywordQuery(tenantID, documentID, query string, k int) []byte {
	filters := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"tenant_id": tenantID},
		},
	}
	if documentID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"document_id": documentID},
		})
	}

	body := map[string]interface{}{
		"size": k,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
				"must": []interface{}{
					map[string]interface{}{
						"match": map[string]interface{}{
							"content": map[string]interface{}{"query": query},
						},
					},
				},
			},
		},
	}
	data, _ := json.Marshal(body)
	return data
}

// parseKeywordHits 解析 ES 响应中的命中列表
func parseKeywordHits(body io.ReadCloser) ([]keywordHit, error) {
	defer body.Close()

	var resp struct {
		Hits struct {
			Hits []struct {
				ID    string  `json:"_id"`
				Score float64 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]keywordHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, keywordHit{ChunkID: h.ID, Score: h.Score})
	}
	return hits, nil
}
