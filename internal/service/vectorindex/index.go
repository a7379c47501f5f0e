package vectorindex

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// ErrDimensionMismatch 向量维度与索引不一致
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Entry 索引条目
type Entry struct {
	ChunkID    string
	DocumentID string
	TenantID   string
	Ordinal    int
	Vector     []float64
}

// Result 检索结果
type Result struct {
	Entry
	Score float64
}

// Index 内存向量索引
// 租户过滤在检索内部强制执行；同一文档的条目以批次为单位原子发布，
// 并发读要么看到文档的全部分块，要么一个都看不到
type Index struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]*Entry             // chunkID -> entry
	byDoc   map[string]map[string]struct{} // documentID -> chunkIDs
}

// New 创建向量索引
func New(dims int) *Index {
	if dims <= 0 {
		dims = 384
	}
	return &Index{
		dims:    dims,
		entries: make(map[string]*Entry),
		byDoc:   make(map[string]map[string]struct{}),
	}
}

// Dimensions 索引维度
func (idx *Index) Dimensions() int {
	return idx.dims
}

// PublishBatch 原子发布一个文档的全部条目
// 同一文档的旧条目在同一临界区内被替换，重复发布是幂等的
func (idx *Index) PublishBatch(documentID string, entries []Entry) error {
	for i := range entries {
		if len(entries[i].Vector) != idx.dims {
			return ErrDimensionMismatch
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeDocumentLocked(documentID)

	ids := make(map[string]struct{}, len(entries))
	for i := range entries {
		e := entries[i]
		idx.entries[e.ChunkID] = &e
		ids[e.ChunkID] = struct{}{}
	}
	if len(ids) > 0 {
		idx.byDoc[documentID] = ids
	}
	return nil
}

// Insert 写入或替换单个条目，重复写入同一 chunkID 是幂等替换
func (idx *Index) Insert(e Entry) error {
	if len(e.Vector) != idx.dims {
		return ErrDimensionMismatch
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.deleteEntryLocked(e.ChunkID)
	cp := e
	idx.entries[e.ChunkID] = &cp
	ids := idx.byDoc[e.DocumentID]
	if ids == nil {
		ids = make(map[string]struct{})
		idx.byDoc[e.DocumentID] = ids
	}
	ids[e.ChunkID] = struct{}{}
	return nil
}

// Delete 移除单个条目，条目不存在时为空操作
func (idx *Index) Delete(chunkID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteEntryLocked(chunkID)
}

func (idx *Index) deleteEntryLocked(chunkID string) {
	e, ok := idx.entries[chunkID]
	if !ok {
		return
	}
	delete(idx.entries, chunkID)
	if ids := idx.byDoc[e.DocumentID]; ids != nil {
		delete(ids, chunkID)
		if len(ids) == 0 {
			delete(idx.byDoc, e.DocumentID)
		}
	}
}

// RemoveDocument 原子移除一个文档的全部条目
func (idx *Index) RemoveDocument(documentID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeDocumentLocked(documentID)
}

func (idx *Index) removeDocumentLocked(documentID string) {
	for chunkID := range idx.byDoc[documentID] {
		delete(idx.entries, chunkID)
	}
	delete(idx.byDoc, documentID)
}

// Search 在租户范围内做 kNN 检索
// 按余弦相似度降序排列，分数相同时按文档 ID 与分块序号升序
func (idx *Index) Search(tenantID string, query []float64, k int) ([]Result, error) {
	return idx.search(tenantID, "", query, k)
}

// SearchDocument 在租户的单个文档范围内做 kNN 检索
func (idx *Index) SearchDocument(tenantID, documentID string, query []float64, k int) ([]Result, error) {
	return idx.search(tenantID, documentID, query, k)
}

func (idx *Index) search(tenantID, documentID string, query []float64, k int) ([]Result, error) {
	if len(query) != idx.dims {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	results := make([]Result, 0, 64)
	for _, e := range idx.entries {
		if e.TenantID != tenantID {
			continue
		}
		if documentID != "" && e.DocumentID != documentID {
			continue
		}
		results = append(results, Result{Entry: *e, Score: cosine(query, e.Vector)})
	}
	idx.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].Ordinal < results[j].Ordinal
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Size 当前条目总数
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// DocumentSize 指定文档的条目数
func (idx *Index) DocumentSize(documentID string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byDoc[documentID])
}

// cosine 余弦相似度，零向量视为相似度 0
func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
