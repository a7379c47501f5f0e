package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"github.com/ashwinyue/contract-ai/internal/config"
	"github.com/ashwinyue/contract-ai/internal/model"
	"github.com/ashwinyue/contract-ai/internal/repository"
	"github.com/ashwinyue/contract-ai/internal/service/chunker"
	"github.com/ashwinyue/contract-ai/internal/service/parser"
	"github.com/ashwinyue/contract-ai/internal/service/vectorindex"
)

// ========== mockDocumentRepo ==========

type mockDocumentRepo struct {
	mu           sync.Mutex
	statusCalls  []string
	chunks       []*model.Chunk
	updatedDoc   *model.Document
	chunkDeletes int
}

var _ repository.DocumentRepository = (*mockDocumentRepo)(nil)

func (m *mockDocumentRepo) Create(ctx context.Context, doc *model.Document) error { return nil }
func (m *mockDocumentRepo) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	return nil, nil
}
func (m *mockDocumentRepo) List(ctx context.Context, tenantID string, offset, limit int) ([]*model.Document, int64, error) {
	return nil, 0, nil
}
func (m *mockDocumentRepo) Update(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *doc
	m.updatedDoc = &copied
	return nil
}
func (m *mockDocumentRepo) UpdateStatus(ctx context.Context, docID, status, stage, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, status)
	return nil
}
func (m *mockDocumentRepo) Delete(ctx context.Context, tenantID, docID string) error { return nil }
func (m *mockDocumentRepo) CountByStatus(ctx context.Context, tenantID string) (map[string]int64, error) {
	return nil, nil
}
func (m *mockDocumentRepo) CountByRisk(ctx context.Context, tenantID string) (map[string]int64, error) {
	return nil, nil
}
func (m *mockDocumentRepo) CreateChunks(ctx context.Context, chunks []*model.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}
func (m *mockDocumentRepo) GetChunksByDocument(ctx context.Context, docID string) ([]*model.Chunk, error) {
	return nil, nil
}
func (m *mockDocumentRepo) GetChunksByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.Chunk, error) {
	return nil, nil
}
func (m *mockDocumentRepo) DeleteChunksByDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkDeletes++
	m.chunks = nil
	return nil
}
func (m *mockDocumentRepo) ListAllChunks(ctx context.Context) ([]*model.Chunk, error) {
	return nil, nil
}

func (m *mockDocumentRepo) statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statusCalls...)
}

// ========== mockEmbedder ==========

type mockEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures int           // 前 N 次调用返回错误
	block    chan struct{} // 非 nil 时阻塞直到关闭或上下文取消
	dims     int
}

var _ einoembedding.Embedder = (*mockEmbedder)(nil)

func (m *mockEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...einoembedding.Option) ([][]float64, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	m.calls++
	fail := m.calls <= m.failures
	m.mu.Unlock()

	if fail {
		return nil, errors.New("embedding backend unavailable")
	}

	vectors := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, m.dims)
		v[0] = 1
		vectors[i] = v
	}
	return vectors, nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ========== 测试装配 ==========

func testConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		ChunkSize:      500,
		ChunkOverlap:   0.1,
		TopK:           5,
		MaxRetries:     3,
		RetryBackoffMS: 1,
		Workers:        1,
	}
}

func newTestService(repo *mockDocumentRepo, emb *mockEmbedder, idx *vectorindex.Index) *Service {
	cfg := testConfig()
	return New(cfg, repo, parser.New(), chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		emb, idx, nil, NewTracker(nil), nil)
}

// ========== mockKeywordIndexer ==========

type mockKeywordIndexer struct {
	mu       sync.Mutex
	indexed  []*model.Chunk
	removals []string
	err      error
}

var _ KeywordIndexer = (*mockKeywordIndexer)(nil)

func (m *mockKeywordIndexer) IndexChunks(ctx context.Context, chunks []*model.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.indexed = append(m.indexed, chunks...)
	return nil
}

func (m *mockKeywordIndexer) RemoveDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.removals = append(m.removals, documentID)
	return nil
}

func writeTempTxt(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contract.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func testDocument(path string) *model.Document {
	return &model.Document{
		ID:               "doc-1",
		TenantID:         "tenant-1",
		OriginalFileName: "contract.txt",
		FilePath:         path,
		FileType:         ".txt",
		ProcessingStatus: model.StatusPending,
	}
}

// ========== 处理流程测试 ==========

func TestProcessDocumentCompletes(t *testing.T) {
	// 两页文本：第一页 800 字符，第二页 400 字符，应产出 3 个分块
	content := strings.Repeat("a", 800) + "\f" + strings.Repeat("b", 400)
	path := writeTempTxt(t, content)

	repo := &mockDocumentRepo{}
	emb := &mockEmbedder{dims: 8}
	idx := vectorindex.New(8)
	svc := newTestService(repo, emb, idx)

	doc := testDocument(path)
	if err := svc.Enqueue(doc); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	svc.Wait()

	// 状态机依次经过 parsing / chunking / embedding
	want := []string{model.StatusParsing, model.StatusChunking, model.StatusEmbedding}
	got := repo.statuses()
	if len(got) != len(want) {
		t.Fatalf("expected status transitions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if repo.updatedDoc == nil {
		t.Fatal("expected final document update")
	}
	if repo.updatedDoc.ProcessingStatus != model.StatusCompleted {
		t.Errorf("expected completed, got %s", repo.updatedDoc.ProcessingStatus)
	}
	if repo.updatedDoc.ChunkCount != 3 {
		t.Errorf("expected chunk count 3, got %d", repo.updatedDoc.ChunkCount)
	}

	if len(repo.chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(repo.chunks))
	}
	wantPages := []int{1, 1, 2}
	for i, c := range repo.chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, c.ChunkIndex)
		}
		if c.PageNumber != wantPages[i] {
			t.Errorf("chunk %d: expected page %d, got %d", i, wantPages[i], c.PageNumber)
		}
		if c.TenantID != "tenant-1" {
			t.Errorf("chunk %d: expected tenant-1, got %s", i, c.TenantID)
		}
		if c.Confidence != 1.0 {
			t.Errorf("chunk %d: expected confidence 1.0, got %v", i, c.Confidence)
		}
	}

	if idx.DocumentSize("doc-1") != 3 {
		t.Errorf("expected 3 index entries, got %d", idx.DocumentSize("doc-1"))
	}

	progress, ok := svc.Progress(context.Background(), "doc-1")
	if !ok || progress.Status != model.StatusCompleted {
		t.Errorf("expected completed progress, got %+v", progress)
	}
}

func TestProcessFailureRollsBack(t *testing.T) {
	repo := &mockDocumentRepo{}
	emb := &mockEmbedder{dims: 8}
	idx := vectorindex.New(8)
	svc := newTestService(repo, emb, idx)

	// 文件不存在，解析阶段失败
	doc := testDocument(filepath.Join(t.TempDir(), "missing.txt"))
	if err := svc.Enqueue(doc); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	svc.Wait()

	got := repo.statuses()
	if len(got) == 0 || got[len(got)-1] != model.StatusFailed {
		t.Fatalf("expected final status failed, got %v", got)
	}
	if repo.chunkDeletes == 0 {
		t.Error("expected chunk rollback on failure")
	}
	if idx.Size() != 0 {
		t.Errorf("expected empty index after rollback, got %d entries", idx.Size())
	}

	progress, ok := svc.Progress(context.Background(), "doc-1")
	if !ok || progress.Status != model.StatusFailed {
		t.Fatalf("expected failed progress, got %+v", progress)
	}
	if progress.Stage != model.StatusParsing {
		t.Errorf("expected failure at parsing stage, got %s", progress.Stage)
	}
	if progress.Error == "" {
		t.Error("expected error message in progress")
	}
}

func TestEmbedRetrySucceeds(t *testing.T) {
	path := writeTempTxt(t, "short contract text")

	repo := &mockDocumentRepo{}
	emb := &mockEmbedder{dims: 8, failures: 2}
	idx := vectorindex.New(8)
	svc := newTestService(repo, emb, idx)

	if err := svc.Enqueue(testDocument(path)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	svc.Wait()

	if emb.callCount() != 3 {
		t.Errorf("expected 3 embedding attempts, got %d", emb.callCount())
	}
	if repo.updatedDoc == nil || repo.updatedDoc.ProcessingStatus != model.StatusCompleted {
		t.Error("expected document to complete after retries")
	}
}

func TestEmbedFailureAfterRetries(t *testing.T) {
	path := writeTempTxt(t, "short contract text")

	repo := &mockDocumentRepo{}
	emb := &mockEmbedder{dims: 8, failures: 100}
	idx := vectorindex.New(8)
	svc := newTestService(repo, emb, idx)

	if err := svc.Enqueue(testDocument(path)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	svc.Wait()

	// MaxRetries=3 意味着最多 4 次尝试
	if emb.callCount() != 4 {
		t.Errorf("expected 4 embedding attempts, got %d", emb.callCount())
	}

	progress, ok := svc.Progress(context.Background(), "doc-1")
	if !ok || progress.Status != model.StatusFailed {
		t.Fatalf("expected failed progress, got %+v", progress)
	}
	if progress.Stage != model.StatusEmbedding {
		t.Errorf("expected failure at embedding stage, got %s", progress.Stage)
	}
}

// ========== 关键词索引联动测试 ==========

func TestProcessIndexesKeywordChannel(t *testing.T) {
	content := strings.Repeat("a", 800) + "\f" + strings.Repeat("b", 400)
	path := writeTempTxt(t, content)

	cfg := testConfig()
	repo := &mockDocumentRepo{}
	emb := &mockEmbedder{dims: 8}
	idx := vectorindex.New(8)
	kw := &mockKeywordIndexer{}
	svc := New(cfg, repo, parser.New(), chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		emb, idx, nil, NewTracker(nil), kw)

	if err := svc.Enqueue(testDocument(path)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	svc.Wait()

	if len(kw.indexed) != 3 {
		t.Errorf("expected 3 chunks indexed into keyword channel, got %d", len(kw.indexed))
	}
	// 发布前先清理旧条目，重新处理时不会累积
	if len(kw.removals) != 1 || kw.removals[0] != "doc-1" {
		t.Errorf("expected keyword cleanup before publish, got %v", kw.removals)
	}
}

func TestProcessKeywordIndexFailureIgnored(t *testing.T) {
	path := writeTempTxt(t, "short contract text")

	cfg := testConfig()
	repo := &mockDocumentRepo{}
	emb := &mockEmbedder{dims: 8}
	idx := vectorindex.New(8)
	kw := &mockKeywordIndexer{err: errors.New("es unavailable")}
	svc := New(cfg, repo, parser.New(), chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		emb, idx, nil, NewTracker(nil), kw)

	if err := svc.Enqueue(testDocument(path)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	svc.Wait()

	// 关键词通道失败不影响处理结果
	if repo.updatedDoc == nil || repo.updatedDoc.ProcessingStatus != model.StatusCompleted {
		t.Error("expected document to complete despite keyword index failure")
	}
}

func TestFailureRollsBackKeywordIndex(t *testing.T) {
	cfg := testConfig()
	repo := &mockDocumentRepo{}
	emb := &mockEmbedder{dims: 8}
	idx := vectorindex.New(8)
	kw := &mockKeywordIndexer{}
	svc := New(cfg, repo, parser.New(), chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		emb, idx, nil, NewTracker(nil), kw)

	// 文件不存在，解析阶段失败后应清理关键词索引
	doc := testDocument(filepath.Join(t.TempDir(), "missing.txt"))
	if err := svc.Enqueue(doc); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	svc.Wait()

	if len(kw.removals) != 1 || kw.removals[0] != "doc-1" {
		t.Errorf("expected keyword rollback on failure, got %v", kw.removals)
	}
}

// ========== 并发控制测试 ==========

func TestEnqueueRejectsConcurrentJob(t *testing.T) {
	path := writeTempTxt(t, "short contract text")

	repo := &mockDocumentRepo{}
	block := make(chan struct{})
	emb := &mockEmbedder{dims: 8, block: block}
	idx := vectorindex.New(8)
	svc := newTestService(repo, emb, idx)

	doc := testDocument(path)
	if err := svc.Enqueue(doc); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// 等待任务进入运行状态
	deadline := time.Now().Add(2 * time.Second)
	for !svc.IsRunning(doc.ID) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := svc.Enqueue(doc); !errors.Is(err, ErrJobInProgress) {
		t.Errorf("expected ErrJobInProgress, got %v", err)
	}

	close(block)
	svc.Wait()

	if svc.IsRunning(doc.ID) {
		t.Error("expected job to be released after completion")
	}

	// 任务结束后可以再次入队
	if err := svc.Enqueue(doc); err != nil {
		t.Errorf("expected re-enqueue to succeed, got %v", err)
	}
	svc.Wait()
}

func TestCancelStopsJob(t *testing.T) {
	path := writeTempTxt(t, "short contract text")

	repo := &mockDocumentRepo{}
	emb := &mockEmbedder{dims: 8, block: make(chan struct{})}
	idx := vectorindex.New(8)
	svc := newTestService(repo, emb, idx)

	doc := testDocument(path)
	if err := svc.Enqueue(doc); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !svc.IsRunning(doc.ID) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if !svc.Cancel(doc.ID) {
		t.Fatal("expected Cancel to find a running job")
	}
	svc.Wait()

	if svc.IsRunning(doc.ID) {
		t.Error("expected job to be released after cancel")
	}
	progress, ok := svc.Progress(context.Background(), doc.ID)
	if !ok || progress.Status != model.StatusFailed {
		t.Errorf("expected failed progress after cancel, got %+v", progress)
	}

	if svc.Cancel("unknown") {
		t.Error("expected Cancel to return false for unknown document")
	}
}
