package processor

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// 进度在 Redis 中的过期时间
	progressTTL = 24 * time.Hour
	// Redis key 前缀
	progressKeyPrefix = "job:"
)

// Progress 文档处理进度
type Progress struct {
	DocumentID string    `json:"document_id"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Tracker 处理进度跟踪器
// 内存为权威数据源，Redis 仅作镜像供外部观测，写入失败不影响主流程
type Tracker struct {
	mu     sync.RWMutex
	memory map[string]*Progress
	redis  *redis.Client
}

// NewTracker 创建进度跟踪器，redisClient 可为 nil
func NewTracker(redisClient *redis.Client) *Tracker {
	return &Tracker{
		memory: make(map[string]*Progress),
		redis:  redisClient,
	}
}

// Set 更新进度
func (t *Tracker) Set(ctx context.Context, documentID, status, stage, errMsg string) {
	p := &Progress{
		DocumentID: documentID,
		Status:     status,
		Stage:      stage,
		Error:      errMsg,
		UpdatedAt:  time.Now(),
	}

	t.mu.Lock()
	t.memory[documentID] = p
	t.mu.Unlock()

	if t.redis != nil {
		if err := t.saveToRedis(ctx, p); err != nil {
			log.Printf("Warning: failed to save progress to redis: %v", err)
		}
	}
}

// Get 查询进度
func (t *Tracker) Get(ctx context.Context, documentID string) (*Progress, bool) {
	t.mu.RLock()
	p, ok := t.memory[documentID]
	t.mu.RUnlock()
	if ok {
		return p, true
	}

	// 从 Redis 加载（进程重启后仍可观测历史进度）
	if t.redis != nil {
		if p := t.loadFromRedis(ctx, documentID); p != nil {
			t.mu.Lock()
			t.memory[documentID] = p
			t.mu.Unlock()
			return p, true
		}
	}
	return nil, false
}

// Remove 清除进度
func (t *Tracker) Remove(ctx context.Context, documentID string) {
	t.mu.Lock()
	delete(t.memory, documentID)
	t.mu.Unlock()

	if t.redis != nil {
		if err := t.redis.Del(ctx, progressKeyPrefix+documentID).Err(); err != nil {
			log.Printf("Warning: failed to delete progress from redis: %v", err)
		}
	}
}

// saveToRedis 镜像写入 Redis
func (t *Tracker) saveToRedis(ctx context.Context, p *Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return t.redis.Set(ctx, progressKeyPrefix+p.DocumentID, data, progressTTL).Err()
}

// loadFromRedis 从 Redis 加载进度
func (t *Tracker) loadFromRedis(ctx context.Context, documentID string) *Progress {
	data, err := t.redis.Get(ctx, progressKeyPrefix+documentID).Result()
	if err != nil {
		return nil
	}
	var p Progress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil
	}
	return &p
}
