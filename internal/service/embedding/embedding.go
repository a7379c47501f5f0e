package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

// HashEmbedder 确定性向量器
// 对每个词元生成由哈希播种的伪随机向量，逐词元累加后归一化。
// 相同文本总是得到相同向量，词元重叠越多的文本余弦相似度越高，
// 无需外部模型服务即可支撑完整的检索链路。
type HashEmbedder struct {
	dims int
}

var _ embedding.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder 创建确定性向量器
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions 向量维度
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// EmbedStrings 批量生成向量
func (e *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

// embed 生成单条文本的单位向量
func (e *HashEmbedder) embed(text string) []float64 {
	vec := make([]float64, e.dims)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		vec[0] = 1
		return vec
	}

	for _, token := range tokens {
		h := fnv.New64a()
		h.Write([]byte(token))
		state := h.Sum64()
		for d := 0; d < e.dims; d++ {
			vec[d] += unitValue(&state)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for d := range vec {
		vec[d] /= norm
	}
	return vec
}

// unitValue 由状态推进产生 [-1, 1] 区间的确定性数值（splitmix64）
func unitValue(state *uint64) float64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float64(int64(z)) / float64(math.MaxInt64)
}

// tokenize 按非字母数字切词并统一小写
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
