package chunker

import (
	"errors"

	"github.com/ashwinyue/contract-ai/internal/service/parser"
)

// ErrEmptyInput 输入页序列为空
var ErrEmptyInput = errors.New("no pages to split")

// Passage 分块结果
// Index 为文档内从 0 开始的全局序号，Start/End 为页内字符偏移（左闭右开）
type Passage struct {
	Content    string `json:"content"`
	PageNumber int    `json:"page_number"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// Chunker 句子边界优先的重叠分块器
// 分块永不跨页，相邻分块按比例重叠，页内所有字符都被至少一个分块覆盖；
// 目标窗口内存在句子边界时在边界处切分，避免切断句子
type Chunker struct {
	target  int
	overlap float64
}

// New 创建分块器
// targetLen 为目标分块长度（字符数），overlap 为相邻分块的重叠比例
func New(targetLen int, overlap float64) *Chunker {
	if targetLen <= 0 {
		targetLen = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > 0.5 {
		overlap = 0.5
	}
	return &Chunker{target: targetLen, overlap: overlap}
}

// Split 将页序列切分为带页码和序号的分块
func (c *Chunker) Split(pages []parser.Page) ([]Passage, error) {
	if len(pages) == 0 {
		return nil, ErrEmptyInput
	}

	overlapLen := int(float64(c.target) * c.overlap)
	if overlapLen >= c.target {
		overlapLen = c.target - 1
	}

	var passages []Passage
	index := 0
	for _, page := range pages {
		runes := []rune(page.Text)
		if len(runes) == 0 {
			continue
		}

		start := 0
		for {
			end := start + c.target
			if end >= len(runes) {
				end = len(runes)
			} else if cut := c.sentenceCut(runes, start, end); cut > 0 {
				end = cut
			}
			passages = append(passages, Passage{
				Content:    string(runes[start:end]),
				PageNumber: page.Number,
				Index:      index,
				Start:      start,
				End:        end,
			})
			index++

			if end == len(runes) {
				break
			}
			// 下一分块回退 overlapLen 个字符，保证上下文连续
			start = end - overlapLen
		}
	}

	if len(passages) == 0 {
		return nil, ErrEmptyInput
	}
	return passages, nil
}

// sentenceCut 从目标切点向前回溯句子边界，返回边界后的切分位置
// 句末标点后跟空白字符才视为边界；回溯不超过目标长度的一半，
// 且保证切出的分块长于重叠长度以维持前进，找不到边界时返回 0 做硬切
func (c *Chunker) sentenceCut(runes []rune, start, end int) int {
	minLen := c.target / 2
	overlapLen := int(float64(c.target) * c.overlap)
	if minLen <= overlapLen {
		minLen = overlapLen + 1
	}

	for i := end - 1; i > start+minLen; i-- {
		switch runes[i] {
		case '。', '！', '？':
			return i + 1
		case '.', '!', '?':
			// 半角标点要求后跟空白或收尾引号，避免把小数点、缩写当作句末
			if i+1 >= len(runes) || isBoundaryFollower(runes[i+1]) {
				return i + 1
			}
		}
	}
	return 0
}

// isBoundaryFollower 句末标点后允许出现的字符
func isBoundaryFollower(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '"', '”', '）', ')':
		return true
	}
	return false
}
