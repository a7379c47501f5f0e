package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/ashwinyue/contract-ai/internal/service/parser"
)

// makeText 生成指定长度的可辨识文本
func makeText(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[i%len(alphabet)])
	}
	return sb.String()
}

// ========== 基础分块测试 ==========

func TestSplitTwoPageDocument(t *testing.T) {
	// 两页文档：第一页 800 字符，第二页 400 字符
	// 目标长度 500、重叠 10% 时应产出 3 个分块
	c := New(500, 0.1)

	pages := []parser.Page{
		{Number: 1, Text: makeText(800)},
		{Number: 2, Text: makeText(400)},
	}

	passages, err := c.Split(pages)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) != 3 {
		t.Fatalf("expected 3 passages, got %d", len(passages))
	}

	wantPages := []int{1, 1, 2}
	wantLens := []int{500, 350, 400}
	for i, p := range passages {
		if p.Index != i {
			t.Errorf("passage %d: expected index %d, got %d", i, i, p.Index)
		}
		if p.PageNumber != wantPages[i] {
			t.Errorf("passage %d: expected page %d, got %d", i, wantPages[i], p.PageNumber)
		}
		if len(p.Content) != wantLens[i] {
			t.Errorf("passage %d: expected length %d, got %d", i, wantLens[i], len(p.Content))
		}
	}
}

func TestSplitOverlapContent(t *testing.T) {
	c := New(500, 0.1)

	pages := []parser.Page{{Number: 1, Text: makeText(800)}}
	passages, err := c.Split(pages)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}

	// 第二块的开头应是第一块的末尾 50 个字符
	tail := passages[0].Content[len(passages[0].Content)-50:]
	head := passages[1].Content[:50]
	if tail != head {
		t.Errorf("expected overlap of 50 chars, tail=%q head=%q", tail, head)
	}
}

// ========== 句子边界测试 ==========

func TestSplitCutsAtSentenceBoundary(t *testing.T) {
	c := New(500, 0.1)

	// 520 字符的页面，句子在偏移 460 处结束
	// 目标窗口内存在句子边界时不得在词中间硬切
	text := makeText(459) + ". " + makeText(59)
	passages, err := c.Split([]parser.Page{{Number: 1, Text: text}})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}

	if passages[0].End != 460 {
		t.Errorf("expected first passage to end at sentence boundary 460, got %d", passages[0].End)
	}
	if !strings.HasSuffix(passages[0].Content, ".") {
		t.Errorf("expected first passage to end with period, got %q", passages[0].Content[len(passages[0].Content)-10:])
	}
	// 重叠与覆盖在边界切分后仍然成立
	if passages[1].Start != 410 {
		t.Errorf("expected second passage to start at 410, got %d", passages[1].Start)
	}
	if passages[1].End != 520 {
		t.Errorf("expected second passage to end at 520, got %d", passages[1].End)
	}
}

func TestSplitSentenceBoundaryEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantEnd  int // 第一个分块的结束偏移
	}{
		// 小数点后跟数字，不是句子边界，应硬切
		{"小数点不是边界", makeText(300) + "3.5" + makeText(300), 500},
		// 边界太靠前（回溯不超过目标长度一半），应硬切
		{"过近的边界被忽略", makeText(99) + ". " + makeText(500), 500},
		// 全角句号视为边界，无需后跟空白
		{"全角句号", strings.Repeat("合", 450) + "。" + strings.Repeat("同", 100), 451},
		// 问号加空格是边界
		{"问号边界", makeText(479) + "? " + makeText(100), 480},
	}

	c := New(500, 0.1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passages, err := c.Split([]parser.Page{{Number: 1, Text: tt.text}})
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if passages[0].End != tt.wantEnd {
				t.Errorf("expected first passage end %d, got %d", tt.wantEnd, passages[0].End)
			}
			// 序号与覆盖保证不因边界切分而破坏
			runes := []rune(tt.text)
			covered := make([]bool, len(runes))
			for i, p := range passages {
				if p.Index != i {
					t.Errorf("expected index %d, got %d", i, p.Index)
				}
				for j := p.Start; j < p.End; j++ {
					covered[j] = true
				}
			}
			for i, ok := range covered {
				if !ok {
					t.Fatalf("offset %d not covered", i)
				}
			}
		})
	}
}

func TestSplitShortPage(t *testing.T) {
	c := New(500, 0.1)

	pages := []parser.Page{{Number: 1, Text: "short contract text"}}
	passages, err := c.Split(pages)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(passages))
	}
	if passages[0].Content != "short contract text" {
		t.Errorf("unexpected content: %q", passages[0].Content)
	}
}

// ========== 覆盖性测试 ==========

func TestSplitFullCoverage(t *testing.T) {
	tests := []struct {
		name    string
		target  int
		overlap float64
		lens    []int
	}{
		{"标准参数", 500, 0.1, []int{800, 400, 1200}},
		{"无重叠", 100, 0, []int{350, 99, 100}},
		{"高重叠", 200, 0.5, []int{777}},
		{"页长为 1", 500, 0.1, []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.target, tt.overlap)
			var pages []parser.Page
			for i, n := range tt.lens {
				pages = append(pages, parser.Page{Number: i + 1, Text: makeText(n)})
			}

			passages, err := c.Split(pages)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}

			// 每页的每个字符偏移都必须被某个分块覆盖
			for pi, page := range pages {
				covered := make([]bool, len(page.Text))
				for _, p := range passages {
					if p.PageNumber != page.Number {
						continue
					}
					for i := p.Start; i < p.End; i++ {
						covered[i] = true
					}
				}
				for i, ok := range covered {
					if !ok {
						t.Fatalf("page %d offset %d not covered", pi+1, i)
					}
				}
			}

			// 序号必须连续且从 0 开始
			for i, p := range passages {
				if p.Index != i {
					t.Errorf("expected index %d, got %d", i, p.Index)
				}
			}
		})
	}
}

func TestSplitNeverSpansPages(t *testing.T) {
	c := New(500, 0.1)

	// 两页拼接后刚好超过目标长度，但分块不得跨页
	pages := []parser.Page{
		{Number: 1, Text: makeText(300)},
		{Number: 2, Text: makeText(300)},
	}
	passages, err := c.Split(pages)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}
	if passages[0].PageNumber != 1 || passages[1].PageNumber != 2 {
		t.Errorf("expected pages [1 2], got [%d %d]", passages[0].PageNumber, passages[1].PageNumber)
	}
}

// ========== 边界与错误测试 ==========

func TestSplitEmptyInput(t *testing.T) {
	c := New(500, 0.1)

	if _, err := c.Split(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput for nil pages, got %v", err)
	}
	if _, err := c.Split([]parser.Page{{Number: 1, Text: ""}}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput for empty text, got %v", err)
	}
}

func TestNewClampsParameters(t *testing.T) {
	// 非法参数回落到安全值，不应 panic 或死循环
	c := New(-1, 2.0)
	passages, err := c.Split([]parser.Page{{Number: 1, Text: makeText(1000)}})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) == 0 {
		t.Fatal("expected at least one passage")
	}
}

func TestSplitUnicodeText(t *testing.T) {
	c := New(10, 0)

	text := strings.Repeat("合同条款甲方乙方责任", 3) // 30 个汉字
	passages, err := c.Split([]parser.Page{{Number: 1, Text: text}})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) != 3 {
		t.Fatalf("expected 3 passages, got %d", len(passages))
	}
	for i, p := range passages {
		if got := len([]rune(p.Content)); got != 10 {
			t.Errorf("passage %d: expected 10 runes, got %d", i, got)
		}
	}
}
