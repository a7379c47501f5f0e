package parser

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// ========== 纯文本解析测试 ==========

func TestParseTextSinglePage(t *testing.T) {
	svc := New()

	pages, err := svc.Parse(context.Background(), strings.NewReader("hello contract world"), ".txt")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].Number != 1 {
		t.Errorf("expected page number 1, got %d", pages[0].Number)
	}
	if pages[0].Text != "hello contract world" {
		t.Errorf("unexpected page text: %q", pages[0].Text)
	}
}

func TestParseTextMultiPage(t *testing.T) {
	svc := New()

	input := "first page content\fsecond page content\fthird page content"
	pages, err := svc.Parse(context.Background(), strings.NewReader(input), ".txt")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	for i, p := range pages {
		if p.Number != i+1 {
			t.Errorf("page %d: expected number %d, got %d", i, i+1, p.Number)
		}
	}
	if pages[2].Text != "third page content" {
		t.Errorf("unexpected last page text: %q", pages[2].Text)
	}
}

func TestParseTextSkipsEmptyPages(t *testing.T) {
	svc := New()

	// 第二页为空白，应跳过但保留物理页码
	input := "page one\f   \fpage three"
	pages, err := svc.Parse(context.Background(), strings.NewReader(input), ".txt")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Number != 1 || pages[1].Number != 3 {
		t.Errorf("expected page numbers [1 3], got [%d %d]", pages[0].Number, pages[1].Number)
	}
}

// ========== 错误处理测试 ==========

func TestParseUnsupportedFormat(t *testing.T) {
	svc := New()

	tests := []struct {
		name string
		ext  string
	}{
		{"exe 文件", ".exe"},
		{"html 文件", ".html"},
		{"无扩展名", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Parse(context.Background(), strings.NewReader("data"), tt.ext)
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("expected ErrUnsupportedFormat, got %v", err)
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	svc := New()

	tests := []struct {
		name  string
		input string
	}{
		{"空内容", ""},
		{"仅空白", "   \n\t  "},
		{"仅换页符", "\f\f\f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Parse(context.Background(), strings.NewReader(tt.input), ".txt")
			if !errors.Is(err, ErrEmptyDocument) {
				t.Errorf("expected ErrEmptyDocument, got %v", err)
			}
		})
	}
}

func TestParseExtensionCaseInsensitive(t *testing.T) {
	svc := New()

	pages, err := svc.Parse(context.Background(), strings.NewReader("content"), ".TXT")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
}
