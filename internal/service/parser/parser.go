package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/parser/docx"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
)

// 解析错误
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrCorruptInput      = errors.New("corrupt document")
	ErrEmptyDocument     = errors.New("document has no extractable text")
)

// Page 带页码的文本页，页码从 1 开始
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Service 文档解析服务
// 按扩展名选择解析器，统一产出带页码的文本页序列
type Service struct{}

// New 创建解析服务
func New() *Service {
	return &Service{}
}

// Parse 解析文档内容为页序列
// 不支持的格式返回 ErrUnsupportedFormat，无法提取文本时返回 ErrEmptyDocument
func (s *Service) Parse(ctx context.Context, reader io.Reader, ext string) ([]Page, error) {
	ext = strings.ToLower(ext)

	switch ext {
	case ".pdf":
		return s.parsePDF(ctx, reader)
	case ".docx":
		return s.parseDocx(ctx, reader)
	case ".txt":
		return s.parseText(reader)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// parsePDF 按页解析 PDF，每个解析产物对应一页
func (s *Service) parsePDF(ctx context.Context, reader io.Reader) ([]Page, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf parser: %w", err)
	}

	docs, err := p.Parse(ctx, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	pages := make([]Page, 0, len(docs))
	for i, d := range docs {
		text := strings.TrimSpace(d.Content)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}

// parseDocx 解析 DOCX，docx 没有固定分页概念，整体作为第 1 页
func (s *Service) parseDocx(ctx context.Context, reader io.Reader) ([]Page, error) {
	p, err := docx.NewDocxParser(ctx, &docx.Config{
		ToSections:      false,
		IncludeComments: false,
		IncludeHeaders:  true,
		IncludeFooters:  false,
		IncludeTables:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create docx parser: %w", err)
	}

	docs, err := p.Parse(ctx, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d.Content)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, ErrEmptyDocument
	}
	return []Page{{Number: 1, Text: text}}, nil
}

// parseText 解析纯文本，以换页符（\f）作为分页标记
func (s *Service) parseText(reader io.Reader) ([]Page, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	parts := strings.Split(string(content), "\f")
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}
