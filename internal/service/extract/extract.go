// Package extract 从上传文件中提取纯文本
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ashwinyue/docqa/internal/model"
	"github.com/cloudwego/eino-ext/components/document/parser/docx"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFileType 不支持的文件类型
var ErrUnsupportedFileType = errors.New("unsupported file type")

// Result 提取结果，PageCount 仅 PDF 有值
type Result struct {
	Text      string
	PageCount *int
}

// Extractor 文本提取器
type Extractor interface {
	Extract(ctx context.Context, fileType model.FileType, r io.Reader) (*Result, error)
}

// Service 按文件类型分派到具体解析器
type Service struct{}

// New 创建提取服务
func New() *Service {
	return &Service{}
}

// Extract 提取文本
func (s *Service) Extract(ctx context.Context, fileType model.FileType, r io.Reader) (*Result, error) {
	switch fileType {
	case model.FileTypePDF:
		return extractPDF(ctx, r)
	case model.FileTypeDOCX:
		return extractDOCX(ctx, r)
	case model.FileTypeXLSX, model.FileTypeXLS:
		return extractSpreadsheet(r)
	case model.FileTypeTXT:
		return extractText(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, fileType)
	}
}

func extractPDF(ctx context.Context, r io.Reader) (*Result, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf parser: %w", err)
	}
	pages, err := parseAll(ctx, p, r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	var b strings.Builder
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- Page %d ---\n%s", i+1, page)
	}
	count := len(pages)
	return &Result{Text: b.String(), PageCount: &count}, nil
}

func extractDOCX(ctx context.Context, r io.Reader) (*Result, error) {
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
	parts, err := parseAll(ctx, p, r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse docx: %w", err)
	}
	return &Result{Text: strings.Join(parts, "\n")}, nil
}

func extractSpreadsheet(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		fmt.Fprintf(&b, "\n=== Sheet: %s ===\n", sheet)
		for _, row := range rows {
			if len(row) == 0 {
				continue
			}
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
	}
	return &Result{Text: b.String()}, nil
}

func extractText(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, errors.New("text file is not valid UTF-8")
	}
	return &Result{Text: string(data)}, nil
}

func parseAll(ctx context.Context, p einoparser.Parser, r io.Reader) ([]string, error) {
	docs, err := p.Parse(ctx, r)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Content)
	}
	return out, nil
}
