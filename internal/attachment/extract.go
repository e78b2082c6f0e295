package attachment

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/parser/docx"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document/parser"
)

const extractFailedText = "[Error extracting text from document]"

func unsupportedText(ext string) string {
	return fmt.Sprintf("[Text extraction not supported for this file type: %s]", ext)
}

// TextExtractor turns document bytes into plain text. It never fails: errors
// and unknown formats come back as placeholder text.
type TextExtractor interface {
	Extract(ctx context.Context, fileName string, data []byte) string
}

type Extractor struct {
	parsers map[string]parser.Parser
}

func NewExtractor(ctx context.Context) (*Extractor, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("pdf parser: %w", err)
	}
	docxParser, err := docx.NewDocxParser(ctx, &docx.Config{
		ToSections:      false,
		IncludeComments: false,
		IncludeHeaders:  true,
		IncludeFooters:  false,
		IncludeTables:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("docx parser: %w", err)
	}
	return &Extractor{parsers: map[string]parser.Parser{
		".pdf":  pdfParser,
		".docx": docxParser,
	}}, nil
}

func (e *Extractor) Extract(ctx context.Context, fileName string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".txt", ".md", ".csv":
		return string(data)
	}

	p, ok := e.parsers[ext]
	if !ok {
		return unsupportedText(ext)
	}
	docs, err := p.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return extractFailedText
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if t := strings.TrimSpace(d.Content); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
