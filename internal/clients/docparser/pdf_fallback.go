// Package docparser provides S2's external-parser contract
// (interfaces.DocParserClient) plus a local PDF-backed fallback used when no
// external document-parsing service (Docling or equivalent) is configured.
// The real collaborator remains an external system; this package covers
// the self-contained fallback path when none is configured.
package docparser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
)

// maxChars bounds extracted text to keep downstream LLM calls within budget.
const maxChars = 50000

// PDFFallbackClient implements interfaces.DocParserClient by extracting raw
// text locally. It does not produce true markdown structure — headings and
// tables are not reconstructed — so it is a fallback, not a replacement, for
// a real document-parsing service.
type PDFFallbackClient struct {
	logger *common.Logger
}

func NewPDFFallbackClient(logger *common.Logger) *PDFFallbackClient {
	return &PDFFallbackClient{logger: logger}
}

func (c *PDFFallbackClient) Parse(_ context.Context, storagePath, mimeType string) (*interfaces.ParsedDocument, error) {
	if mimeType != "application/pdf" {
		return nil, fmt.Errorf("pdf fallback parser does not support mime type %q", mimeType)
	}

	text, pages, err := extractPDFText(storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract PDF text from %s: %w", storagePath, err)
	}

	return &interfaces.ParsedDocument{
		MarkdownContent: text,
		PageCount:       pages,
	}, nil
}

// extractPDFText recovers from panics (e.g. zlib: invalid header) caused by
// corrupt PDFs.
func extractPDFText(path string) (text string, pageCount int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pageCount = "", 0
			err = fmt.Errorf("panic during PDF extraction: %v", r)
		}
	}()

	f, r, openErr := pdf.Open(path)
	if openErr != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", openErr)
	}
	defer f.Close()

	var sb strings.Builder
	total := r.NumPage()

	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
		if sb.Len() > maxChars {
			break
		}
	}

	result := sb.String()
	if len(result) > maxChars {
		result = result[:maxChars]
	}
	return result, total, nil
}

var _ interfaces.DocParserClient = (*PDFFallbackClient)(nil)
