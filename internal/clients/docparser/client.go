package docparser

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
)

// Client implements interfaces.DocParserClient for every mime type S1
// accepts: markdown and plain text are read verbatim,
// HTML is stripped to text, and PDF delegates to PDFFallbackClient. The
// real collaborator (Docling or equivalent) remains an external system per
// — this covers the self-contained fallback path.
type Client struct {
	pdf    *PDFFallbackClient
	logger *common.Logger
}

func NewClient(logger *common.Logger) *Client {
	return &Client{pdf: NewPDFFallbackClient(logger), logger: logger}
}

func (c *Client) Parse(ctx context.Context, storagePath, mimeType string) (*interfaces.ParsedDocument, error) {
	switch mimeType {
	case "application/pdf":
		return c.pdf.Parse(ctx, storagePath, mimeType)
	case "text/markdown", "text/plain":
		data, err := os.ReadFile(storagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", storagePath, err)
		}
		content := string(data)
		if len(content) > maxChars {
			content = content[:maxChars]
		}
		return &interfaces.ParsedDocument{MarkdownContent: content, PageCount: 1}, nil
	case "text/html":
		data, err := os.ReadFile(storagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", storagePath, err)
		}
		content := stripHTML(string(data))
		if len(content) > maxChars {
			content = content[:maxChars]
		}
		return &interfaces.ParsedDocument{MarkdownContent: content, PageCount: 1}, nil
	default:
		return nil, fmt.Errorf("unsupported mime type %q", mimeType)
	}
}

var (
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\n{3,}`)
)

// stripHTML is a crude tag-stripping fallback, not a full HTML-to-markdown
// conversion; good enough to feed the summarization stage plain text.
func stripHTML(html string) string {
	text := tagRe.ReplaceAllString(html, "\n")
	text = whitespaceRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var _ interfaces.DocParserClient = (*Client)(nil)
