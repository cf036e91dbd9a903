package interfaces

import (
	"context"

	"github.com/bobmcallan/coursegen/internal/models"
)

// CompletionRequest carries everything the LLM Gateway Client (C4) needs for
// one chat-completion call.
type CompletionRequest struct {
	Model           string
	SystemPrompt    string
	UserPrompt      string
	Temperature     float64
	MaxTokens       int
	JSONSchemaHint  string // non-empty requests a structured response
	DeadlineSeconds int

	// CourseID/LessonID attribute the call's cost to C10;
	// both may be empty for calls made outside a lesson's context.
	CourseID string
	LessonID string
}

// CompletionResult is C4's typed response.
type CompletionResult struct {
	Text              string
	TokensPrompt      int
	TokensCompletion  int
	CostUsd           float64
	ModelUsed         string
	DurationMs        int64
}

// LLMGatewayClient is the typed wrapper around the external chat-completion
// HTTP service. Implementations perform at most one retry per
// model with exponential backoff; further escalation across the
// primary→fallback→emergency ladder is the caller's decision.
type LLMGatewayClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// VectorQuery is a dense (plus optional sparse overlay) query against the
// external vector store.
type VectorQuery struct {
	CourseID    string
	SectionID   string
	QueryText   string
	TopK        int
}

// VectorStoreClient is C5's external collaborator contract.
type VectorStoreClient interface {
	Query(ctx context.Context, q VectorQuery) ([]models.RAGChunk, error)
	// UpsertChunks is used by S2 to write late-chunked document content.
	UpsertChunks(ctx context.Context, fileID string, chunks []models.RAGChunk) error
}

// ParsedDocument is S2's external-parser output before chunking.
type ParsedDocument struct {
	MarkdownContent string
	PageCount       int
}

// DocParserClient is S2's external collaborator contract (Docling or
// equivalent, out of scope").
type DocParserClient interface {
	Parse(ctx context.Context, storagePath, mimeType string) (*ParsedDocument, error)
}

// LintIssue is one finding from a markdown structure pass.
type LintIssue struct {
	Severity string // critical|major|minor
	Rule     string
	Location string
	Message  string
}

// MarkdownLintClient is the external structure-linter collaborator Self-Review
// delegates to for heading levels, code-block language tags, alt text, and
// blank-line discipline.
type MarkdownLintClient interface {
	Lint(ctx context.Context, markdown string) ([]LintIssue, error)
}
