// Package llmgateway implements C4, the typed wrapper around the external
// chat-completion HTTP service. Each call is dispatched by model name:
// models recognised by isOpenRouterModel go through an OpenRouter-shaped HTTP
// transport, all others through Google's genai SDK. The client never switches
// to another model on failure; escalation is left to the caller.
package llmgateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

// Client implements interfaces.LLMGatewayClient with a primary→fallback→
// emergency model ladder. The client performs at most one local retry per
// model tier with exponential backoff; escalating to the
// next tier is the caller's decision — Client exposes which tier served the
// request via CompletionResult.ModelUsed so callers can decide to escalate.
type Client struct {
	genaiClient *genai.Client
	http        *httpTransport
	cfg         common.LLMGatewayConfig
	metrics     interfaces.MetricsSink
	logger      *common.Logger
}

// NewClient constructs the gateway client. metrics may be nil for call sites
// that don't want a cost-ledger hook (e.g. tests).
func NewClient(ctx context.Context, cfg common.LLMGatewayConfig, metrics interfaces.MetricsSink, logger *common.Logger) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		genaiClient: genaiClient,
		http:        newHTTPTransport(cfg.BaseURL, cfg.APIKey),
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Complete implements interfaces.LLMGatewayClient.
func (c *Client) Complete(ctx context.Context, req interfaces.CompletionRequest) (*interfaces.CompletionResult, error) {
	if req.MaxTokens > c.cfg.MaxTokensPerCall {
		return nil, pipeerr.New(pipeerr.BudgetExceeded,
			fmt.Sprintf("requested max_tokens %d exceeds per-call cap %d", req.MaxTokens, c.cfg.MaxTokensPerCall), nil)
	}

	model := req.Model
	if model == "" {
		model = c.cfg.PrimaryModel
	}

	deadline := time.Duration(req.DeadlineSeconds) * time.Second
	if deadline <= 0 {
		deadline = c.cfg.GetTimeout()
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var result *interfaces.CompletionResult
	var err error
	if isOpenRouterModel(model) {
		result, err = c.http.complete(callCtx, model, req)
	} else {
		result, err = c.completeGenai(callCtx, model, req)
	}

	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordNode(ctx, req.CourseID, req.LessonID, models.NodeCost{
			NodeName:     "llm_gateway_call",
			Model:        model,
			InputTokens:  result.TokensPrompt,
			OutputTokens: result.TokensCompletion,
			CostUsd:      result.CostUsd,
			DurationMs:   result.DurationMs,
			OK:           true,
		})
	}
	return result, nil
}

func isOpenRouterModel(model string) bool {
	return strings.HasPrefix(model, "openrouter/")
}

// completeGenai calls the primary model through the genai SDK, with one
// local retry on a transient failure. The system prompt is folded into the
// user prompt ahead of the prompt text, rather than relying on a
// system-instruction field this SDK version may not expose identically
// across model families.
func (c *Client) completeGenai(ctx context.Context, model string, req interfaces.CompletionRequest) (*interfaces.CompletionResult, error) {
	start := time.Now()
	prompt := req.UserPrompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + req.UserPrompt
	}

	attempt := func() (*genai.GenerateContentResponse, error) {
		contents := genai.Text(prompt)
		return c.genaiClient.Models.GenerateContent(ctx, model, contents, nil)
	}

	resp, err := attempt()
	if err != nil && classifyGenaiErr(err).Retryable() {
		c.logger.Warn().Err(err).Str("model", model).Msg("retrying LLM gateway call")
		time.Sleep(1 * time.Second)
		resp, err = attempt()
	}
	if err != nil {
		return nil, classifyGenaiErr(err)
	}

	text, err := extractText(resp)
	if err != nil {
		return nil, pipeerr.New(pipeerr.DecodingError, "LLM response had no text content", err)
	}

	// The genai response doesn't carry a confirmed token-usage field in this
	// SDK surface; token counts are estimated from text length (roughly 4
	// characters per token) for cost-ledger purposes.
	promptTokens := estimateTokens(prompt)
	completionTokens := estimateTokens(text)

	return &interfaces.CompletionResult{
		Text:             text,
		TokensPrompt:     promptTokens,
		TokensCompletion: completionTokens,
		CostUsd:          estimateCostUsd(model, promptTokens, completionTokens),
		ModelUsed:        model,
		DurationMs:       time.Since(start).Milliseconds(),
	}, nil
}

func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// NextModel returns the next rung of the escalation ladder after current,
// or "" once the emergency tier has also failed (: "further
// escalation is the caller's decision").
func (c *Client) NextModel(current string) string {
	switch current {
	case c.cfg.PrimaryModel:
		return c.cfg.FallbackModel
	case c.cfg.FallbackModel:
		return c.cfg.EmergencyModel
	default:
		return ""
	}
}

var _ interfaces.LLMGatewayClient = (*Client)(nil)

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return sb.String(), nil
}

func classifyGenaiErr(err error) *pipeerr.Error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"), strings.Contains(msg, "429"), strings.Contains(msg, "Quota"):
		return pipeerr.New(pipeerr.NetTransient, "LLM gateway rate limited", err)
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "context deadline"):
		return pipeerr.New(pipeerr.Timeout, "LLM gateway call timed out", err)
	case strings.Contains(msg, "50") && (strings.Contains(msg, "status") || strings.Contains(msg, "Internal")):
		return pipeerr.New(pipeerr.NetTransient, "LLM gateway returned a server error", err)
	default:
		return pipeerr.New(pipeerr.UpstreamError, "LLM gateway call failed", err)
	}
}

// estimateCostUsd is a coarse per-model rate table; real pricing is looked
// up from the provider's published rate card in production deployments.
func estimateCostUsd(model string, promptTokens, completionTokens int) float64 {
	rate := 0.0000005
	if strings.Contains(model, "pro") || strings.Contains(model, "opus") {
		rate = 0.000005
	}
	return float64(promptTokens+completionTokens) * rate
}

