package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

// httpTransport is the OpenRouter-shaped HTTP fallback/emergency tier of the
// escalation ladder. It serves any model id outside the
// primary SDK's namespace, addressed as "openrouter/<provider>/<model>".
type httpTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPTransport(baseURL, apiKey string) *httpTransport {
	return &httpTransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *chatError   `json:"error,omitempty"`
}

func (t *httpTransport) complete(ctx context.Context, model string, req interfaces.CompletionRequest) (*interfaces.CompletionResult, error) {
	start := time.Now()
	resp, err := t.attempt(ctx, model, req)
	if err != nil {
		classified := classifyHTTPErr(err)
		if classified.Retryable() {
			time.Sleep(1 * time.Second)
			resp, err = t.attempt(ctx, model, req)
			if err != nil {
				return nil, classifyHTTPErr(err)
			}
		} else {
			return nil, classified
		}
	}

	if resp.Error != nil {
		return nil, pipeerr.New(pipeerr.UpstreamError, resp.Error.Message, nil)
	}
	if len(resp.Choices) == 0 {
		return nil, pipeerr.New(pipeerr.DecodingError, "no choices in completion response", nil)
	}

	return &interfaces.CompletionResult{
		Text:             resp.Choices[0].Message.Content,
		TokensPrompt:     resp.Usage.PromptTokens,
		TokensCompletion: resp.Usage.CompletionTokens,
		CostUsd:          estimateCostUsd(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		ModelUsed:        model,
		DurationMs:       time.Since(start).Milliseconds(),
	}, nil
}

func (t *httpTransport) attempt(ctx context.Context, model string, req interfaces.CompletionRequest) (*chatResponse, error) {
	modelName := strings.TrimPrefix(model, "openrouter/")

	messages := []chatMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(chatRequest{
		Model:       modelName,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completion response: %w", err)
	}
	return &parsed, nil
}

func classifyHTTPErr(err error) *pipeerr.Error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "status 429"), strings.Contains(msg, "status 5"):
		return pipeerr.New(pipeerr.NetTransient, "LLM gateway HTTP tier returned a retryable status", err)
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "context deadline"):
		return pipeerr.New(pipeerr.Timeout, "LLM gateway HTTP tier call timed out", err)
	case strings.Contains(msg, "unmarshal"):
		return pipeerr.New(pipeerr.DecodingError, "LLM gateway HTTP tier returned malformed JSON", err)
	default:
		return pipeerr.New(pipeerr.UpstreamError, "LLM gateway HTTP tier call failed", err)
	}
}
