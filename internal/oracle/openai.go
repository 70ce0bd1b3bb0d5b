package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openAIBackend speaks the OpenAI chat-completions wire format. Groq and
// other OpenAI-compatible providers reuse it with a different base URL.
type openAIBackend struct {
	name       string
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ Backend = (*openAIBackend)(nil)

// NewOpenAI builds an OpenAI-compatible backend.
func NewOpenAI(name, baseURL, model, apiKey string, timeout time.Duration) Backend {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openAIBackend{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (b *openAIBackend) Name() string  { return b.name }
func (b *openAIBackend) Model() string { return b.model }

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (b *openAIBackend) Complete(ctx context.Context, req Request) (Response, error) {
	if b.apiKey == "" {
		return Response{}, fmt.Errorf("backend %s has no API key: %w", b.name, ErrUnavailable)
	}

	body, err := json.Marshal(openAIChatRequest{
		Model: b.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: 0,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, classifyTransportError(b.name, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(b.name, resp.StatusCode, resp.Body); err != nil {
		return Response{}, err
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, fmt.Errorf("%s: decode chat response: %w", b.name, ErrInvalidResponse)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("%s: chat response has no choices: %w", b.name, ErrInvalidResponse)
	}

	return Response{
		Text:         parsed.Choices[0].Message.Content,
		Backend:      b.name,
		Model:        b.model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		Latency:      time.Since(start),
	}, nil
}

// classifyTransportError maps connection-level failures onto the oracle
// error taxonomy.
func classifyTransportError(backend string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %v: %w", backend, err, ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %v: %w", backend, err, ErrTimeout)
	}
	return fmt.Errorf("%s: %v: %w", backend, err, ErrUnavailable)
}

// classifyStatus maps HTTP status codes onto the oracle error taxonomy.
func classifyStatus(backend string, status int, body io.Reader) error {
	if status < http.StatusBadRequest {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(body, 1024))
	msg := strings.TrimSpace(string(detail))

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: status %d: %s: %w", backend, status, msg, ErrRateLimited)
	case status == http.StatusRequestTimeout:
		return fmt.Errorf("%s: status %d: %s: %w", backend, status, msg, ErrTimeout)
	default:
		return fmt.Errorf("%s: status %d: %s: %w", backend, status, msg, ErrUnavailable)
	}
}
