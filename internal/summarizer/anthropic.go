package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultModel   = "claude-3-5-haiku-20241022"
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultTimeout = 60 * time.Second

	APIVersion = "2023-06-01"

	messagesPath = "/v1/messages"
	userRole     = "user"

	maxTokens   int64   = 300
	temperature float64 = 0.3
)

// AnthropicConfig holds the credentials passed in from the config loader.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// Timeout bounds the whole round-trip. Zero means DefaultTimeout.
	Timeout time.Duration
	Log     *slog.Logger
}

// AnthropicSummarizer calls the Anthropic Messages API to produce summaries.
type AnthropicSummarizer struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

type messageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int64          `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
	Messages    []messageParam `json:"messages"`
}

type contentBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

type usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type messageResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicSummarizer builds a new summarizer instance.
func NewAnthropicSummarizer(cfg AnthropicConfig) (*AnthropicSummarizer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &AnthropicSummarizer{
		apiKey:   apiKey,
		model:    model,
		endpoint: baseURL + messagesPath,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}, nil
}

// Model returns the configured model identifier.
func (s *AnthropicSummarizer) Model() string {
	return s.model
}

// Summarize issues exactly one request and returns the trimmed text of
// the first content block.
func (s *AnthropicSummarizer) Summarize(
	ctx context.Context,
	input Input,
) (string, error) {
	body, err := json.Marshal(messageRequest{
		Model:       s.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []messageParam{
			{Role: userRole, Content: BuildPrompt(input.Text)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", APIVersion)
	req.Header.Set("content-type", "application/json")

	start := time.Now()

	resp, err := s.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			s.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"operation", "Summarize",
				"model", s.model)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(err)
	}

	s.log.DebugContext(ctx, "Anthropic API responded",
		"status", resp.StatusCode,
		"model", s.model,
		"sourceURL", input.SourceURL,
		"textLen", len(input.Text),
		"elapsedMs", time.Since(start).Milliseconds())

	switch resp.StatusCode {
	case http.StatusOK:
		return s.parseSuccess(ctx, raw)
	case http.StatusUnauthorized:
		return "", &AuthenticationError{StatusCode: resp.StatusCode}
	case http.StatusForbidden:
		return "", &AuthorizationError{
			StatusCode: resp.StatusCode,
			Model:      s.model,
			Suggested:  SuggestedModel,
		}
	default:
		s.logUpstreamError(ctx, resp.StatusCode, raw)

		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
}

func (s *AnthropicSummarizer) parseSuccess(ctx context.Context, raw []byte) (string, error) {
	var msg messageResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", &ParseError{Body: string(raw), Err: fmt.Errorf("decode message: %w", err)}
	}

	if len(msg.Content) == 0 {
		return "", &ParseError{Body: string(raw), Err: errors.New("content is empty")}
	}

	text := msg.Content[0].Text
	if text == nil {
		return "", &ParseError{
			Body: string(raw),
			Err:  fmt.Errorf("first content block has no text (type = %s)", msg.Content[0].Type),
		}
	}

	s.log.DebugContext(ctx, "Summary is received",
		"messageID", msg.ID,
		"stopReason", msg.StopReason,
		"inputTokens", msg.Usage.InputTokens,
		"outputTokens", msg.Usage.OutputTokens)

	return strings.TrimSpace(*text), nil
}

func (s *AnthropicSummarizer) logUpstreamError(ctx context.Context, status int, raw []byte) {
	var apiErr errorResponse
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Type != "error" {
		return
	}

	s.log.WarnContext(ctx, "Anthropic API returned an error",
		"status", status,
		"errorType", apiErr.Error.Type,
		"errorMessage", apiErr.Error.Message,
		"model", s.model)
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}

	return &TransportError{Err: err}
}
