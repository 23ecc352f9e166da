// Package dialogue talks to an OpenAI-compatible chat-completions endpoint.
package dialogue

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
	"unicode/utf8"

	"github.com/ashureev/bateson-coach/internal/domain"
)

const (
	defaultBaseURL    = "https://api.openai.com"
	defaultModel      = "gpt-4o-mini"
	defaultTimeout    = 30 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
	maxErrorBody      = 512
)

// Replier produces the assistant reply for a transcript.
type Replier interface {
	Reply(ctx context.Context, transcript []domain.Message) (domain.Message, error)
}

// Config holds client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxRetries is clamped to 0 or 1.
	MaxRetries int
	RetryDelay time.Duration
}

// Client is the chat-completions implementation of Replier.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
	logger     *slog.Logger
}

// Ensure Client implements Replier.
var _ Replier = (*Client)(nil)

// NewClient creates a chat-completions client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("dialogue: missing API key")
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxRetries > 1 {
		maxRetries = 1
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message      domain.Message `json:"message"`
		FinishReason string         `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Reply sends the transcript and returns the assistant message. Each attempt
// is bounded by the client timeout; a retryable failure is retried at most once.
func (c *Client) Reply(ctx context.Context, transcript []domain.Message) (domain.Message, error) {
	if len(transcript) == 0 {
		return domain.Message{}, &Error{Kind: KindMalformed, Err: errors.New("empty transcript")}
	}
	payload, err := json.Marshal(chatRequest{Model: c.model, Messages: transcript})
	if err != nil {
		return domain.Message{}, &Error{Kind: KindMalformed, Err: fmt.Errorf("marshal request: %w", err)}
	}

	var lastErr *Error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Dialogue request retrying",
				"attempt", attempt+1,
				"kind", lastErr.Kind,
				"error", lastErr.Err,
			)
			select {
			case <-ctx.Done():
				return domain.Message{}, classifyTransport(ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}

		msg, err := c.once(ctx, payload)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if !err.Retryable() || ctx.Err() != nil {
			break
		}
	}
	return domain.Message{}, lastErr
}

func (c *Client) once(ctx context.Context, payload []byte) (domain.Message, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return domain.Message{}, &Error{Kind: KindTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Message{}, classifyTransport(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close dialogue response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Message{}, classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Message{}, &Error{
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        errors.New(errorMessage(raw)),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.Message{}, &Error{Kind: KindMalformed, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Choices) == 0 {
		return domain.Message{}, &Error{Kind: KindMalformed, Err: errors.New("response missing choices")}
	}
	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, &Error{Kind: KindMalformed, Err: errors.New("response content empty")}
	}
	return domain.Message{Role: domain.RoleAssistant, Content: content}, nil
}

func errorMessage(raw []byte) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		// Cut on a rune boundary so multi-byte text stays valid.
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if s == "" {
		s = "empty error body"
	}
	return s
}
