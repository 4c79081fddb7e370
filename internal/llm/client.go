// ABOUTME: Streaming client for OpenAI-compatible chat completion endpoints
// ABOUTME: Opens one SSE request per call and yields non-empty text deltas in arrival order

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chatloom/chatloom/internal/store"
)

// placeholderAPIKey is sent when no key is configured; endpoints that don't
// check credentials accept it.
const placeholderAPIKey = "empty"

// maxLineSize bounds a single SSE line; deltas are tiny but a data: line can
// carry a full choice object.
const maxLineSize = 1024 * 1024

// Fragment is one incremental piece of generated text. A Fragment with a
// non-nil Err terminates the sequence; no further fragments follow it.
type Fragment struct {
	Text string
	Err  error
}

// Client streams chat completions from a configured endpoint.
// Each Stream call opens a fresh upstream request; the client holds no
// per-conversation state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a completion client. Pass nil logger for default.
// The underlying HTTP client carries no timeout: the contract is to wait
// for upstream EOF or error.
func NewClient(logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient: &http.Client{},
		logger:     logger.With("component", "llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// completionRequest is the chat-completions request body
type completionRequest struct {
	Messages            []ChatMessage `json:"messages"`
	Model               string        `json:"model"`
	MaxCompletionTokens int           `json:"max_completion_tokens"`
	Temperature         float64       `json:"temperature"`
	TopP                float64       `json:"top_p"`
	Stream              bool          `json:"stream"`
}

// completionChunk is one streamed delta object
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream opens a streaming completion call and returns a channel of text
// fragments. Empty deltas are filtered out, never yielded. The channel is
// closed when the upstream signals completion; mid-stream failures are
// delivered as a final Fragment whose Err wraps ErrUpstream. Connection and
// non-2xx failures are returned synchronously.
func (c *Client) Stream(ctx context.Context, messages []ChatMessage, settings store.Settings) (<-chan Fragment, error) {
	body, err := json.Marshal(completionRequest{
		Messages:            messages,
		Model:               settings.ModelName,
		MaxCompletionTokens: settings.MaxTokens,
		Temperature:         settings.Temperature,
		TopP:                settings.TopP,
		Stream:              true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling completion request: %w", err)
	}

	url := strings.TrimSuffix(settings.Host, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating completion request: %w", err)
	}

	apiKey := settings.APIKey
	if apiKey == "" {
		apiKey = placeholderAPIKey
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Error("completion request rejected",
			"status", resp.StatusCode,
			"model", settings.ModelName,
		)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	fragments := make(chan Fragment)
	go c.readStream(ctx, resp.Body, fragments)
	return fragments, nil
}

// readStream parses the SSE body and forwards non-empty deltas
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, fragments chan<- Fragment) {
	defer close(fragments)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return
		}

		var chunk completionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.emit(ctx, fragments, Fragment{Err: fmt.Errorf("%w: malformed delta: %v", ErrUpstream, err)})
			return
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == nil || *content == "" {
			continue
		}

		if !c.emit(ctx, fragments, Fragment{Text: *content}) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.emit(ctx, fragments, Fragment{Err: fmt.Errorf("%w: reading stream: %v", ErrUpstream, err)})
	}
}

// emit sends a fragment unless the context is cancelled
func (c *Client) emit(ctx context.Context, fragments chan<- Fragment, f Fragment) bool {
	select {
	case fragments <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
