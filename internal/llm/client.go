// Package llm implements the enhancement engine on top of an
// OpenRouter-compatible chat completions API with vision input.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "google/gemini-2.5-flash-preview-09-2025"
)

// Client handles communication with the OpenRouter API
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	retry      *RetryConfig
	logger     *observability.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another OpenRouter-compatible endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry replaces the retry policy.
func WithRetry(rc *RetryConfig) ClientOption {
	return func(c *Client) { c.retry = rc }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *observability.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// NewClient creates a new LLM client
func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	if model == "" {
		model = defaultModel
	}
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		retry:      DefaultRetryConfig(),
		logger:     observability.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// CheckModel verifies the API key and that the configured model is served.
func (c *Client) CheckModel(ctx context.Context) error {
	if c.apiKey == "" {
		return domain.ConfigError("OpenRouter API key is not set", nil)
	}
	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return domain.EngineInvocationError("failed to list models", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return domain.EngineInvocationError("failed to decode model list", err)
	}
	for _, m := range list.Data {
		if m.ID == c.model {
			return nil
		}
	}
	return domain.EngineInvocationError(fmt.Sprintf("model %q is not available", c.model), nil)
}

// Complete sends prompt and images in one streamed request and returns the
// concatenated reply. A reply cut off at the token limit is returned along
// with ErrTruncated.
func (c *Client) Complete(ctx context.Context, prompt string, images [][]byte) (string, error) {
	body, err := json.Marshal(c.buildRequest(prompt, images))
	if err != nil {
		return "", domain.EngineInvocationError("failed to marshal request", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req)
		return c.httpClient.Do(req)
	})
	if err != nil {
		if isOverloaded(err) {
			return "", domain.EngineInvocationError(fmt.Sprintf("model %s is overloaded", c.model), err)
		}
		return "", domain.EngineInvocationError("failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var sb strings.Builder
	finish, err := NewStreamParser(resp.Body).ParseAll(func(chunk string) { sb.WriteString(chunk) })
	if err != nil {
		return "", domain.EngineInvocationError("failed to parse stream", err)
	}
	if finish == "length" {
		return sb.String(), ErrTruncated
	}
	return sb.String(), nil
}

func (c *Client) buildRequest(prompt string, images [][]byte) *Request {
	parts := make([]ContentPart, 0, len(images)+1)
	parts = append(parts, ContentPart{Type: "text", Text: prompt})
	for _, img := range images {
		parts = append(parts, ContentPart{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	return &Request{
		Model:    c.model,
		Messages: []Message{{Role: "user", Content: parts}},
		Stream:   true,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/spherical/scan-ocr")
	req.Header.Set("X-Title", "Scanned PDF OCR")
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return domain.ConfigError(msg, nil)
	}
	return domain.EngineInvocationError(msg, nil)
}
