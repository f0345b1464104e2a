package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second

	// statusOverloaded is sent by some upstream providers when the model
	// has no free capacity.
	statusOverloaded = 529
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// retryReason names why a response status is worth retrying, or "" if it is not.
func retryReason(statusCode int) string {
	switch statusCode {
	case http.StatusTooManyRequests:
		return "rate limited"
	case http.StatusServiceUnavailable, statusOverloaded:
		return "model overloaded"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return "upstream error"
	default:
		return ""
	}
}

func shouldRetry(statusCode int) bool {
	return retryReason(statusCode) != ""
}

// calculateBackoff returns initialBackoff * 2^attempt, capped at MaxBackoff.
func calculateBackoff(attempt int, config *RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(header string, now time.Time) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(header); err == nil {
		return max(0, at.Sub(now)), true
	}
	return 0, false
}

// RetryError is returned when every attempt failed.
type RetryError struct {
	Attempts   int
	Reason     string // empty for transport errors
	StatusCode int
	Err        error
}

func (e *RetryError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s after %d attempts: %v", e.Reason, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Overloaded reports whether the model itself had no capacity, as opposed
// to a rate limit or a gateway failure.
func (e *RetryError) Overloaded() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == statusOverloaded
}

// apiErrorMessage extracts the message of an OpenRouter error body.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// retryWithBackoff wraps an HTTP request with retry logic. Non-retryable
// responses are returned as-is for the caller to inspect. A Retry-After
// header overrides the computed backoff, up to MaxBackoff.
func (c *Client) retryWithBackoff(ctx context.Context, reqFunc func() (*http.Response, error)) (*http.Response, error) {
	config := c.retry
	last := &RetryError{}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		last.Attempts = attempt + 1
		backoff := calculateBackoff(attempt, config)

		resp, err := reqFunc()
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			last.Reason, last.StatusCode, last.Err = "", 0, err
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		default:
			reason := retryReason(resp.StatusCode)
			if reason == "" {
				return resp, nil
			}
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			last.Reason, last.StatusCode = reason, resp.StatusCode
			last.Err = fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiErrorMessage(body))
			if d, ok := retryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
				backoff = min(d, config.MaxBackoff)
			}
		}

		if attempt == config.MaxRetries {
			break
		}

		c.logger.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", config.MaxRetries).
			Str("reason", last.Reason).
			Dur("backoff", backoff).
			Err(last.Err).
			Msg("request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, last
}

// isOverloaded reports whether err ends a retry loop on an overloaded model.
func isOverloaded(err error) bool {
	var re *RetryError
	return errors.As(err, &re) && re.Overloaded()
}
