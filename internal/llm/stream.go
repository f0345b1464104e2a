package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrTruncated reports a reply cut off at the model's output token limit.
var ErrTruncated = errors.New("reply truncated at the output token limit")

// StreamError is an error the provider sent inside an open stream, after
// the 200 status was already written.
type StreamError struct {
	Code    any
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("provider error in stream (code %v): %s", e.Code, e.Message)
}

// StreamParser handles parsing of Server-Sent Events (SSE) streams
type StreamParser struct {
	scanner *bufio.Scanner
}

// NewStreamParser creates a new stream parser
func NewStreamParser(reader io.Reader) *StreamParser {
	s := bufio.NewScanner(reader)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &StreamParser{scanner: s}
}

// StreamChunk represents a single chunk from the stream
type StreamChunk struct {
	Content      string
	FinishReason string
	Done         bool
}

type streamFrame struct {
	Response
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Next reads the next chunk from the stream
func (p *StreamParser) Next() (*StreamChunk, error) {
	for p.scanner.Scan() {
		data, ok := strings.CutPrefix(p.scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return &StreamChunk{Done: true}, nil
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			// Providers interleave keep-alive comments and partial frames.
			continue
		}
		if frame.Error != nil {
			return nil, &StreamError{Code: frame.Error.Code, Message: frame.Error.Message}
		}
		if len(frame.Choices) > 0 {
			choice := frame.Choices[0]
			content := choice.Delta.Content
			if content == "" {
				content = choice.Message.Content
			}
			return &StreamChunk{
				Content:      content,
				FinishReason: choice.FinishReason,
				Done:         choice.FinishReason != "",
			}, nil
		}
	}

	if err := p.scanner.Err(); err != nil {
		return nil, err
	}
	return &StreamChunk{Done: true}, nil
}

// ParseAll reads every chunk, hands non-empty content to fn and returns
// the finish reason of the last chunk.
func (p *StreamParser) ParseAll(fn func(string)) (string, error) {
	for {
		chunk, err := p.Next()
		if err != nil {
			return "", err
		}
		if chunk.Content != "" {
			fn(chunk.Content)
		}
		if chunk.Done {
			return chunk.FinishReason, nil
		}
	}
}
