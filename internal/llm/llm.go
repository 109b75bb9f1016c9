// Package llm is the generation backend boundary. The pipeline core only
// knows the Client interface; the concrete Anthropic-compatible HTTP client
// lives here too but nothing above it depends on the wire details.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies backend failures so callers can tell a transport
// problem from a malformed reply.
type ErrorKind string

const (
	KindRequestFailed ErrorKind = "request_failed"
	KindBadResponse   ErrorKind = "bad_response"
	KindRateLimited   ErrorKind = "rate_limited"
)

type BackendError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, e.Msg)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsBadResponse reports whether err is a backend error caused by malformed
// output rather than a failed request.
func IsBadResponse(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == KindBadResponse
}

// Request describes one generation call.
type Request struct {
	Prompt         string
	System         string
	ResponseFormat string // "json" or "" for free text
	Temperature    float64
	MaxTokens      int
}

// Response carries the reply plus usage accounting.
type Response struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Client generates content. Implementations must honour ctx cancellation.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// DefaultSystemPrompt matches the backend's expected register; the JSON
// variant forbids markdown wrapping so replies parse directly.
func DefaultSystemPrompt(responseFormat string) string {
	base := "You are an expert book development assistant. Provide detailed, creative, and professional responses."
	if responseFormat == "json" {
		base += " When asked for JSON output, respond ONLY with valid JSON. No markdown code blocks, no explanations, no text outside the JSON object."
	}
	return base
}

// ExtractJSON strips markdown code fences and surrounding prose from a reply
// so the remaining text starts at the outermost JSON object.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if i := strings.Index(content, "\n"); i >= 0 {
			content = content[i+1:]
		}
		if i := strings.LastIndex(content, "```"); i >= 0 {
			content = content[:i]
		}
		content = strings.TrimSpace(content)
	}
	start := strings.IndexAny(content, "{[")
	if start > 0 {
		content = content[start:]
	}
	if end := strings.LastIndexAny(content, "}]"); end >= 0 && end < len(content)-1 {
		content = content[:end+1]
	}
	return content
}
