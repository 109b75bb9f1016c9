package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultModel      = "claude-sonnet-4-20250514"
	defaultMaxTokens  = 16000
	defaultMaxRetries = 3
	apiVersion        = "2023-06-01"
)

// Options configure the HTTP backend. Zero values fall back to defaults; the
// API key falls back to the env var named by config (ANTHROPIC_API_KEY by
// convention).
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
	HTTPClient *http.Client
	Logger     *log.Logger
}

// AnthropicClient talks to an Anthropic-compatible messages API.
type AnthropicClient struct {
	opts Options
}

// NewAnthropic builds the HTTP backend. It returns an error when no API key
// is available, so callers can fall back to placeholder mode explicitly.
func NewAnthropic(opts Options) (*AnthropicClient, error) {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if opts.APIKey == "" {
		return nil, &BackendError{Kind: KindRequestFailed, Msg: "no API key configured"}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &AnthropicClient{opts: opts}, nil
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	system := req.System
	if system == "" {
		system = DefaultSystemPrompt(req.ResponseFormat)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	body := apiRequest{
		Model:       c.opts.Model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    []apiMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			if delay > time.Minute {
				delay = time.Minute
			}
			c.opts.Logger.Printf("llm: retrying in %s (attempt %d)", delay, attempt+1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Response{}, &BackendError{Kind: KindRequestFailed, Msg: "cancelled during retry wait", Err: ctx.Err()}
			}
		}
		resp, err := c.doRequest(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

func isRetryable(err error) bool {
	var be *BackendError
	if !errors.As(err, &be) {
		return false
	}
	return be.Kind == KindRateLimited || be.Kind == KindRequestFailed
}

func (c *AnthropicClient) doRequest(ctx context.Context, body apiRequest) (Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Response{}, &BackendError{Kind: KindBadResponse, Msg: "encoding request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/messages", bytes.NewReader(raw))
	if err != nil {
		return Response{}, &BackendError{Kind: KindRequestFailed, Msg: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.opts.APIKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	httpResp, err := c.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, &BackendError{Kind: KindRequestFailed, Msg: "request failed", Err: err}
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, &BackendError{Kind: KindRequestFailed, Msg: "reading response", Err: err}
	}
	if httpResp.StatusCode == http.StatusTooManyRequests {
		return Response{}, &BackendError{Kind: KindRateLimited, Msg: "rate limited"}
	}
	if httpResp.StatusCode != http.StatusOK {
		var parsed apiResponse
		msg := fmt.Sprintf("status %d", httpResp.StatusCode)
		if json.Unmarshal(payload, &parsed) == nil && parsed.Error != nil {
			msg = fmt.Sprintf("status %d: %s", httpResp.StatusCode, parsed.Error.Message)
		}
		return Response{}, &BackendError{Kind: KindRequestFailed, Msg: msg}
	}

	var parsed apiResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Response{}, &BackendError{Kind: KindBadResponse, Msg: "decoding response", Err: err}
	}
	if len(parsed.Content) == 0 {
		return Response{}, &BackendError{Kind: KindBadResponse, Msg: "empty content"}
	}
	if parsed.StopReason == "max_tokens" {
		c.opts.Logger.Printf("llm: response truncated at %d tokens", body.MaxTokens)
	}
	return Response{
		Text:         parsed.Content[0].Text,
		StopReason:   parsed.StopReason,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}
