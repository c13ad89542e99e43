// Package assistant calls the remote language-model service that summarises
// scan reports and answers questions about them.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/webclient"
	"golang.org/x/sync/semaphore"
)

const (
	ModeReport = "report"
	ModeChat   = "chat"

	DefaultTool          = "owasp"
	DefaultMaxConcurrent = 3
)

var (
	ErrNoBaseURL     = errors.New("assistant base url is required")
	ErrEmptyQuestion = errors.New("question is empty")
	ErrEmptyResponse = errors.New("assistant returned an empty response")
)

// Config locates the assistant service.
type Config struct {
	BaseURL string `mapstructure:"base_url"`

	// Tool names the scanner whose prompts the service should use.
	Tool string `mapstructure:"tool"`

	// MaxConcurrent bounds in-flight invocations.
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
}

type invokeRequest struct {
	Tool        string `json:"tool"`
	Mode        string `json:"mode"`
	InputReport string `json:"input_report"`
	InputText   string `json:"input_text,omitempty"`
}

type invokeResponse struct {
	Response string `json:"response"`
	Message  string `json:"message,omitempty"`
}

// Client invokes the assistant service.
type Client struct {
	endpoint string
	tool     string
	sem      *semaphore.Weighted
	web      webclient.WebClient
	logger   logging.Logger
}

func NewClient(cfg Config, web webclient.WebClient, logger logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse assistant base url %q: invalid", cfg.BaseURL)
	}
	if web == nil {
		return nil, errors.New("webclient is nil")
	}
	tool := cfg.Tool
	if tool == "" {
		tool = DefaultTool
	}
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = DefaultMaxConcurrent
	}
	return &Client{
		endpoint: base.JoinPath("bedrock/invoke").String(),
		tool:     tool,
		sem:      semaphore.NewWeighted(n),
		web:      web,
		logger:   logger.With(logging.Field{Key: "component", Value: "assistant"}),
	}, nil
}

// Summarize asks for a natural-language summary of a raw report.
func (c *Client) Summarize(ctx context.Context, report []byte) (string, error) {
	return c.invoke(ctx, invokeRequest{Tool: c.tool, Mode: ModeReport, InputReport: string(report)})
}

// Ask answers a question grounded in a raw report.
func (c *Client) Ask(ctx context.Context, question string, report []byte) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	return c.invoke(ctx, invokeRequest{Tool: c.tool, Mode: ModeChat, InputReport: string(report), InputText: question})
}

func (c *Client) invoke(ctx context.Context, body invokeRequest) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("invoke assistant: %w", err)
	}
	defer c.sem.Release(1)

	req, err := webclient.NewJSONRequest(http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", err
	}
	resp, err := c.web.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("invoke assistant: %w", err)
	}

	var out invokeResponse
	if !resp.OK() {
		_ = webclient.DecodeJSON(resp, &out)
		return "", fmt.Errorf("invoke assistant: service returned %d %s", resp.StatusCode, out.Message)
	}
	if err := webclient.DecodeJSON(resp, &out); err != nil {
		return "", fmt.Errorf("invoke assistant: %w", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("assistant responded",
		logging.Field{Key: "mode", Value: body.Mode},
		logging.Field{Key: "chars", Value: len(out.Response)})
	return out.Response, nil
}
