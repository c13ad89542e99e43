// Package zap talks to the remote scan service: it launches baseline scans
// and reports their progress.
package zap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/model"
	"github.com/raysh454/zapdash/internal/webclient"
)

var (
	ErrNoBaseURL = errors.New("scan service base url is required")
	ErrNoScanID  = errors.New("scan id is required")
	ErrNoReport  = errors.New("scan has no report")
	ErrNoCatalog = errors.New("scan service returned no configuration catalog")
)

// StatusError is returned when the scan service answers with a non-2xx code.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: scan service returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: scan service returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// Config locates the scan service.
type Config struct {
	// BaseURL is the service root, e.g. http://zap-service:8000/.
	BaseURL string `mapstructure:"base_url"`

	// APIKey, when set, is sent as X-API-Key.
	APIKey string `mapstructure:"api_key"`
}

// Client is the scan launcher and status query client.
type Client struct {
	base   *url.URL
	apiKey string
	web    webclient.WebClient
	logger logging.Logger
}

func NewClient(cfg Config, web webclient.WebClient, logger logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if web == nil {
		return nil, errors.New("webclient is nil")
	}
	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		web:    web,
		logger: logger.With(logging.Field{Key: "component", Value: "zap"}),
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) send(ctx context.Context, op string, req *webclient.Request, out any) error {
	if c.apiKey != "" {
		req.Headers.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.web.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK() {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := webclient.DecodeJSON(resp, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// errorMessage pulls a human message out of an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return truncate(strings.TrimSpace(string(body)), maxMessageRunes)
}

const maxMessageRunes = 200

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Launch starts a scan of targetURL. Empty fields of mode are left to the
// service's defaults.
func (c *Client) Launch(ctx context.Context, targetURL string, mode model.ScanMode) (*model.LaunchResult, error) {
	query := url.Values{"target_url": {targetURL}}
	if mode.Tool != "" {
		query.Set("tool", mode.Tool)
	}
	if mode.Mode != "" {
		query.Set("mode", mode.Mode)
	}
	req, err := webclient.NewJSONRequest(http.MethodPost, c.endpoint("zap/basescan", query), nil)
	if err != nil {
		return nil, err
	}
	req.Headers.Set("Content-Type", "application/json")

	var out model.LaunchResult
	if err := c.send(ctx, "launch scan", req, &out); err != nil {
		return nil, err
	}
	if out.ScanID == "" {
		return nil, fmt.Errorf("launch scan: %w in response", ErrNoScanID)
	}
	c.logger.Info("scan launched",
		logging.Field{Key: "scan_id", Value: out.ScanID},
		logging.Field{Key: "target", Value: targetURL},
		logging.Field{Key: "mode", Value: mode.Mode})
	return &out, nil
}

// Configurations fetches the scan configuration catalog.
func (c *Client) Configurations(ctx context.Context) (*model.Catalog, error) {
	req, err := webclient.NewJSONRequest(http.MethodGet, c.endpoint("config", nil), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Config *model.Catalog `json:"config"`
	}
	if err := c.send(ctx, "fetch configurations", req, &out); err != nil {
		return nil, err
	}
	if out.Config == nil {
		return nil, fmt.Errorf("fetch configurations: %w", ErrNoCatalog)
	}
	return out.Config, nil
}

// ScanStatus reports the current state of a scan. A report delivered as a
// JSON-encoded string is unwrapped to the document it contains.
func (c *Client) ScanStatus(ctx context.Context, scanID string) (*model.StatusResult, error) {
	if strings.TrimSpace(scanID) == "" {
		return nil, ErrNoScanID
	}
	req, err := webclient.NewJSONRequest(http.MethodGet, c.endpoint("zap/scan-status/"+url.PathEscape(scanID), nil), nil)
	if err != nil {
		return nil, err
	}

	var out model.StatusResult
	if err := c.send(ctx, "scan status", req, &out); err != nil {
		return nil, err
	}
	out.Report = unwrapReport(out.Report)
	c.logger.Debug("scan status",
		logging.Field{Key: "scan_id", Value: scanID},
		logging.Field{Key: "status", Value: out.Status})
	return &out, nil
}

// FetchReport returns the raw report of a completed scan.
func (c *Client) FetchReport(ctx context.Context, scanID string) ([]byte, error) {
	res, err := c.ScanStatus(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if !res.HasReport() {
		return nil, fmt.Errorf("fetch report %s: %w", scanID, ErrNoReport)
	}
	return res.Report, nil
}

func unwrapReport(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return raw
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return raw
	}
	if !jsontext.Value(inner).IsValid() {
		return raw
	}
	return []byte(inner)
}
