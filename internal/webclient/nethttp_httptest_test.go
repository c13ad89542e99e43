package webclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raysh454/zapdash/internal/webclient"
)

// apiServer starts h and returns a client pointed at it.
func apiServer(t *testing.T, cfg webclient.Config, h http.HandlerFunc) (*httptest.Server, *webclient.NetHTTPClient) {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	client, err := webclient.NewNetHTTPClient(cfg, &noopLogger{}, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return ts, client
}

// ─── JSON API calls ────────────────────────────────────────────────────

func TestDo_JSONInvoke(t *testing.T) {
	t.Parallel()
	var gotMethod, gotAccept, gotType, gotBody string
	ts, client := apiServer(t, webclient.Config{}, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAccept = r.Header.Get("Accept")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"response":"Two medium alerts.","ignored":true}`)
	})

	req, err := webclient.NewJSONRequest(http.MethodPost, ts.URL+"/bedrock/invoke",
		map[string]string{"tool": "owasp", "mode": "report"})
	if err != nil {
		t.Fatalf("NewJSONRequest: %v", err)
	}
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s", gotMethod)
	}
	if gotAccept != "application/json" || gotType != "application/json" {
		t.Errorf("unexpected accept %q / content type %q", gotAccept, gotType)
	}
	if !strings.Contains(gotBody, `"tool":"owasp"`) || !strings.Contains(gotBody, `"mode":"report"`) {
		t.Errorf("unexpected body %s", gotBody)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := webclient.DecodeJSON(resp, &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out.Response != "Two medium alerts." {
		t.Errorf("response = %q", out.Response)
	}
	if resp.Request != req || resp.FetchedAt.IsZero() {
		t.Errorf("response does not carry its request and fetch time: %+v", resp)
	}
}

func TestNewJSONRequest_WithoutBody(t *testing.T) {
	t.Parallel()
	req, err := webclient.NewJSONRequest(http.MethodGet, "http://scan.local/config", nil)
	if err != nil {
		t.Fatalf("NewJSONRequest: %v", err)
	}
	if req.Body != nil || req.Headers.Get("Content-Type") != "" {
		t.Errorf("GET without payload should carry no body or content type: %+v", req)
	}
	if req.Headers.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", req.Headers.Get("Accept"))
	}
}

func TestNewJSONRequest_UnencodableBody(t *testing.T) {
	t.Parallel()
	if _, err := webclient.NewJSONRequest(http.MethodPost, "http://scan.local", make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}
}

func TestDecodeJSON_InvalidBody(t *testing.T) {
	t.Parallel()
	var v map[string]any
	if err := webclient.DecodeJSON(&webclient.Response{Body: []byte("<html>bad gateway</html>")}, &v); err == nil {
		t.Fatal("expected decode error")
	}
}

// ─── Error bodies ──────────────────────────────────────────────────────

func TestDo_ErrorStatusKeepsBody(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		body   string
	}{
		{http.StatusBadRequest, `{"detail":"target_url is required"}`},
		{http.StatusBadGateway, `{"message":"zap unavailable"}`},
		{http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()
			ts, client := apiServer(t, webclient.Config{}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			resp, err := client.Get(context.Background(), ts.URL)
			if err != nil {
				t.Fatalf("a non-2xx answer is not a transport error: %v", err)
			}
			if resp.OK() || resp.StatusCode != tc.status {
				t.Errorf("status = %d, OK = %v", resp.StatusCode, resp.OK())
			}
			if string(resp.Body) != tc.body {
				t.Errorf("body = %q, want %q", resp.Body, tc.body)
			}
		})
	}
}

// ─── Headers ───────────────────────────────────────────────────────────

func TestDo_UserAgent(t *testing.T) {
	t.Parallel()
	var got []string
	ts, client := apiServer(t, webclient.Config{UserAgent: "zapdash/1"}, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
	})

	if _, err := client.Get(context.Background(), ts.URL); err != nil {
		t.Fatalf("Get: %v", err)
	}
	own := &webclient.Request{URL: ts.URL, Headers: http.Header{"User-Agent": {"custom-agent/2"}}}
	if _, err := client.Do(context.Background(), own); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if len(got) != 2 || got[0] != "zapdash/1" || got[1] != "custom-agent/2" {
		t.Errorf("user agents = %v", got)
	}
}

func TestDo_APIKeyHeaderAndDefaultMethod(t *testing.T) {
	t.Parallel()
	var gotMethod, gotKey string
	ts, client := apiServer(t, webclient.Config{}, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotKey = r.Method, r.Header.Get("X-API-Key")
	})

	req := &webclient.Request{URL: ts.URL + "/zap/scan-status/abc", Headers: http.Header{}}
	req.Headers.Set("X-API-Key", "secret")
	if _, err := client.Do(context.Background(), req); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotMethod != http.MethodGet || gotKey != "secret" {
		t.Errorf("method %q, key %q", gotMethod, gotKey)
	}
}

// ─── Body limit ────────────────────────────────────────────────────────

func TestDo_MaxBodyBytes(t *testing.T) {
	t.Parallel()
	const limit = 1024
	report := `{"site":[` + strings.Repeat(" ", limit-len(`{"site":[]}`)) + `]}`
	ts, client := apiServer(t, webclient.Config{MaxBodyBytes: limit}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big" {
			_, _ = io.WriteString(w, report+" ")
			return
		}
		_, _ = io.WriteString(w, report)
	})

	resp, err := client.Get(context.Background(), ts.URL+"/exact")
	if err != nil {
		t.Fatalf("body at the limit should be read: %v", err)
	}
	if len(resp.Body) != limit {
		t.Errorf("read %d bytes, want %d", len(resp.Body), limit)
	}

	if _, err := client.Get(context.Background(), ts.URL+"/big"); !errors.Is(err, webclient.ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

// ─── Failures ──────────────────────────────────────────────────────────

func TestDo_NilRequest(t *testing.T) {
	t.Parallel()
	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, &noopLogger{}, nil)
	if _, err := client.Do(context.Background(), nil); !errors.Is(err, webclient.ErrNilRequest) {
		t.Fatalf("expected ErrNilRequest, got %v", err)
	}
}

func TestDo_ServiceDown(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, &noopLogger{}, nil)
	if _, err := client.Get(context.Background(), url); err == nil {
		t.Fatal("expected error from closed scan service")
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	ts, client := apiServer(t, webclient.Config{}, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Get(ctx, ts.URL); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
