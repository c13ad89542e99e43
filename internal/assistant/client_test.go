package assistant_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/raysh454/zapdash/internal/assistant"
	"github.com/raysh454/zapdash/internal/testutil"
	"github.com/raysh454/zapdash/internal/webclient"
)

type invokeBody struct {
	Tool        string `json:"tool"`
	Mode        string `json:"mode"`
	InputReport string `json:"input_report"`
	InputText   string `json:"input_text"`
}

func respond(status int, body string) func(*webclient.Request) (*webclient.Response, error) {
	return func(req *webclient.Request) (*webclient.Response, error) {
		return &webclient.Response{StatusCode: status, Body: []byte(body)}, nil
	}
}

func newClient(t *testing.T, web *testutil.DummyWebClient, cfg assistant.Config) *assistant.Client {
	t.Helper()
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://llm.internal:8000/"
	}
	c, err := assistant.NewClient(cfg, web, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSummarize_SendsReportMode(t *testing.T) {
	t.Parallel()
	web := &testutil.DummyWebClient{Handler: respond(200, `{"response":"Two medium risks."}`)}
	c := newClient(t, web, assistant.Config{})

	got, err := c.Summarize(context.Background(), []byte(`{"site":[]}`))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Two medium risks." {
		t.Errorf("unexpected summary %q", got)
	}

	req := web.Requests[0]
	if req.Method != "POST" || req.URL != "http://llm.internal:8000/bedrock/invoke" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL)
	}
	var body invokeBody
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Tool != "owasp" || body.Mode != assistant.ModeReport || body.InputReport != `{"site":[]}` || body.InputText != "" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestAsk_SendsQuestion(t *testing.T) {
	t.Parallel()
	web := &testutil.DummyWebClient{Handler: respond(200, `{"response":"Set the header."}`)}
	c := newClient(t, web, assistant.Config{Tool: "zap"})

	got, err := c.Ask(context.Background(), "  how do I fix it? ", []byte(`{}`))
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "Set the header." {
		t.Errorf("unexpected answer %q", got)
	}
	var body invokeBody
	_ = json.Unmarshal(web.Requests[0].Body, &body)
	if body.Mode != assistant.ModeChat || body.InputText != "how do I fix it?" || body.Tool != "zap" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	t.Parallel()
	web := &testutil.DummyWebClient{}
	c := newClient(t, web, assistant.Config{})

	if _, err := c.Ask(context.Background(), "   ", nil); !errors.Is(err, assistant.ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if web.RequestCount() != 0 {
		t.Error("no request expected")
	}
}

func TestInvoke_Errors(t *testing.T) {
	t.Parallel()

	web := &testutil.DummyWebClient{Handler: respond(500, `{"message":"token limit"}`)}
	if _, err := newClient(t, web, assistant.Config{}).Summarize(context.Background(), nil); err == nil {
		t.Error("expected error for 500")
	}

	web = &testutil.DummyWebClient{Handler: respond(200, `{"response":""}`)}
	if _, err := newClient(t, web, assistant.Config{}).Summarize(context.Background(), nil); !errors.Is(err, assistant.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}

	web = &testutil.DummyWebClient{Handler: func(*webclient.Request) (*webclient.Response, error) {
		return nil, errors.New("dial tcp: refused")
	}}
	if _, err := newClient(t, web, assistant.Config{}).Summarize(context.Background(), nil); err == nil {
		t.Error("expected transport error")
	}
}

func TestInvoke_BoundsConcurrency(t *testing.T) {
	t.Parallel()
	var inflight, peak int32
	web := &testutil.DummyWebClient{Handler: func(*webclient.Request) (*webclient.Response, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return &webclient.Response{StatusCode: 200, Body: []byte(`{"response":"ok"}`)}, nil
	}}
	c := newClient(t, web, assistant.Config{MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Summarize(context.Background(), nil)
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()
	web := &testutil.DummyWebClient{}
	if _, err := assistant.NewClient(assistant.Config{}, web, &testutil.DummyLogger{}); !errors.Is(err, assistant.ErrNoBaseURL) {
		t.Errorf("expected ErrNoBaseURL, got %v", err)
	}
	if _, err := assistant.NewClient(assistant.Config{BaseURL: "::bad"}, web, &testutil.DummyLogger{}); err == nil {
		t.Error("expected parse error")
	}
}
