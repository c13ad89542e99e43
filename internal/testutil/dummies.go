// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/model"
	"github.com/raysh454/zapdash/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns how many warnings were logged.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── Call log ──────────────────────────────────────────────────────────

// CallLog records calls across several dummies in the order they happened.
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

func (c *CallLog) Add(format string, args ...any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, fmt.Sprintf(format, args...))
}

func (c *CallLog) Entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.entries...)
}

// IndexOf returns the position of the first entry equal to s, or -1.
func (c *CallLog) IndexOf(s string) int {
	for i, e := range c.Entries() {
		if e == s {
			return i
		}
	}
	return -1
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// By default it returns an empty JSON object with status 200.
// Set Handler to control responses per request.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Handler       func(req *webclient.Request) (*webclient.Response, error)
	mu            sync.Mutex
	Requests      []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.Handler != nil {
		resp, err := d.Handler(req)
		if resp != nil && resp.Request == nil {
			resp.Request = req
		}
		return resp, err
	}
	return &webclient.Response{Request: req, StatusCode: 200, Body: []byte("{}"), FetchedAt: time.Now()}, nil
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount returns how many requests were sent.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── Status querier ────────────────────────────────────────────────────

// DummyScanner answers status queries from a per-scan-id table.
// Scans missing from Statuses return ErrUnknownScan.
type DummyScanner struct {
	mu       sync.Mutex
	Statuses map[string]*model.StatusResult
	Errors   map[string]error
	Reports  map[string][]byte
	Calls    map[string]int
	Log      *CallLog

	// Block, when non-nil, is waited on before answering.
	Block chan struct{}
}

var ErrUnknownScan = errors.New("unknown scan")

func NewDummyScanner() *DummyScanner {
	return &DummyScanner{
		Statuses: map[string]*model.StatusResult{},
		Errors:   map[string]error{},
		Reports:  map[string][]byte{},
		Calls:    map[string]int{},
	}
}

// Set replaces the status answered for scanID.
func (d *DummyScanner) Set(scanID string, res *model.StatusResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Statuses[scanID] = res
	delete(d.Errors, scanID)
}

// Fail makes queries for scanID return err.
func (d *DummyScanner) Fail(scanID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Errors[scanID] = err
}

func (d *DummyScanner) CallCount(scanID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls[scanID]
}

func (d *DummyScanner) ScanStatus(ctx context.Context, scanID string) (*model.StatusResult, error) {
	if d.Block != nil {
		select {
		case <-d.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls[scanID]++
	d.Log.Add("status %s", scanID)
	if err, ok := d.Errors[scanID]; ok {
		return nil, err
	}
	res, ok := d.Statuses[scanID]
	if !ok {
		return nil, ErrUnknownScan
	}
	out := *res
	return &out, nil
}

func (d *DummyScanner) FetchReport(ctx context.Context, scanID string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Log.Add("fetch %s", scanID)
	body, ok := d.Reports[scanID]
	if !ok {
		return nil, ErrUnknownScan
	}
	return body, nil
}

// ─── Record store ──────────────────────────────────────────────────────

// DummyRecords is an in-memory record store.
type DummyRecords struct {
	mu      sync.Mutex
	records map[string]model.ScanRecord
	Updates []string
	Log     *CallLog
	ListErr error

	// AfterList, when set, runs after ListPending has taken its snapshot.
	AfterList func()
}

var ErrNoRecord = errors.New("record not found")

func NewDummyRecords(recs ...model.ScanRecord) *DummyRecords {
	d := &DummyRecords{records: map[string]model.ScanRecord{}}
	for _, r := range recs {
		d.records[r.ID] = r
	}
	return d
}

func (d *DummyRecords) Put(rec model.ScanRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[rec.ID] = rec
}

// Lookup returns the stored record without logging a call.
func (d *DummyRecords) Lookup(id string) (model.ScanRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.records[id]
	return r, ok
}

func (d *DummyRecords) Get(ctx context.Context, id string) (*model.ScanRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.records[id]
	if !ok {
		return nil, ErrNoRecord
	}
	return &r, nil
}

func (d *DummyRecords) UpdateCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Updates)
}

func (d *DummyRecords) ListPending(ctx context.Context) ([]model.ScanRecord, error) {
	out, err := d.pending()
	if err != nil {
		return nil, err
	}
	if d.AfterList != nil {
		d.AfterList()
	}
	return out, nil
}

func (d *DummyRecords) pending() ([]model.ScanRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	var out []model.ScanRecord
	for _, r := range d.records {
		if !r.Status.IsTerminal() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *DummyRecords) UpdateStatus(ctx context.Context, id string, status model.ScanStatus) (*model.ScanRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.records[id]
	if !ok {
		return nil, ErrNoRecord
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	d.records[id] = r
	d.Updates = append(d.Updates, id+"="+string(status))
	d.Log.Add("update %s %s", id, status)
	return &r, nil
}

// ─── Artifact store ────────────────────────────────────────────────────

// DummyArtifacts is an in-memory artifact store.
type DummyArtifacts struct {
	mu       sync.Mutex
	data     map[string][]byte
	Writes   []string
	WriteErr error
	Log      *CallLog
}

func NewDummyArtifacts() *DummyArtifacts {
	return &DummyArtifacts{data: map[string][]byte{}}
}

func (d *DummyArtifacts) Write(ctx context.Context, key string, content []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Log.Add("write %s", key)
	if d.WriteErr != nil {
		return d.WriteErr
	}
	d.data[key] = append([]byte(nil), content...)
	d.Writes = append(d.Writes, key)
	return nil
}

func (d *DummyArtifacts) Read(ctx context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.data[key]
	if !ok {
		return nil, fmt.Errorf("artifact %s: not found", key)
	}
	return b, nil
}

func (d *DummyArtifacts) WriteCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Writes)
}
