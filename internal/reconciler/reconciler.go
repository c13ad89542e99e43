// Package reconciler keeps local scan records in step with the remote scan
// service. Each tick selects the non-terminal records, queries the remote
// status of each one concurrently and applies whatever transition it
// observes. A completed scan has its report written to the artifact store
// before its status is set, so a completed record always has an artifact.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// StatusQuerier asks the remote service for a scan's current status.
type StatusQuerier interface {
	ScanStatus(ctx context.Context, scanID string) (*model.StatusResult, error)
}

// ReportFetcher retrieves a completed scan's report when the status answer
// did not carry one.
type ReportFetcher interface {
	FetchReport(ctx context.Context, scanID string) ([]byte, error)
}

// RecordStore is the subset of the record store the reconciler needs.
type RecordStore interface {
	Get(ctx context.Context, id string) (*model.ScanRecord, error)
	ListPending(ctx context.Context) ([]model.ScanRecord, error)
	UpdateStatus(ctx context.Context, id string, status model.ScanStatus) (*model.ScanRecord, error)
}

// ArtifactStore persists raw reports keyed by record id.
type ArtifactStore interface {
	Write(ctx context.Context, key string, content []byte) error
}

var (
	ErrAlreadyRunning = errors.New("reconciler session already running")
	ErrNoReport       = errors.New("completed scan has no report")
)

// Transition is emitted on the Events channel for every applied change.
type Transition struct {
	RecordID string           `json:"recordId"`
	ScanID   string           `json:"scanId"`
	From     model.ScanStatus `json:"from"`
	To       model.ScanStatus `json:"to"`
	At       time.Time        `json:"at"`
}

// TickResult summarises one pass.
type TickResult struct {
	Selected    int
	Skipped     int
	Failed      int
	Transitions int
}

type Option func(*Reconciler)

// WithReportFetcher sets the fallback used when a completed status carries
// no report. A querier that also implements ReportFetcher is used by default.
func WithReportFetcher(f ReportFetcher) Option {
	return func(r *Reconciler) { r.fetcher = f }
}

// WithMetrics records tick and query outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithEventBuffer sizes the Events channel. Events are dropped when the
// buffer is full.
func WithEventBuffer(n int) Option {
	return func(r *Reconciler) { r.events = make(chan Transition, n) }
}

type Reconciler struct {
	cfg       Config
	querier   StatusQuerier
	fetcher   ReportFetcher
	records   RecordStore
	artifacts ArtifactStore
	limiter   *rate.Limiter
	metrics   *Metrics
	logger    logging.Logger
	events    chan Transition

	mu       sync.Mutex
	inflight map[string]struct{}
	session  *Session
}

func New(cfg Config, querier StatusQuerier, records RecordStore, artifacts ArtifactStore, logger logging.Logger, opts ...Option) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if querier == nil || records == nil || artifacts == nil {
		return nil, errors.New("reconciler: querier, record store and artifact store are required")
	}

	r := &Reconciler{
		cfg:       cfg,
		querier:   querier,
		records:   records,
		artifacts: artifacts,
		logger:    logger.With(logging.Field{Key: "component", Value: "reconciler"}),
		inflight:  make(map[string]struct{}),
		events:    make(chan Transition, 64),
	}
	if f, ok := querier.(ReportFetcher); ok {
		r.fetcher = f
	}
	if cfg.QueryRate > 0 {
		burst := cfg.QueryBurst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.QueryRate), burst)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	return r, nil
}

// Events yields applied transitions. Reading is optional.
func (r *Reconciler) Events() <-chan Transition {
	return r.events
}

// Tick runs one reconciliation pass and waits for its per-record work.
// Only the selection step can fail; per-record errors are logged and left
// for the next tick.
func (r *Reconciler) Tick(ctx context.Context) (TickResult, error) {
	return r.tick(ctx, alwaysLive)
}

func alwaysLive() bool { return true }

func (r *Reconciler) tick(ctx context.Context, live func() bool) (TickResult, error) {
	r.metrics.Ticks.Inc()

	pending, err := r.records.ListPending(ctx)
	if err != nil {
		r.logger.Warn("list pending records failed", logging.Field{Key: "error", Value: err})
		return TickResult{}, fmt.Errorf("list pending records: %w", err)
	}

	var res TickResult
	selected := r.claim(pending)
	res.Selected = len(selected)
	res.Skipped = len(pending) - len(selected)

	var failed, transitions atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.MaxConcurrent > 0 {
		g.SetLimit(r.cfg.MaxConcurrent)
	}
	for _, rec := range selected {
		g.Go(func() error {
			defer r.release(rec.ID)
			switch r.reconcile(gctx, rec, live) {
			case stepFailed:
				failed.Add(1)
			case stepApplied:
				transitions.Add(1)
			}
			// Never cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	res.Failed = int(failed.Load())
	res.Transitions = int(transitions.Load())
	if res.Selected > 0 {
		r.logger.Debug("tick complete",
			logging.Field{Key: "selected", Value: res.Selected},
			logging.Field{Key: "skipped", Value: res.Skipped},
			logging.Field{Key: "failed", Value: res.Failed},
			logging.Field{Key: "transitions", Value: res.Transitions})
	}
	return res, nil
}

// claim marks records as in flight and returns those not already claimed
// by an earlier, still-running tick.
func (r *Reconciler) claim(pending []model.ScanRecord) []model.ScanRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ScanRecord, 0, len(pending))
	for _, rec := range pending {
		if _, busy := r.inflight[rec.ID]; busy {
			continue
		}
		r.inflight[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	r.metrics.InFlight.Set(float64(len(r.inflight)))
	return out
}

func (r *Reconciler) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
	r.metrics.InFlight.Set(float64(len(r.inflight)))
}

type stepResult int

const (
	stepNoop stepResult = iota
	stepApplied
	stepFailed
)

func (r *Reconciler) reconcile(ctx context.Context, listed model.ScanRecord, live func() bool) stepResult {
	log := r.logger.With(
		logging.Field{Key: "record_id", Value: listed.ID},
		logging.Field{Key: "scan_id", Value: listed.ScanID})

	// The listing may predate a transition applied by an overlapping tick.
	// Holding the claim, the stored record is current.
	cur, err := r.records.Get(ctx, listed.ID)
	if err != nil {
		log.Warn("reload record failed", logging.Field{Key: "error", Value: err})
		return stepFailed
	}
	rec := *cur
	if rec.Status.IsTerminal() {
		return stepNoop
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			r.metrics.Queries.WithLabelValues(outcomeError).Inc()
			return stepFailed
		}
	}

	res, err := r.querier.ScanStatus(ctx, rec.ScanID)
	if err != nil {
		r.metrics.Queries.WithLabelValues(outcomeError).Inc()
		log.Warn("status query failed", logging.Field{Key: "error", Value: err})
		return stepFailed
	}
	if !live() {
		r.metrics.Queries.WithLabelValues(outcomeDiscarded).Inc()
		return stepNoop
	}

	status, err := model.ParseScanStatus(res.Status)
	if err != nil {
		r.metrics.Queries.WithLabelValues(outcomeUnknown).Inc()
		log.Warn("ignoring unknown remote status", logging.Field{Key: "status", Value: res.Status})
		return stepNoop
	}
	r.metrics.Queries.WithLabelValues(outcomeOK).Inc()

	if status == rec.Status {
		return stepNoop
	}

	if status == model.StatusCompleted {
		report, err := r.report(ctx, rec, res)
		if err != nil {
			r.metrics.Transitions.WithLabelValues(outcomeAborted).Inc()
			log.Warn("completed scan report unavailable", logging.Field{Key: "error", Value: err})
			return stepFailed
		}
		if !live() {
			return stepNoop
		}
		if err := r.artifacts.Write(ctx, rec.ID, report); err != nil {
			r.metrics.Transitions.WithLabelValues(outcomeAborted).Inc()
			log.Error("artifact write failed; record left pending", logging.Field{Key: "error", Value: err})
			return stepFailed
		}
	}

	if !live() {
		return stepNoop
	}
	if _, err := r.records.UpdateStatus(ctx, rec.ID, status); err != nil {
		log.Warn("status update failed", logging.Field{Key: "error", Value: err})
		return stepFailed
	}

	r.metrics.Transitions.WithLabelValues(string(status)).Inc()
	log.Info("record transitioned",
		logging.Field{Key: "from", Value: string(rec.Status)},
		logging.Field{Key: "to", Value: string(status)})

	// Non-blocking send; drop if buffer is full.
	select {
	case r.events <- Transition{RecordID: rec.ID, ScanID: rec.ScanID, From: rec.Status, To: status, At: time.Now().UTC()}:
	default:
	}
	return stepApplied
}

func (r *Reconciler) report(ctx context.Context, rec model.ScanRecord, res *model.StatusResult) ([]byte, error) {
	if res.HasReport() {
		return res.Report, nil
	}
	if r.fetcher == nil {
		return nil, ErrNoReport
	}
	report, err := r.fetcher.FetchReport(ctx, rec.ScanID)
	if err != nil {
		return nil, fmt.Errorf("fetch report: %w", err)
	}
	if len(report) == 0 {
		return nil, ErrNoReport
	}
	return report, nil
}
