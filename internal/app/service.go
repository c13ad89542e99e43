// Package app wires the record store, artifact store, scan service clients
// and reconciler into the operations the API exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/raysh454/zapdash/internal/artifacts"
	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/model"
	"github.com/raysh454/zapdash/internal/reconciler"
	"github.com/raysh454/zapdash/internal/records"
	"github.com/raysh454/zapdash/internal/report"
	"github.com/raysh454/zapdash/internal/utils"
)

const (
	// DefaultTestName is used when a submission does not name its test.
	DefaultTestName = "My First Test"

	// DefaultTestType is the scan mode used when neither the submission nor
	// the catalog names one.
	DefaultTestType = "baseline"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrLaunchFailed       = errors.New("scan launch failed")
	ErrReportNotReady     = errors.New("report not available yet")
	ErrAssistantDisabled  = errors.New("assistant is not configured")
	ErrServiceClosed      = errors.New("service closed")
	ErrReportUnreadable   = errors.New("stored report is not valid JSON")
	ErrCatalogDisabled    = errors.New("scan configuration catalog is not configured")
	ErrCatalogUnavailable = errors.New("scan configuration catalog unavailable")
)

// Launcher starts remote scans.
type Launcher interface {
	Launch(ctx context.Context, targetURL string, mode model.ScanMode) (*model.LaunchResult, error)
}

// Catalog publishes the scan tools and modes a submission may choose from.
type Catalog interface {
	Configurations(ctx context.Context) (*model.Catalog, error)
}

// Assistant produces report summaries and answers report questions.
type Assistant interface {
	Summarize(ctx context.Context, report []byte) (string, error)
	Ask(ctx context.Context, question string, report []byte) (string, error)
}

// RecordStore is what the service needs from the record store.
type RecordStore interface {
	Create(ctx context.Context, in records.NewRecord) (*model.ScanRecord, error)
	Get(ctx context.Context, id string) (*model.ScanRecord, error)
	List(ctx context.Context) ([]model.ScanRecord, error)
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context) (<-chan []model.ScanRecord, func(), error)
}

// ArtifactStore is what the service needs from the artifact store.
type ArtifactStore interface {
	Write(ctx context.Context, key string, content []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SubmitRequest is one test submission.
type SubmitRequest struct {
	TestName  string `json:"testName"`
	TargetURL string `json:"targetURL"`
	Tool      string `json:"tool,omitempty"`
	Type      string `json:"type,omitempty"`
}

// ReportView is a formatted report ready for display.
type ReportView struct {
	Record   model.ScanRecord `json:"record"`
	Document *report.Document `json:"document"`
	Markdown string           `json:"markdown"`

	// Summarized is set when this view added the AI summary.
	Summarized bool `json:"summarized"`
}

// Service implements the dashboard operations.
type Service struct {
	records    RecordStore
	artifacts  ArtifactStore
	launcher   Launcher
	assistant  Assistant
	catalog    Catalog
	reconciler *reconciler.Reconciler
	logger     logging.Logger

	summarizeOnView bool
	summaries       singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	sessMu   sync.Mutex
	sessions int
	session  *reconciler.Session

	watchMu  sync.Mutex
	watchers map[int]chan reconciler.Transition
	nextW    int
	closed   bool
}

// ServiceOption adjusts a Service at construction.
type ServiceOption func(*Service)

// WithAssistant enables summaries and chat.
func WithAssistant(a Assistant) ServiceOption {
	return func(s *Service) { s.assistant = a }
}

// WithCatalog enables the configuration catalog. Submissions are then
// checked against it.
func WithCatalog(c Catalog) ServiceOption {
	return func(s *Service) { s.catalog = c }
}

// WithSummarizeOnView controls whether viewing an unsummarized report asks
// the assistant for a summary.
func WithSummarizeOnView(on bool) ServiceOption {
	return func(s *Service) { s.summarizeOnView = on }
}

// NewService builds the service. rc may be nil, in which case dashboard
// sessions do not poll.
func NewService(
	recs RecordStore,
	arts ArtifactStore,
	launcher Launcher,
	rc *reconciler.Reconciler,
	logger logging.Logger,
	opts ...ServiceOption,
) (*Service, error) {
	if recs == nil || arts == nil || launcher == nil {
		return nil, errors.New("new service: record store, artifact store and launcher are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		records:         recs,
		artifacts:       arts,
		launcher:        launcher,
		reconciler:      rc,
		logger:          logger.With(logging.Field{Key: "component", Value: "service"}),
		summarizeOnView: true,
		ctx:             ctx,
		cancel:          cancel,
		watchers:        make(map[int]chan reconciler.Transition),
	}
	for _, opt := range opts {
		opt(s)
	}
	if rc != nil {
		go s.fanOut(rc.Events())
	}
	return s, nil
}

// SubmitTest launches a scan for the request's target and records it.
func (s *Service) SubmitTest(ctx context.Context, req SubmitRequest) (*model.ScanRecord, error) {
	target, err := utils.NormalizeTarget(req.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("%w: target url: %v", ErrInvalidRequest, err)
	}
	name := strings.TrimSpace(req.TestName)
	if name == "" {
		name = DefaultTestName
	}
	mode, err := s.scanMode(ctx, req)
	if err != nil {
		return nil, err
	}

	launched, err := s.launcher.Launch(ctx, target, mode)
	if err != nil {
		s.logger.Warn("scan launch failed",
			logging.Field{Key: "target", Value: target},
			logging.Field{Key: "error", Value: err})
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	status := model.StatusInitiated
	if parsed, err := model.ParseScanStatus(launched.Status); err == nil {
		status = parsed
	}

	rec, err := s.records.Create(ctx, records.NewRecord{
		TestName:  name,
		TargetURL: target,
		TestDate:  time.Now().UTC().Format(time.RFC3339),
		Type:      mode.Mode,
		ScanID:    launched.ScanID,
		Status:    status,
	})
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	s.logger.Info("test submitted",
		logging.Field{Key: "record_id", Value: rec.ID},
		logging.Field{Key: "scan_id", Value: rec.ScanID},
		logging.Field{Key: "target", Value: target})
	return rec, nil
}

// scanMode resolves the tool and mode of a submission. Without a catalog the
// requested values pass through, with the mode defaulting to baseline. With
// one, blanks take the catalog's defaults and the result must be offered.
// A catalog that cannot be fetched does not block submissions.
func (s *Service) scanMode(ctx context.Context, req SubmitRequest) (model.ScanMode, error) {
	mode := model.ScanMode{Tool: strings.TrimSpace(req.Tool), Mode: strings.TrimSpace(req.Type)}

	if s.catalog != nil {
		cat, err := s.catalog.Configurations(ctx)
		if err != nil {
			s.logger.Warn("configuration catalog unavailable; submitting unchecked",
				logging.Field{Key: "error", Value: err})
		} else {
			def := cat.Default()
			if mode.Tool == "" {
				mode.Tool = def.Tool
			}
			if mode.Mode == "" && mode.Tool == def.Tool {
				mode.Mode = def.Mode
			}
			if mode.Mode == "" {
				mode.Mode = DefaultTestType
			}
			if mode.Tool != "" && !cat.Supports(mode) {
				return model.ScanMode{}, fmt.Errorf("%w: %s does not offer mode %q", ErrInvalidRequest, mode.Tool, mode.Mode)
			}
			return mode, nil
		}
	}

	if mode.Mode == "" {
		mode.Mode = DefaultTestType
	}
	return mode, nil
}

// Configurations returns the scan configuration catalog.
func (s *Service) Configurations(ctx context.Context) (*model.Catalog, error) {
	if s.catalog == nil {
		return nil, ErrCatalogDisabled
	}
	cat, err := s.catalog.Configurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return cat, nil
}

func (s *Service) ListRecords(ctx context.Context) ([]model.ScanRecord, error) {
	return s.records.List(ctx)
}

func (s *Service) GetRecord(ctx context.Context, id string) (*model.ScanRecord, error) {
	return s.records.Get(ctx, id)
}

// DeleteRecord removes a record and its artifact.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.artifacts.Delete(ctx, id); err != nil {
		s.logger.Warn("artifact delete failed",
			logging.Field{Key: "record_id", Value: id},
			logging.Field{Key: "error", Value: err})
	}
	return nil
}

// Artifact returns the raw stored report of a completed record.
func (s *Service) Artifact(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.readArtifact(ctx, rec)
}

func (s *Service) readArtifact(ctx context.Context, rec *model.ScanRecord) ([]byte, error) {
	raw, err := s.artifacts.Read(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, artifacts.ErrArtifactNotFound) && rec.Status != model.StatusCompleted {
			return nil, fmt.Errorf("%w: record is %s", ErrReportNotReady, rec.Status)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return raw, nil
}

// Report formats a completed record's report. When summaries are enabled
// and the stored report has none, one is requested once and written back
// into the artifact. A failed summary request still returns the report.
func (s *Service) Report(ctx context.Context, id string) (*ReportView, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := s.readArtifact(ctx, rec)
	if err != nil {
		return nil, err
	}
	v, err := report.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportUnreadable, err)
	}

	view := &ReportView{Record: *rec}
	if s.summarizeOnView && s.assistant != nil && !report.HasSummary(v) {
		if enriched, ok := s.summarize(ctx, rec.ID, raw, v); ok {
			v = enriched
			view.Summarized = true
		}
	}

	view.Document = report.Format(v)
	view.Markdown = report.Markdown(view.Document)
	return view, nil
}

// summarize deduplicates concurrent summary requests for the same record.
func (s *Service) summarize(ctx context.Context, id string, raw []byte, v report.Value) (report.Value, bool) {
	out, err, _ := s.summaries.Do(id, func() (any, error) {
		text, err := s.assistant.Summarize(ctx, raw)
		if err != nil {
			return nil, err
		}
		enriched := report.WithSummary(v, text)
		if err := s.artifacts.Write(ctx, id, report.Encode(enriched)); err != nil {
			s.logger.Warn("saving summarized report failed",
				logging.Field{Key: "record_id", Value: id},
				logging.Field{Key: "error", Value: err})
		}
		return enriched, nil
	})
	if err != nil {
		s.logger.Warn("report summary failed",
			logging.Field{Key: "record_id", Value: id},
			logging.Field{Key: "error", Value: err})
		return nil, false
	}
	return out.(report.Value), true
}

// Chat answers a question about a completed record's report.
func (s *Service) Chat(ctx context.Context, id, question string) (string, error) {
	if s.assistant == nil {
		return "", ErrAssistantDisabled
	}
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("%w: empty question", ErrInvalidRequest)
	}
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return "", err
	}
	raw, err := s.readArtifact(ctx, rec)
	if err != nil {
		return "", err
	}
	answer, err := s.assistant.Ask(ctx, question, raw)
	if err != nil {
		return "", fmt.Errorf("ask assistant: %w", err)
	}
	return answer, nil
}

// Subscribe streams the live record set.
func (s *Service) Subscribe(ctx context.Context) (<-chan []model.ScanRecord, func(), error) {
	return s.records.Subscribe(ctx)
}
