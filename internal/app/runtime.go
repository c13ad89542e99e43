package app

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/raysh454/zapdash/internal/artifacts"
	"github.com/raysh454/zapdash/internal/assistant"
	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/reconciler"
	"github.com/raysh454/zapdash/internal/records"
	"github.com/raysh454/zapdash/internal/webclient"
	"github.com/raysh454/zapdash/internal/zap"
)

// Runtime owns every long-lived component built from a Config.
type Runtime struct {
	Config     *Config
	Service    *Service
	Reconciler *reconciler.Reconciler
	Registry   *prometheus.Registry

	db  *sql.DB
	web webclient.WebClient
}

// NewRuntime opens storage, builds the remote clients and the reconciler
// and wires them into a Service.
func NewRuntime(cfg *Config, logger logging.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := records.OpenDB(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, db: db}

	recs, err := records.NewStore(db, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("new record store: %w", err)
	}
	arts, err := artifacts.NewFSStore(cfg.ArtifactRoot(), logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("new artifact store: %w", err)
	}

	web, err := webclient.NewNetHTTPClient(cfg.WebClient, logger, nil)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("new webclient: %w", err)
	}
	rt.web = web

	scans, err := zap.NewClient(cfg.Zap, web, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("new scan client: %w", err)
	}

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rc, err := reconciler.New(cfg.Reconciler, scans, recs, arts, logger,
		reconciler.WithMetrics(reconciler.NewMetrics(rt.Registry)))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("new reconciler: %w", err)
	}
	rt.Reconciler = rc

	opts := []ServiceOption{WithSummarizeOnView(cfg.SummarizeOnView), WithCatalog(scans)}
	if cfg.Assistant.BaseURL != "" {
		ai, err := assistant.NewClient(cfg.Assistant, web, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("new assistant client: %w", err)
		}
		opts = append(opts, WithAssistant(ai))
	} else {
		logger.Info("assistant not configured; summaries and chat disabled")
	}

	svc, err := NewService(recs, arts, scans, rc, logger, opts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

// Close stops the service and releases storage and network resources.
func (rt *Runtime) Close() error {
	if rt.Service != nil {
		rt.Service.Close()
	}
	var errs []error
	if rt.web != nil {
		if err := rt.web.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close webclient: %w", err))
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
