package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raysh454/zapdash/internal/app"
	"github.com/raysh454/zapdash/internal/artifacts"
	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/model"
	"github.com/raysh454/zapdash/internal/records"
	"github.com/raysh454/zapdash/internal/utils"
)

const defaultPingInterval = 30 * time.Second

// Server is the HTTP + WebSocket API surface for zapdash.
type Server struct {
	cfg      Config
	service  *app.Service
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
	requests *prometheus.CounterVec
	origins  map[string]struct{}
}

// NewServer builds the router over svc.
func NewServer(cfg Config, svc *app.Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("new server: service is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}

	s := &Server{
		cfg:     cfg,
		service: svc,
		router:  chi.NewRouter(),
		logger:  logger,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapdash",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
	}
	if len(cfg.AllowedOrigins) > 0 {
		s.origins = make(map[string]struct{}, len(cfg.AllowedOrigins))
		for _, raw := range cfg.AllowedOrigins {
			origin, err := utils.Origin(raw)
			if err != nil {
				return nil, fmt.Errorf("new server: allowed origin %q: %w", raw, err)
			}
			s.origins[origin] = struct{}{}
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	if cfg.Registry != nil {
		if err := cfg.Registry.Register(s.requests); err != nil {
			return nil, err
		}
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/tests", s.optionsHandler("POST"))
	r.Options("/configurations", s.optionsHandler("GET"))
	r.Options("/records", s.optionsHandler("GET"))
	r.Options("/records/{id}", s.optionsHandler("GET, DELETE"))
	r.Options("/records/{id}/report", s.optionsHandler("GET"))
	r.Options("/records/{id}/artifact", s.optionsHandler("GET"))
	r.Options("/records/{id}/chat", s.optionsHandler("POST"))

	r.Post("/tests", s.handleSubmitTest)
	r.Get("/configurations", s.handleConfigurations)

	r.Get("/records", s.handleListRecords)
	r.Get("/records/{id}", s.handleGetRecord)
	r.Delete("/records/{id}", s.handleDeleteRecord)
	r.Get("/records/{id}/report", s.handleReport)
	r.Get("/records/{id}/artifact", s.handleArtifact)
	r.Post("/records/{id}/chat", s.handleChat)

	r.Get("/ws/dashboard", s.handleDashboardWS)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{}))
	}
}

func (s *Server) originAllowed(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	raw := r.Header.Get("Origin")
	if raw == "" {
		return true
	}
	origin, err := utils.Origin(raw)
	if err != nil {
		return false
	}
	_, ok := s.origins[origin]
	return ok
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.origins) == 0 {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// instrument logs every request and counts it by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()

		fields := []logging.Field{
			{Key: "method", Value: r.Method},
			{Key: "path", Value: r.URL.Path},
			{Key: "status", Value: status},
			{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
		}
		if q := r.URL.RawQuery; q != "" {
			fields = append(fields, logging.Field{Key: "query", Value: q})
		}
		s.logger.Info("http_request", fields...)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe. Handlers run
// under base so shutdown can end long-lived dashboard streams.
func (s *Server) HTTPServer(base context.Context) *http.Server {
	readTimeout := s.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      0, // allow streaming
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.MarshalWrite(w, v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.UnmarshalRead(r.Body, v, json.MatchCaseInsensitiveNames(true))
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, records.ErrRecordNotFound), errors.Is(err, artifacts.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidRequest), errors.Is(err, artifacts.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrReportNotReady):
		return http.StatusConflict
	case errors.Is(err, app.ErrAssistantDisabled), errors.Is(err, app.ErrCatalogDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, app.ErrLaunchFailed), errors.Is(err, app.ErrCatalogUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, app.ErrServiceClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn(op, logging.Field{Key: "error", Value: err})
	}
	writeError(w, status, err.Error())
}

// --- HTTP handlers ---

func (s *Server) handleSubmitTest(w http.ResponseWriter, r *http.Request) {
	var body SubmitTestRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(body.TargetURL) == "" {
		writeError(w, http.StatusBadRequest, "targetURL is required")
		return
	}

	rec, err := s.service.SubmitTest(r.Context(), app.SubmitRequest{
		TestName:  body.TestName,
		TargetURL: body.TargetURL,
		Tool:      body.Tool,
		Type:      body.Type,
	})
	if err != nil {
		s.fail(w, "submitting test", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleConfigurations(w http.ResponseWriter, r *http.Request) {
	cat, err := s.service.Configurations(r.Context())
	if err != nil {
		s.fail(w, "fetching configurations", err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.ListRecords(r.Context())
	if err != nil {
		s.fail(w, "listing records", err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		recs = slices.DeleteFunc(recs, func(rec model.ScanRecord) bool {
			return !strings.EqualFold(string(rec.Status), status)
		})
	}
	if recs == nil {
		recs = []model.ScanRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "getting record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.DeleteRecord(r.Context(), id); err != nil {
		s.fail(w, "deleting record", err)
		return
	}
	s.logger.Info("deleted record", logging.Field{Key: "record_id", Value: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "json" && format != "markdown" {
		writeError(w, http.StatusBadRequest, "format must be json or markdown")
		return
	}

	view, err := s.service.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "formatting report", err)
		return
	}
	if format == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(view.Markdown))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	raw, err := s.service.Artifact(r.Context(), id)
	if err != nil {
		s.fail(w, "reading artifact", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.json"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body ChatRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	answer, err := s.service.Chat(r.Context(), id, body.Question)
	if err != nil {
		s.fail(w, "answering chat", err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{RecordID: id, Answer: answer})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"dashboards": s.service.OpenSessions(),
	})
}
