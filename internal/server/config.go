package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/raysh454/zapdash/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr  string
	ReadTimeout time.Duration

	// AllowedOrigins restricts CORS and websocket origins. Empty allows any.
	AllowedOrigins []string

	// PingInterval keeps dashboard websockets alive. Zero means 30s.
	PingInterval time.Duration

	Logger logging.Logger

	// Registry, when set, receives the HTTP metrics and is served on /metrics.
	Registry *prometheus.Registry
}
