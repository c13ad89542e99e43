package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, format and destination for the process logger.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `mapstructure:"level"`

	// Format is "json" (default) or "text".
	Format string `mapstructure:"format"`

	// File, when set, receives log lines through a rotating writer in
	// addition to stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StdoutLogger is a structured logger backed by logrus.
// It implements Logger and prints JSON lines to stdout unless configured otherwise.
type StdoutLogger struct {
	entry *logrus.Entry
}

var _ Logger = (*StdoutLogger)(nil)

// NewStdoutLogger creates a JSON logger writing to stdout at info level.
// component is optional and is attached to every line.
func NewStdoutLogger(component string) *StdoutLogger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(jsonFormatter())
	return newFromLogrus(l, component)
}

// NewLogger builds a logger from cfg. The returned closer releases the
// rotating file writer, if any.
func NewLogger(cfg Config, component string) (*StdoutLogger, io.Closer, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
			DisableColors:   true,
		})
	default:
		l.SetFormatter(jsonFormatter())
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    max(1, cfg.MaxSizeMB),
			MaxBackups: max(0, cfg.MaxBackups),
			MaxAge:     max(0, cfg.MaxAgeDays),
		}
		l.SetOutput(io.MultiWriter(os.Stdout, lj))
		closer = lj
	} else {
		l.SetOutput(os.Stdout)
	}

	return newFromLogrus(l, component), closer, nil
}

// NewWriterLogger logs JSON lines to w at debug level. Useful in tests that
// assert on output.
func NewWriterLogger(w io.Writer, component string) *StdoutLogger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(jsonFormatter())
	return newFromLogrus(l, component)
}

func newFromLogrus(l *logrus.Logger, component string) *StdoutLogger {
	entry := logrus.NewEntry(l)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return &StdoutLogger{entry: entry}
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	}
}

func toLogrusFields(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		// logrus renders error values as {} in JSON; keep the message.
		if err, ok := f.Value.(error); ok && err != nil {
			out[f.Key] = err.Error()
			continue
		}
		out[f.Key] = f.Value
	}
	return out
}

func (s *StdoutLogger) Debug(msg string, fields ...Field) {
	s.entry.WithFields(toLogrusFields(fields)).Debug(msg)
}

func (s *StdoutLogger) Info(msg string, fields ...Field) {
	s.entry.WithFields(toLogrusFields(fields)).Info(msg)
}

func (s *StdoutLogger) Warn(msg string, fields ...Field) {
	s.entry.WithFields(toLogrusFields(fields)).Warn(msg)
}

func (s *StdoutLogger) Error(msg string, fields ...Field) {
	s.entry.WithFields(toLogrusFields(fields)).Error(msg)
}

func (s *StdoutLogger) With(fields ...Field) Logger {
	return &StdoutLogger{entry: s.entry.WithFields(toLogrusFields(fields))}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
