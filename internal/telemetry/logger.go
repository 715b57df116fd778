package telemetry

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger     *logrus.Logger
	loggerOnce sync.Once
	rotator    *lumberjack.Logger
)

// NewLogger builds a JSON logger stamped with the service fields. When
// cfg.LogFile is set, entries also go to a size-rotated file.
func NewLogger(cfg *Config, stdout io.Writer) (*logrus.Logger, *lumberjack.Logger) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "@timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	var file *lumberjack.Logger
	out := stdout
	if cfg.LogFile != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(stdout, file)
	}
	l.SetOutput(out)

	l.AddHook(&serviceHook{fields: logrus.Fields{
		"service.name":    cfg.ServiceName,
		"service.version": cfg.ServiceVersion,
		"environment":     cfg.Environment,
	}})

	return l, file
}

// serviceHook stamps every entry with the service identity
type serviceHook struct {
	fields logrus.Fields
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// InitLogger initializes the global logger with the given configuration
func InitLogger(cfg *Config) {
	loggerOnce.Do(func() {
		logger, rotator = NewLogger(cfg, os.Stdout)
	})
}

// L returns the global logger instance
func L() *logrus.Logger {
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}

// WithContext adds trace information to the logger
func WithContext(ctx context.Context) *logrus.Entry {
	entry := L().WithContext(ctx)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace.id": span.SpanContext().TraceID().String(),
			"span.id":  span.SpanContext().SpanID().String(),
		})
	}

	return entry
}

// CloseLogger flushes and closes the rotated log file, if any
func CloseLogger() error {
	if rotator != nil {
		return rotator.Close()
	}
	return nil
}
