// Package logging wraps zap.Logger with fields and helper methods specific
// to the pricing engine's three-stage pipeline.
package logging

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with pricing-engine-specific context and helpers.
type Logger struct {
	*zap.Logger
	serviceName string
	version     string
	environment string
}

// Config configures a Logger. Zero value selects sane defaults.
type Config struct {
	Level       string
	ServiceName string
	Version     string
	Environment string
	Format      string // json or console
}

type ctxKey string

// RequestIDKey is the context key holding the inbound request ID.
const RequestIDKey ctxKey = "request_id"

// New creates a Logger for the pricing engine process.
func New(serviceName string, opts ...Config) *Logger {
	cfg := Config{
		Level:       "info",
		ServiceName: serviceName,
		Version:     "0.1.0",
		Environment: getEnv("PRICING_ENGINE_ENV", "development"),
		Format:      "json",
	}
	if len(opts) > 0 {
		o := opts[0]
		if o.Level != "" {
			cfg.Level = o.Level
		}
		if o.ServiceName != "" {
			cfg.ServiceName = o.ServiceName
		}
		if o.Version != "" {
			cfg.Version = o.Version
		}
		if o.Environment != "" {
			cfg.Environment = o.Environment
		}
		if o.Format != "" {
			cfg.Format = o.Format
		}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	base := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	base = base.With(
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
	)

	return &Logger{Logger: base, serviceName: cfg.ServiceName, version: cfg.Version, environment: cfg.Environment}
}

func (l *Logger) clone(base *zap.Logger) *Logger {
	return &Logger{Logger: base, serviceName: l.serviceName, version: l.version, environment: l.environment}
}

// WithRequestID scopes the logger to one inbound request.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.clone(l.Logger.With(zap.String("request_id", requestID)))
}

// WithContext extracts a request ID from ctx, if present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return l.WithRequestID(requestID)
	}
	return l
}

// WithProposal scopes the logger to one proposal.
func (l *Logger) WithProposal(proposalID string) *Logger {
	return l.clone(l.Logger.With(zap.String("proposal_id", proposalID)))
}

// WithCalc scopes the logger to one calculation.
func (l *Logger) WithCalc(calcID string) *Logger {
	return l.clone(l.Logger.With(zap.String("calc_id", calcID)))
}

// WithError attaches an error to the logger context.
func (l *Logger) WithError(err error) *Logger {
	return l.clone(l.Logger.With(zap.Error(err)))
}

// StageLogger logs the completion of one pipeline stage.
func (l *Logger) StageLogger(stage string, duration time.Duration, success bool) {
	level := l.Info
	if !success {
		level = l.Error
	}
	level("pipeline stage completed",
		zap.String("stage", stage),
		zap.Duration("duration", duration),
		zap.Bool("success", success),
	)
}

// DatabaseQueryLogger logs one database round trip.
func (l *Logger) DatabaseQueryLogger(query string, duration time.Duration, rowsAffected int64) {
	l.Debug("database query",
		zap.String("query", query),
		zap.Duration("duration", duration),
		zap.Int64("rows_affected", rowsAffected),
	)
}

// ExternalCallLogger logs one outbound call to the broker or a webhook.
func (l *Logger) ExternalCallLogger(target, operation string, duration time.Duration, success bool) {
	level := l.Info
	if !success {
		level = l.Error
	}
	level("external call",
		zap.String("target", target),
		zap.String("operation", operation),
		zap.Duration("duration", duration),
		zap.Bool("success", success),
	)
}

// CalculationLogger logs the completion of one full calculation.
func (l *Logger) CalculationLogger(proposalID, checksum string, customerTotal string, duration time.Duration) {
	l.Info("calculation completed",
		zap.String("proposal_id", proposalID),
		zap.String("checksum", checksum),
		zap.String("customer_grand_total", customerTotal),
		zap.Duration("duration", duration),
	)
}

// CacheLogger logs one cache operation.
func (l *Logger) CacheLogger(cacheName, operation, key string, hit bool) {
	l.Debug("cache operation",
		zap.String("cache", cacheName),
		zap.String("operation", operation),
		zap.String("key", key),
		zap.Bool("hit", hit),
	)
}

// OutboxLogger logs one outbox publisher decision.
func (l *Logger) OutboxLogger(outboxID, eventType string, status string, retryCount int) {
	l.Info("outbox row processed",
		zap.String("outbox_id", outboxID),
		zap.String("event_type", eventType),
		zap.String("status", status),
		zap.Int("retry_count", retryCount),
	)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var global *Logger

// Init sets the process-wide global logger.
func Init(serviceName string, opts ...Config) {
	global = New(serviceName, opts...)
}

// Global returns the process-wide logger, creating a default one if Init
// was never called.
func Global() *Logger {
	if global == nil {
		global = New("pricing-engine")
	}
	return global
}
