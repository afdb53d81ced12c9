package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-playground/internal/config"
)

// New builds the process logger on stdout. dev forces the console format
// and turns sampling off.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return NewWriter(os.Stdout, cfg, dev)
}

// NewWriter is New with an explicit sink. Unknown levels fall back to info.
func NewWriter(w io.Writer, cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if dev || strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()

	if cfg.Sampling && !dev {
		// Debug and info are sampled after a burst; warnings and errors never.
		l = l.Sample(zerolog.LevelSampler{
			DebugSampler: &zerolog.BurstSampler{Burst: 20, Period: time.Second, NextSampler: &zerolog.BasicSampler{N: 100}},
			InfoSampler:  &zerolog.BurstSampler{Burst: 100, Period: time.Second, NextSampler: &zerolog.BasicSampler{N: 10}},
		})
	}
	return &l
}

type ctxKey int

const (
	traceKey ctxKey = iota
	sessionKey
)

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey, id)
}

func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceKey).(string)
	return v
}

func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionKey).(string)
	return v
}

// With returns base enriched with the trace and session IDs carried by ctx.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	c := base.With()
	if id := TraceID(ctx); id != "" {
		c = c.Str("trace_id", id)
	}
	if id := SessionID(ctx); id != "" {
		c = c.Str("session_id", id)
	}
	l := c.Logger()
	return &l
}

// Timed logs op's duration at trace level when the returned func runs:
//
//	defer logging.Timed(log, "playground.send")()
func Timed(logger *zerolog.Logger, op string) func() {
	start := time.Now()
	return func() {
		logger.Trace().Str("op", op).Dur("took", time.Since(start)).Send()
	}
}

// MaskKey keeps enough of an API key to tell keys apart in logs.
func MaskKey(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}
