package audit

import (
	"context"
	"log/slog"
)

// SlogSink writes audit events as one structured log line each.
type SlogSink struct {
	L *slog.Logger
}

func NewSlogSink(l *slog.Logger) *SlogSink {
	if l == nil {
		l = slog.Default()
	}
	return &SlogSink{L: l}
}

func (s *SlogSink) Record(ctx context.Context, ev Event) {
	level := slog.LevelInfo
	switch ev.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}
	s.L.Log(ctx, level, "audit",
		"event", ev.Type,
		"severity", string(ev.Severity),
		"tenant", ev.TenantID,
		"actor", ev.Actor,
		"details", ev.Details,
	)
}
