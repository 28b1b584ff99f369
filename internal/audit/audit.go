package audit

import (
	"context"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

type Event struct {
	Type     string         `json:"type"`
	Severity Severity       `json:"severity"`
	TenantID string         `json:"tenant_id,omitempty"`
	Actor    string         `json:"actor,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

// Sink receives structured audit records. Implementations must not block
// the caller; the engine treats every Record call as fire-and-forget.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Emit sends an event to the sink, tolerating nil sinks and panicking
// implementations. Audit failures never fail an authorization decision.
func Emit(ctx context.Context, s Sink, ev Event) {
	if s == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	defer func() { _ = recover() }()
	s.Record(ctx, ev)
}
