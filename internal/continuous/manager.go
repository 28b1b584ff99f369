package continuous

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/authz-go/internal/audit"
	"github.com/gatehouse-io/authz-go/internal/types"
)

// DefaultRevalidationInterval is how often a standing connection is
// re-resolved when the holder gives no interval of its own.
const DefaultRevalidationInterval = 300 * time.Second

// Evaluator re-runs the decision path for a connection's permissions.
type Evaluator interface {
	Evaluate(ctx context.Context, req types.AuthorizationRequest) (types.Decision, error)
}

// DeadlineHint lets grant sources cap the next revalidation deadline; a
// connection backed by a JIT grant must revalidate at or before the grant
// expires, whatever its normal interval.
type DeadlineHint func(userID string, now time.Time) (time.Time, bool)

// Termination is pushed to the holder when a connection is terminated so
// the transport layer can close the underlying connection.
type Termination struct {
	ConnectionID         string `json:"connection_id"`
	UserID               string `json:"user_id"`
	Reason               string `json:"reason"`
	RequiresReconnection bool   `json:"requires_reconnection"`
}

// RevalidationResult is the outcome of one revalidation pass.
type RevalidationResult struct {
	StillAuthorized      bool   `json:"still_authorized"`
	Reason               string `json:"reason,omitempty"`
	RequiresReconnection bool   `json:"requires_reconnection"`
}

type conn struct {
	types.LongLivedConnection
	timer *time.Timer
}

// Manager keeps standing authorizations honest: every connection is
// re-resolved on its own timer, independent of request traffic, and
// terminated fail-closed when the decision flips or the resolver errors.
type Manager struct {
	mu       sync.Mutex
	conns    map[string]*conn
	eval     Evaluator
	hints    []DeadlineHint
	sink     audit.Sink
	interval time.Duration
	terms    chan Termination
	now      func() time.Time
}

func NewManager(eval Evaluator, sink audit.Sink) *Manager {
	return &Manager{
		conns:    make(map[string]*conn),
		eval:     eval,
		sink:     sink,
		interval: DefaultRevalidationInterval,
		terms:    make(chan Termination, 64),
		now:      time.Now,
	}
}

// SetInterval overrides the default revalidation interval for new
// connections.
func (m *Manager) SetInterval(d time.Duration) {
	if d > 0 {
		m.mu.Lock()
		m.interval = d
		m.mu.Unlock()
	}
}

// AddDeadlineHint registers a source of earlier revalidation deadlines.
func (m *Manager) AddDeadlineHint(h DeadlineHint) {
	m.mu.Lock()
	m.hints = append(m.hints, h)
	m.mu.Unlock()
}

// Terminations delivers push notifications for terminated connections.
func (m *Manager) Terminations() <-chan Termination {
	return m.terms
}

type EstablishParams struct {
	TenantID    string
	UserID      string
	Resource    string
	Permissions []types.Permission
	Context     types.RequestContext
	Interval    time.Duration
}

// Establish registers a long-lived connection. The connection moves
// ESTABLISHED -> ACTIVE after the first successful resolve of every backing
// permission; a denied permission fails establishment.
func (m *Manager) Establish(ctx context.Context, p EstablishParams) (*types.LongLivedConnection, error) {
	if p.UserID == "" || len(p.Permissions) == 0 {
		return nil, types.ErrInvalidRequest
	}

	c := &conn{
		LongLivedConnection: types.LongLivedConnection{
			ConnectionID:         uuid.NewString(),
			TenantID:             p.TenantID,
			UserID:               p.UserID,
			Resource:             p.Resource,
			Permissions:          append([]types.Permission(nil), p.Permissions...),
			Status:               types.ConnectionStatusEstablished,
			RevalidationInterval: p.Interval,
			EstablishedAt:        m.now().UTC(),
			Context:              p.Context,
		},
	}
	if c.RevalidationInterval <= 0 {
		c.RevalidationInterval = m.interval
	}

	if reason, ok := m.resolveAll(ctx, &c.LongLivedConnection); !ok {
		audit.Emit(ctx, m.sink, audit.Event{
			Type:     "connection_rejected",
			Severity: audit.SeverityWarning,
			TenantID: p.TenantID,
			Actor:    p.UserID,
			Details:  map[string]any{"reason": reason, "resource": p.Resource},
		})
		return nil, types.ErrNotAuthorized
	}
	c.Status = types.ConnectionStatusActive

	m.mu.Lock()
	m.conns[c.ConnectionID] = c
	m.scheduleLocked(c)
	m.mu.Unlock()

	audit.Emit(ctx, m.sink, audit.Event{
		Type:     "connection_established",
		Severity: audit.SeverityInfo,
		TenantID: p.TenantID,
		Actor:    p.UserID,
		Details: map[string]any{
			"connection_id":     c.ConnectionID,
			"resource":          p.Resource,
			"interval_seconds":  int(c.RevalidationInterval.Seconds()),
			"next_revalidation": c.NextRevalidationAt,
		},
	})
	out := c.LongLivedConnection
	return &out, nil
}

// scheduleLocked arms the connection's timer at the earlier of its normal
// interval and any hinted deadline (JIT grant expiry). Callers hold m.mu.
func (m *Manager) scheduleLocked(c *conn) {
	now := m.now().UTC()
	deadline := now.Add(c.RevalidationInterval)
	for _, h := range m.hints {
		if t, ok := h(c.UserID, now); ok && t.Before(deadline) {
			deadline = t
		}
	}
	c.NextRevalidationAt = deadline
	if c.timer != nil {
		c.timer.Stop()
	}
	id := c.ConnectionID
	c.timer = time.AfterFunc(deadline.Sub(now), func() {
		m.revalidate(context.Background(), id, true)
	})
}

// Revalidate re-resolves the connection's permissions on demand.
func (m *Manager) Revalidate(ctx context.Context, connectionID string) (RevalidationResult, error) {
	return m.revalidate(ctx, connectionID, false)
}

func (m *Manager) revalidate(ctx context.Context, connectionID string, timed bool) (RevalidationResult, error) {
	m.mu.Lock()
	c, ok := m.conns[connectionID]
	if !ok || c.Status == types.ConnectionStatusTerminated {
		m.mu.Unlock()
		return RevalidationResult{}, types.ErrNotFound
	}
	c.Status = types.ConnectionStatusRevalidating
	snapshot := c.LongLivedConnection // copy for evaluation outside the lock
	m.mu.Unlock()

	reason, authorized := m.resolveAll(ctx, &snapshot)

	m.mu.Lock()
	c, ok = m.conns[connectionID]
	if !ok {
		m.mu.Unlock()
		return RevalidationResult{}, types.ErrNotFound
	}
	if authorized {
		c.Status = types.ConnectionStatusActive
		if timed || c.timer == nil {
			m.scheduleLocked(c)
		}
		m.mu.Unlock()
		return RevalidationResult{StillAuthorized: true}, nil
	}

	c.Status = types.ConnectionStatusTerminated
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	delete(m.conns, connectionID)
	term := Termination{
		ConnectionID:         connectionID,
		UserID:               c.UserID,
		Reason:               reason,
		RequiresReconnection: true,
	}
	m.mu.Unlock()

	select {
	case m.terms <- term:
	default: // holder is not draining; termination state still stands
	}
	audit.Emit(ctx, m.sink, audit.Event{
		Type:     "connection_terminated",
		Severity: audit.SeverityWarning,
		TenantID: snapshot.TenantID,
		Actor:    snapshot.UserID,
		Details: map[string]any{
			"connection_id": connectionID,
			"reason":        reason,
			"timed":         timed,
		},
	})
	return RevalidationResult{
		StillAuthorized:      false,
		Reason:               reason,
		RequiresReconnection: true,
	}, nil
}

// resolveAll evaluates every backing permission. Ambiguous results are
// fail-closed: a resolver error counts as a deny, never as keep-alive.
func (m *Manager) resolveAll(ctx context.Context, c *types.LongLivedConnection) (string, bool) {
	for _, perm := range c.Permissions {
		resource := perm.Resource
		if resource == "*" && c.Resource != "" {
			resource = c.Resource
		}
		dec, err := m.eval.Evaluate(ctx, types.AuthorizationRequest{
			TenantID: c.TenantID,
			Subject:  c.UserID,
			Resource: resource,
			Action:   perm.Action,
			Context:  c.Context,
		})
		if err != nil {
			return types.ReasonEvaluationError, false
		}
		if !dec.Authorized {
			return dec.Reason, false
		}
	}
	return "", true
}

// OnPermissionChange forces immediate revalidation of every connection held
// by one of the affected users, ahead of its scheduled tick. Delegation
// revocation uses this so open connections relying on a revoked grant do
// not coast to the next interval.
func (m *Manager) OnPermissionChange(affectedUsers []string) {
	affected := map[string]bool{}
	for _, u := range affectedUsers {
		affected[u] = true
	}
	m.mu.Lock()
	var ids []string
	for id, c := range m.conns {
		if affected[c.UserID] {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	for _, id := range ids {
		go m.revalidate(context.Background(), id, true)
	}
}

// Close cancels the connection's timer and removes it without notifying the
// holder; the client went away on its own.
func (m *Manager) Close(connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connectionID]
	if !ok {
		return types.ErrNotFound
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.Status = types.ConnectionStatusTerminated
	delete(m.conns, connectionID)
	return nil
}

// Get returns a copy of the connection record.
func (m *Manager) Get(connectionID string) (*types.LongLivedConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connectionID]
	if !ok {
		return nil, types.ErrNotFound
	}
	out := c.LongLivedConnection
	return &out, nil
}

// Shutdown stops all timers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.conns {
		if c.timer != nil {
			c.timer.Stop()
		}
		delete(m.conns, id)
	}
}
