package breakglass

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/authz-go/internal/audit"
	"github.com/gatehouse-io/authz-go/internal/token"
	"github.com/gatehouse-io/authz-go/internal/types"
)

// Approver roles on the escalation ladder.
const (
	RoleSecurityManager   = "SECURITY_MANAGER"
	RoleCISO              = "CISO"
	RoleIncidentCommander = "INCIDENT_COMMANDER"
)

// ActivationReviewScore is the fixed review score attached to every
// activation, regardless of emergency type.
const ActivationReviewScore = 95

type Config struct {
	// Ladder lists the approver roles allowed to sign. Removing
	// INCIDENT_COMMANDER disables the single-signature fast path.
	Ladder          []string
	DefaultDuration time.Duration
	MaxDuration     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Ladder:          []string{RoleSecurityManager, RoleCISO, RoleIncidentCommander},
		DefaultDuration: 30 * time.Minute,
		MaxDuration:     4 * time.Hour,
	}
}

// Manager drives the emergency access workflow:
// PENDING_DUAL_APPROVAL -> PENDING_SECOND_APPROVAL -> ACTIVE, or DENIED.
// Activation requires two distinct approver identities with distinct ladder
// roles, or a single INCIDENT_COMMANDER signature.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	requests map[string]*types.BreakGlassRequest
	timers   map[string]*time.Timer
	tokens   *token.Store
	sink     audit.Sink
	rev      uint64
	now      func() time.Time
}

func NewManager(cfg Config, tokens *token.Store, sink audit.Sink) *Manager {
	if len(cfg.Ladder) == 0 {
		cfg = DefaultConfig()
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 30 * time.Minute
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 4 * time.Hour
	}
	return &Manager{
		cfg:      cfg,
		requests: make(map[string]*types.BreakGlassRequest),
		timers:   make(map[string]*time.Timer),
		tokens:   tokens,
		sink:     sink,
		now:      time.Now,
	}
}

func (m *Manager) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rev
}

type RequestParams struct {
	TenantID          string
	RequestedBy       string
	EmergencyType     string
	Justification     string
	Permissions       []types.Permission
	EstimatedDuration time.Duration
}

func (m *Manager) Request(ctx context.Context, p RequestParams) (*types.BreakGlassRequest, error) {
	if p.RequestedBy == "" || p.EmergencyType == "" || len(p.Permissions) == 0 {
		return nil, types.ErrInvalidRequest
	}
	dur := p.EstimatedDuration
	if dur <= 0 {
		dur = m.cfg.DefaultDuration
	}
	if dur > m.cfg.MaxDuration {
		dur = m.cfg.MaxDuration
	}

	req := &types.BreakGlassRequest{
		RequestID:         uuid.NewString(),
		TenantID:          p.TenantID,
		RequestedBy:       p.RequestedBy,
		EmergencyType:     p.EmergencyType,
		Justification:     p.Justification,
		Permissions:       append([]types.Permission(nil), p.Permissions...),
		Status:            types.BreakGlassStatusPendingDualApproval,
		EstimatedDuration: dur,
		RequestedAt:       m.now().UTC(),
	}

	m.mu.Lock()
	m.requests[req.RequestID] = req
	m.mu.Unlock()

	audit.Emit(ctx, m.sink, audit.Event{
		Type:     "break_glass_requested",
		Severity: audit.SeverityWarning,
		TenantID: req.TenantID,
		Actor:    req.RequestedBy,
		Details: map[string]any{
			"request_id":     req.RequestID,
			"stage":          string(req.Status),
			"emergency_type": req.EmergencyType,
		},
	})
	return clone(req), nil
}

// Approve records one signature and advances the state machine. An
// INCIDENT_COMMANDER signature activates directly; this bypass of dual
// control is compensated by a CRITICAL audit alert and the fixed review
// score on activation.
func (m *Manager) Approve(ctx context.Context, requestID, approverID, role string) (*types.BreakGlassRequest, error) {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	if !ok {
		m.mu.Unlock()
		return nil, types.ErrNotFound
	}
	if req.Status != types.BreakGlassStatusPendingDualApproval &&
		req.Status != types.BreakGlassStatusPendingSecondApproval {
		m.mu.Unlock()
		return nil, types.ErrNotAuthorized
	}
	if !onLadder(m.cfg.Ladder, role) {
		m.mu.Unlock()
		return nil, types.ErrBreakGlassApprovalRoleInvalid
	}
	if approverID == req.RequestedBy {
		m.mu.Unlock()
		return nil, types.ErrBreakGlassApprovalRoleInvalid
	}
	for _, a := range req.Approvals {
		if a.ApproverID == approverID {
			m.mu.Unlock()
			return nil, types.ErrDuplicateApprover
		}
	}

	req.Approvals = append(req.Approvals, types.Approval{
		ApproverID: approverID,
		Role:       role,
		At:         m.now().UTC(),
	})

	activate := false
	switch {
	case role == RoleIncidentCommander:
		// Single-signature fast path.
		activate = true
	case req.Status == types.BreakGlassStatusPendingSecondApproval && distinctRoles(req.Approvals):
		// Second signature with a distinct role (CISO completing a
		// SECURITY_MANAGER approval, or any distinct-role pair).
		activate = true
	default:
		req.Status = types.BreakGlassStatusPendingSecondApproval
	}

	var out *types.BreakGlassRequest
	var err error
	if activate {
		req.Status = types.BreakGlassStatusApproved
		out, err = m.activateLocked(ctx, req)
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}
	} else {
		out = clone(req)
		m.mu.Unlock()
		audit.Emit(ctx, m.sink, audit.Event{
			Type:     "break_glass_approved",
			Severity: audit.SeverityWarning,
			TenantID: out.TenantID,
			Actor:    approverID,
			Details: map[string]any{
				"request_id": out.RequestID,
				"stage":      string(out.Status),
				"role":       role,
			},
		})
	}
	return out, nil
}

// activateLocked issues the emergency access token and schedules the
// auto-revocation at estimated duration expiry. Callers hold m.mu.
func (m *Manager) activateLocked(ctx context.Context, req *types.BreakGlassRequest) (*types.BreakGlassRequest, error) {
	now := m.now().UTC()
	expires := now.Add(req.EstimatedDuration)

	value, err := m.tokens.Issue(ctx, token.Record{
		Kind:        token.KindEmergencyAccess,
		Subject:     req.RequestedBy,
		TenantID:    req.TenantID,
		GrantID:     req.RequestID,
		Permissions: req.Permissions,
		ExpiresAt:   expires,
	})
	if err != nil {
		return nil, err
	}

	req.Status = types.BreakGlassStatusActive
	req.EmergencyAccessToken = value
	req.ActivatedAt = &now
	req.ExpiresAt = &expires
	m.rev++

	// Auto-revocation does not rely on callers: expire the request even if
	// nothing touches it again. The resolver independently time-checks.
	id := req.RequestID
	m.timers[id] = time.AfterFunc(req.EstimatedDuration, func() { m.expire(id) })

	out := clone(req)
	lastRole := ""
	if n := len(req.Approvals); n > 0 {
		lastRole = req.Approvals[n-1].Role
	}
	audit.Emit(ctx, m.sink, audit.Event{
		Type:     "break_glass_activated",
		Severity: audit.SeverityCritical,
		TenantID: req.TenantID,
		Actor:    req.RequestedBy,
		Details: map[string]any{
			"request_id":     req.RequestID,
			"stage":          string(types.BreakGlassStatusActive),
			"emergency_type": req.EmergencyType,
			"review_score":   ActivationReviewScore,
			"risk_score":     ActivationReviewScore,
			"approved_by":    lastRole,
			"expires_at":     expires,
			"fast_path":      lastRole == RoleIncidentCommander,
		},
	})
	return out, nil
}

func (m *Manager) expire(requestID string) {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	if !ok || req.Status != types.BreakGlassStatusActive {
		m.mu.Unlock()
		return
	}
	req.Status = types.BreakGlassStatusExpired
	m.rev++
	delete(m.timers, requestID)
	tenant := req.TenantID
	m.mu.Unlock()

	if m.tokens != nil {
		m.tokens.RevokeGrant(context.Background(), requestID)
	}
	audit.Emit(context.Background(), m.sink, audit.Event{
		Type:     "break_glass_expired",
		Severity: audit.SeverityWarning,
		TenantID: tenant,
		Details:  map[string]any{"request_id": requestID},
	})
}

// Deny terminates a pending request.
func (m *Manager) Deny(ctx context.Context, requestID, approverID, reason string) (*types.BreakGlassRequest, error) {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	if !ok {
		m.mu.Unlock()
		return nil, types.ErrNotFound
	}
	if req.Status == types.BreakGlassStatusActive || req.Status == types.BreakGlassStatusExpired {
		m.mu.Unlock()
		return nil, types.ErrNotAuthorized
	}
	req.Status = types.BreakGlassStatusDenied
	out := clone(req)
	m.mu.Unlock()

	audit.Emit(ctx, m.sink, audit.Event{
		Type:     "break_glass_denied",
		Severity: audit.SeverityWarning,
		TenantID: out.TenantID,
		Actor:    approverID,
		Details: map[string]any{
			"request_id": requestID,
			"stage":      string(types.BreakGlassStatusDenied),
			"reason":     reason,
		},
	})
	return out, nil
}

func (m *Manager) Get(requestID string) (*types.BreakGlassRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return clone(req), nil
}

// ActiveGrantsFor renders active emergency accesses as synthetic grants.
func (m *Manager) ActiveGrantsFor(userID string, now time.Time) []types.SyntheticGrant {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.SyntheticGrant
	for _, req := range m.requests {
		if req.Status != types.BreakGlassStatusActive || req.RequestedBy != userID {
			continue
		}
		if req.ExpiresAt != nil && !now.Before(*req.ExpiresAt) {
			continue
		}
		g := types.SyntheticGrant{
			ID:          req.RequestID,
			Source:      types.GrantSourceBreakGlass,
			UserID:      req.RequestedBy,
			Permissions: append([]types.Permission(nil), req.Permissions...),
			IssuedAt:    *req.ActivatedAt,
		}
		if req.ExpiresAt != nil {
			g.ExpiresAt = *req.ExpiresAt
		}
		out = append(out, g)
	}
	return out
}

// Shutdown stops all pending expiry timers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

func onLadder(ladder []string, role string) bool {
	for _, r := range ladder {
		if r == role {
			return true
		}
	}
	return false
}

func distinctRoles(approvals []types.Approval) bool {
	seen := map[string]bool{}
	for _, a := range approvals {
		seen[a.Role] = true
	}
	return len(seen) >= 2
}

func clone(req *types.BreakGlassRequest) *types.BreakGlassRequest {
	c := *req
	c.Permissions = append([]types.Permission(nil), req.Permissions...)
	c.Approvals = append([]types.Approval(nil), req.Approvals...)
	return &c
}
