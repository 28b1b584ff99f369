package delegation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/authz-go/internal/audit"
	"github.com/gatehouse-io/authz-go/internal/policy"
	"github.com/gatehouse-io/authz-go/internal/types"
)

// PermissionSource reports a user's grant-derived permissions; partial
// policy delegation verifies subset containment against it before
// activation.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID string) ([]types.Permission, error)
}

// Authorizer decides single authorization requests. When the configured
// PermissionSource also implements it, partial delegation falls back to a
// full evaluation for permissions the delegator holds through ordinary
// tenant policies rather than synthetic grants.
type Authorizer interface {
	Evaluate(ctx context.Context, req types.AuthorizationRequest) (types.Decision, error)
}

// RevokeHook is notified after a revocation cascade with the delegatee ids
// whose grants were invalidated. The continuous authorization manager uses
// it to re-resolve dependent connections ahead of their next tick.
type RevokeHook func(affectedUsers []string)

type Engine struct {
	mu          sync.Mutex
	grants      map[string]*types.Delegation
	children    map[string][]string // parent delegation id -> child ids
	byDelegatee map[string][]string // delegatee id -> delegation ids
	rev         uint64
	perms       PermissionSource
	sink        audit.Sink
	hooks       []RevokeHook
	now         func() time.Time
}

func NewEngine(perms PermissionSource, sink audit.Sink) *Engine {
	return &Engine{
		grants:      make(map[string]*types.Delegation),
		children:    make(map[string][]string),
		byDelegatee: make(map[string][]string),
		perms:       perms,
		sink:        sink,
		now:         time.Now,
	}
}

// OnRevoke registers a hook invoked after every revocation cascade.
func (e *Engine) OnRevoke(h RevokeHook) {
	e.mu.Lock()
	e.hooks = append(e.hooks, h)
	e.mu.Unlock()
}

// Revision changes whenever the set of active grants changes; the engine
// folds it into the consistency token.
func (e *Engine) Revision() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rev
}

type CreateParams struct {
	TenantID             string
	DelegatorID          string
	DelegateeID          string
	Permissions          []types.Permission
	Scope                string
	ParentDelegationID   string
	MaxDelegationDepth   int
	ExpiresAt            time.Time
	ApprovalChain        []string
	RequiresAllApprovals bool
}

// CreateDelegation issues a grant from delegator to delegatee. When
// ParentDelegationID is set this is a sub-delegation: the child's depth is
// parent.depth+1 and must stay strictly below the lineage's max depth, and
// the child's permissions must be contained in the parent's. Violations
// fail without creating a record.
func (e *Engine) CreateDelegation(ctx context.Context, p CreateParams) (*types.Delegation, error) {
	if p.DelegatorID == "" || p.DelegateeID == "" || len(p.Permissions) == 0 {
		return nil, types.ErrInvalidRequest
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	depth := 0
	maxDepth := p.MaxDelegationDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}
	if p.ParentDelegationID != "" {
		parent, ok := e.grants[p.ParentDelegationID]
		if !ok {
			return nil, types.ErrNotFound
		}
		if parent.DelegateeID != p.DelegatorID || parent.Status != types.DelegationStatusActive {
			return nil, types.ErrNotAuthorized
		}
		depth = parent.DelegationDepth + 1
		maxDepth = parent.MaxDelegationDepth
		if depth >= maxDepth {
			return nil, types.ErrDelegationDepthExceeded
		}
		if !permissionsContained(p.Permissions, parent.Permissions) {
			return nil, types.ErrDelegationPermissionNotOwned
		}
	}

	now := e.now().UTC()
	d := &types.Delegation{
		ID:                   uuid.NewString(),
		TenantID:             p.TenantID,
		DelegatorID:          p.DelegatorID,
		DelegateeID:          p.DelegateeID,
		Permissions:          append([]types.Permission(nil), p.Permissions...),
		Scope:                p.Scope,
		Status:               types.DelegationStatusActive,
		DelegationDepth:      depth,
		MaxDelegationDepth:   maxDepth,
		ParentDelegationID:   p.ParentDelegationID,
		ApprovalChain:        append([]string(nil), p.ApprovalChain...),
		RequiresAllApprovals: p.RequiresAllApprovals,
		CreatedAt:            now,
		ExpiresAt:            p.ExpiresAt,
	}
	if len(d.ApprovalChain) > 0 {
		d.Status = types.DelegationStatusPendingApproval
	}

	e.grants[d.ID] = d
	e.byDelegatee[d.DelegateeID] = append(e.byDelegatee[d.DelegateeID], d.ID)
	if d.ParentDelegationID != "" {
		e.children[d.ParentDelegationID] = append(e.children[d.ParentDelegationID], d.ID)
	}
	e.rev++

	audit.Emit(ctx, e.sink, audit.Event{
		Type:     "delegation_created",
		Severity: audit.SeverityInfo,
		TenantID: d.TenantID,
		Actor:    d.DelegatorID,
		Details: map[string]any{
			"delegation_id": d.ID,
			"delegatee":     d.DelegateeID,
			"depth":         d.DelegationDepth,
			"status":        string(d.Status),
		},
	})
	return cloned(d), nil
}

// CreatePartialPolicyDelegation restricts the delegatee to a subset of what
// the delegator can do, whether held through synthetic grants or ordinary
// tenant policies. Granting a permission the delegator does not hold is a
// fatal validation error.
func (e *Engine) CreatePartialPolicyDelegation(ctx context.Context, p CreateParams) (*types.Delegation, error) {
	if e.perms == nil {
		return nil, types.Err("no permission source configured")
	}
	owned, err := e.perms.EffectivePermissions(ctx, p.DelegatorID)
	if err != nil {
		return nil, err
	}
	for _, perm := range p.Permissions {
		if permissionsContained([]types.Permission{perm}, owned) {
			continue
		}
		if !e.delegatorHolds(ctx, p, perm) {
			return nil, types.ErrDelegationPermissionNotOwned
		}
	}
	return e.CreateDelegation(ctx, p)
}

// delegatorHolds evaluates a single permission for the delegator. The
// grant-derived set is checked first by the caller; this covers permissions
// granted by tenant policies.
func (e *Engine) delegatorHolds(ctx context.Context, p CreateParams, perm types.Permission) bool {
	az, ok := e.perms.(Authorizer)
	if !ok {
		return false
	}
	dec, err := az.Evaluate(ctx, types.AuthorizationRequest{
		TenantID: p.TenantID,
		Subject:  p.DelegatorID,
		Resource: perm.Resource,
		Action:   perm.Action,
	})
	return err == nil && dec.Authorized
}

// ConfigureApprovalChain replaces the approval chain of a delegation that
// has not yet been approved.
func (e *Engine) ConfigureApprovalChain(ctx context.Context, id string, chain []string, requireAll bool) (*types.Delegation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.grants[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	if d.Status != types.DelegationStatusPendingApproval && d.Status != types.DelegationStatusActive {
		return nil, types.ErrNotAuthorized
	}
	if len(d.Approvals) > 0 {
		return nil, types.Err("approval chain locked after first approval")
	}
	d.ApprovalChain = append([]string(nil), chain...)
	d.RequiresAllApprovals = requireAll
	if len(chain) > 0 {
		d.Status = types.DelegationStatusPendingApproval
	} else {
		d.Status = types.DelegationStatusActive
	}
	e.rev++
	return cloned(d), nil
}

// Approve records one approver's sign-off. The delegation becomes ACTIVE
// once every role in the chain has signed (or any one has, when
// RequiresAllApprovals is false).
func (e *Engine) Approve(ctx context.Context, id, approverID, role string) (*types.Delegation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.grants[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	if d.Status != types.DelegationStatusPendingApproval {
		return nil, types.ErrNotAuthorized
	}
	if !contains(d.ApprovalChain, role) {
		return nil, types.ErrApproverRoleInvalid
	}
	for _, a := range d.Approvals {
		if a.ApproverID == approverID {
			return nil, types.ErrDuplicateApprover
		}
	}
	d.Approvals = append(d.Approvals, types.Approval{
		ApproverID: approverID,
		Role:       role,
		At:         e.now().UTC(),
	})

	if e.chainSatisfied(d) {
		d.Status = types.DelegationStatusActive
		e.rev++
	}

	audit.Emit(ctx, e.sink, audit.Event{
		Type:     "delegation_approved",
		Severity: audit.SeverityInfo,
		TenantID: d.TenantID,
		Actor:    approverID,
		Details: map[string]any{
			"delegation_id": d.ID,
			"role":          role,
			"status":        string(d.Status),
		},
	})
	return cloned(d), nil
}

func (e *Engine) chainSatisfied(d *types.Delegation) bool {
	if !d.RequiresAllApprovals {
		return len(d.Approvals) > 0
	}
	for _, role := range d.ApprovalChain {
		signed := false
		for _, a := range d.Approvals {
			if a.Role == role {
				signed = true
				break
			}
		}
		if !signed {
			return false
		}
	}
	return true
}

// RevokeDelegation revokes the grant and every descendant sub-delegation by
// lineage, then fires the revoke hooks with the affected delegatee ids.
// Revocation is effective immediately: the revision bump invalidates prior
// consistency tokens and the hooks trigger early revalidation of open
// connections.
func (e *Engine) RevokeDelegation(ctx context.Context, id string) error {
	e.mu.Lock()
	d, ok := e.grants[id]
	if !ok {
		e.mu.Unlock()
		return types.ErrNotFound
	}

	now := e.now().UTC()
	affected := map[string]bool{}
	queue := []string{d.ID}
	revoked := []string{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		g := e.grants[cur]
		if g == nil || g.Status == types.DelegationStatusRevoked {
			continue
		}
		g.Status = types.DelegationStatusRevoked
		g.RevokedAt = &now
		affected[g.DelegateeID] = true
		revoked = append(revoked, g.ID)
		queue = append(queue, e.children[cur]...)
	}
	e.rev++
	hooks := append([]RevokeHook(nil), e.hooks...)
	e.mu.Unlock()

	users := make([]string, 0, len(affected))
	for u := range affected {
		users = append(users, u)
	}
	for _, h := range hooks {
		h(users)
	}

	audit.Emit(ctx, e.sink, audit.Event{
		Type:     "delegation_revoked",
		Severity: audit.SeverityWarning,
		TenantID: d.TenantID,
		Details: map[string]any{
			"delegation_id":  id,
			"cascade_count":  len(revoked),
			"affected_users": users,
		},
	})
	return nil
}

// Get returns a copy of the delegation.
func (e *Engine) Get(id string) (*types.Delegation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.grants[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cloned(d), nil
}

// ActiveGrantsFor renders the user's active, unexpired delegations as
// synthetic grants for the resolver.
func (e *Engine) ActiveGrantsFor(userID string, now time.Time) []types.SyntheticGrant {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []types.SyntheticGrant
	for _, id := range e.byDelegatee[userID] {
		d := e.grants[id]
		if d.Status != types.DelegationStatusActive {
			continue
		}
		if !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt) {
			continue
		}
		out = append(out, types.SyntheticGrant{
			ID:          d.ID,
			Source:      types.GrantSourceDelegation,
			UserID:      d.DelegateeID,
			Permissions: append([]types.Permission(nil), d.Permissions...),
			ExpiresAt:   d.ExpiresAt,
			IssuedAt:    d.CreatedAt,
		})
	}
	return out
}

func permissionsContained(subset, superset []types.Permission) bool {
	for _, want := range subset {
		covered := false
		for _, have := range superset {
			if policy.PermissionCovers(have, want.Action, want.Resource) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func cloned(d *types.Delegation) *types.Delegation {
	c := *d
	c.Permissions = append([]types.Permission(nil), d.Permissions...)
	c.ApprovalChain = append([]string(nil), d.ApprovalChain...)
	c.Approvals = append([]types.Approval(nil), d.Approvals...)
	return &c
}
