package authz

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-io/authz-go/internal/audit"
	"github.com/gatehouse-io/authz-go/internal/policy"
	"github.com/gatehouse-io/authz-go/internal/store"
	"github.com/gatehouse-io/authz-go/internal/types"
)

// GrantSource supplies synthetic grants (delegation, break-glass, JIT) plus
// a revision that changes whenever its grant set changes.
type GrantSource interface {
	ActiveGrantsFor(userID string, now time.Time) []types.SyntheticGrant
	Revision() uint64
}

// Engine is the decision front door: it assembles one immutable snapshot
// per evaluation (active tenant policies + synthetic grants at a single
// version), resolves, and emits exactly one audit record per decision.
type Engine struct {
	store    store.PolicyStore
	resolver *policy.Resolver
	sources  []GrantSource
	defaults *TenantDefaults
	sink     audit.Sink
	backoff  time.Duration
	now      func() time.Time
}

type Options struct {
	Store    store.PolicyStore
	Checker  policy.RelationshipChecker
	Sources  []GrantSource
	Defaults *TenantDefaults
	Sink     audit.Sink
	// RetryBackoff is the wait before the single retry of a failed policy
	// store read.
	RetryBackoff time.Duration
}

func New(opts Options) *Engine {
	if opts.Defaults == nil {
		opts.Defaults = NewTenantDefaults()
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}
	return &Engine{
		store:    opts.Store,
		resolver: policy.NewResolver(opts.Checker),
		sources:  opts.Sources,
		defaults: opts.Defaults,
		sink:     opts.Sink,
		backoff:  opts.RetryBackoff,
		now:      time.Now,
	}
}

// AddSource registers another synthetic grant source.
func (e *Engine) AddSource(s GrantSource) { e.sources = append(e.sources, s) }

// Evaluate decides one request. Store failures are retried once, then fail
// closed: the caller gets a DENY decision, never a default allow.
func (e *Engine) Evaluate(ctx context.Context, req types.AuthorizationRequest) (types.Decision, error) {
	if err := req.Validate(); err != nil {
		e.auditInvalid(ctx, req)
		return types.Decision{}, err
	}

	snap, err := e.snapshot(ctx, req.TenantID, req.Subject)
	if err != nil {
		return e.storeOutage(ctx, req, err), nil
	}
	return e.decide(ctx, snap, req), nil
}

// EvaluateBatch evaluates every request against one shared snapshot: each
// tenant's policies are read exactly once and the grant revision is captured
// once up front, so a mutation landing mid-batch cannot split the batch
// across versions. Results are positional.
func (e *Engine) EvaluateBatch(ctx context.Context, reqs []types.AuthorizationRequest) ([]types.Decision, error) {
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			e.auditInvalid(ctx, reqs[i])
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}

	now := e.now().UTC()
	var rev uint64
	for _, src := range e.sources {
		rev += src.Revision()
	}

	type tenantRead struct {
		policies []types.Policy
		token    string
		err      error
	}
	tenants := map[string]*tenantRead{}
	for i := range reqs {
		id := reqs[i].TenantID
		if _, ok := tenants[id]; ok {
			continue
		}
		tr := &tenantRead{}
		tr.policies, tr.token, tr.err = e.readPolicies(ctx, id)
		tenants[id] = tr
	}

	out := make([]types.Decision, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range reqs {
		g.Go(func() error {
			req := reqs[i]
			tr := tenants[req.TenantID]
			if tr.err != nil {
				out[i] = e.storeOutage(ctx, req, tr.err)
				return nil
			}
			var grants []types.SyntheticGrant
			for _, src := range e.sources {
				grants = append(grants, src.ActiveGrantsFor(req.Subject, now)...)
			}
			out[i] = e.decide(ctx, policy.Snapshot{
				TenantID:     req.TenantID,
				Policies:     tr.policies,
				Grants:       grants,
				Token:        fmt.Sprintf("%s.g%d", tr.token, rev),
				DefaultAllow: e.defaults.DefaultAllow(req.TenantID),
			}, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// decide resolves a request against an assembled snapshot and emits the
// decision audit. Resolver failures fail closed.
func (e *Engine) decide(ctx context.Context, snap policy.Snapshot, req types.AuthorizationRequest) types.Decision {
	res, err := e.resolver.Resolve(ctx, snap, req)
	if err != nil {
		dec := e.failClosed(req, types.ReasonEvaluationError)
		dec.ConsistencyToken = snap.Token
		audit.Emit(ctx, e.sink, audit.Event{
			Type:     "evaluation_error",
			Severity: audit.SeverityCritical,
			TenantID: req.TenantID,
			Actor:    req.Subject,
			Details:  map[string]any{"error": err.Error(), "evaluation_id": dec.EvaluationID},
		})
		return dec
	}
	e.auditDecision(ctx, req, res)
	return res.Decision
}

// EffectivePermissions lists the synthetic grant permissions currently held
// by a user; the delegation engine uses it for partial-delegation subset
// checks.
func (e *Engine) EffectivePermissions(_ context.Context, userID string) ([]types.Permission, error) {
	now := e.now().UTC()
	var out []types.Permission
	for _, src := range e.sources {
		for _, g := range src.ActiveGrantsFor(userID, now) {
			if !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt) {
				continue
			}
			out = append(out, g.Permissions...)
		}
	}
	return out, nil
}

// snapshot reads the tenant's active policies (with one retry) and the
// synthetic grants at a single combined version.
func (e *Engine) snapshot(ctx context.Context, tenantID, subject string) (policy.Snapshot, error) {
	policies, token, err := e.readPolicies(ctx, tenantID)
	if err != nil {
		return policy.Snapshot{}, err
	}

	now := e.now().UTC()
	var grants []types.SyntheticGrant
	var rev uint64
	for _, src := range e.sources {
		grants = append(grants, src.ActiveGrantsFor(subject, now)...)
		rev += src.Revision()
	}

	return policy.Snapshot{
		TenantID:     tenantID,
		Policies:     policies,
		Grants:       grants,
		Token:        fmt.Sprintf("%s.g%d", token, rev),
		DefaultAllow: e.defaults.DefaultAllow(tenantID),
	}, nil
}

// readPolicies pulls the tenant's active set from the store, retrying once
// after the configured backoff.
func (e *Engine) readPolicies(ctx context.Context, tenantID string) ([]types.Policy, string, error) {
	policies, token, err := e.store.ActivePoliciesFor(ctx, tenantID)
	if err != nil {
		select {
		case <-time.After(e.backoff):
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
		policies, token, err = e.store.ActivePoliciesFor(ctx, tenantID)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", types.ErrPolicyStoreUnavailable, err)
		}
	}
	return policies, token, nil
}

func (e *Engine) auditInvalid(ctx context.Context, req types.AuthorizationRequest) {
	audit.Emit(ctx, e.sink, audit.Event{
		Type:     "invalid_request",
		Severity: audit.SeverityWarning,
		TenantID: req.TenantID,
		Actor:    req.Subject,
		Details:  map[string]any{"resource": req.Resource, "action": req.Action},
	})
}

func (e *Engine) storeOutage(ctx context.Context, req types.AuthorizationRequest, err error) types.Decision {
	dec := e.failClosed(req, types.ReasonStoreUnavailable)
	audit.Emit(ctx, e.sink, audit.Event{
		Type:     "policy_store_unavailable",
		Severity: audit.SeverityCritical,
		TenantID: req.TenantID,
		Actor:    req.Subject,
		Details:  map[string]any{"error": err.Error(), "evaluation_id": dec.EvaluationID},
	})
	return dec
}

func (e *Engine) failClosed(req types.AuthorizationRequest, reason string) types.Decision {
	return types.Decision{
		Authorized:   false,
		Effect:       types.EffectDeny,
		Reason:       reason,
		EvaluationID: newEvaluationID(),
		EvaluatedAt:  e.now().UTC(),
	}
}

func (e *Engine) auditDecision(ctx context.Context, req types.AuthorizationRequest, res policy.Result) {
	sev := audit.SeverityInfo
	if !res.Decision.Authorized {
		sev = audit.SeverityWarning
	}
	details := map[string]any{
		"subject":           req.Subject,
		"resource":          req.Resource,
		"action":            req.Action,
		"authorized":        res.Decision.Authorized,
		"reason":            res.Decision.Reason,
		"matched_policy":    res.Decision.MatchedPolicyID,
		"evaluation_id":     res.Decision.EvaluationID,
		"consistency_token": res.Decision.ConsistencyToken,
	}
	if len(res.AuditOnlyMatches) > 0 {
		details["audit_only_matches"] = res.AuditOnlyMatches
	}
	audit.Emit(ctx, e.sink, audit.Event{
		Type:     "decision",
		Severity: sev,
		TenantID: req.TenantID,
		Actor:    req.Subject,
		Details:  details,
	})
}
