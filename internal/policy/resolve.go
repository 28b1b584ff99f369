package policy

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/authz-go/internal/types"
)

// Snapshot is the single immutable view a resolve call evaluates against:
// all active tenant policies plus any synthetic grants, bound to one
// consistency token. Callers must not mutate it after construction.
type Snapshot struct {
	TenantID     string
	Policies     []types.Policy // ACTIVE, not soft-deleted
	Grants       []types.SyntheticGrant
	Token        string
	DefaultAllow bool // tenant fail-open opt-in; the built-in default is deny
}

// SortPolicies orders policies for deterministic resolution: priority
// ascending, then creation time, then id.
func SortPolicies(ps []types.Policy) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Priority != ps[j].Priority {
			return ps[i].Priority < ps[j].Priority
		}
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

// Resolver combines the matching policies for one request into a single
// decision. It is stateless; one Resolver serves unlimited concurrent calls.
type Resolver struct {
	Checker RelationshipChecker
	Now     func() time.Time
}

func NewResolver(checker RelationshipChecker) *Resolver {
	if checker == nil {
		checker = ContextChecker{}
	}
	return &Resolver{Checker: checker, Now: time.Now}
}

// Result carries the decision plus observational matches the caller should
// audit (AUDIT_ONLY policies never decide the outcome).
type Result struct {
	Decision         types.Decision
	AuditOnlyMatches []string // policy ids
}

// Resolve applies the precedence rules in strict order: explicit DENY wins
// over everything; ABAC and ReBAC conditions gate ALLOW matches; synthetic
// grants sit between explicit DENY and the tenant default; the default is
// deny unless the tenant opted into fail-open.
func (r *Resolver) Resolve(ctx context.Context, snap Snapshot, req types.AuthorizationRequest) (Result, error) {
	now := r.Now().UTC()
	res := Result{}

	var winner *types.Policy
	for i := range snap.Policies {
		p := &snap.Policies[i]
		if p.Status != types.PolicyStatusActive || p.DeletedAt != nil {
			continue
		}
		if !Matches(*p, req) {
			continue
		}
		hold, err := r.conditionsHold(ctx, p.Conditions, req)
		if err != nil {
			return Result{}, err
		}
		if !hold {
			continue
		}
		switch p.Effect {
		case types.EffectAuditOnly:
			res.AuditOnlyMatches = append(res.AuditOnlyMatches, p.ID)
		case types.EffectDeny:
			// Policies are pre-sorted, so the first applicable DENY is the
			// winning rule.
			return r.finish(res, snap, now, types.Decision{
				Authorized:      false,
				Effect:          types.EffectDeny,
				MatchedPolicyID: p.ID,
				Reason:          types.ReasonExplicitDeny,
			}), nil
		case types.EffectAllow, types.EffectWarning:
			if winner == nil {
				winner = p
			}
		}
	}

	if winner != nil {
		if winner.MFARequired && !req.Context.MFAVerified {
			return r.finish(res, snap, now, types.Decision{
				Authorized:      false,
				Effect:          types.EffectDeny,
				MatchedPolicyID: winner.ID,
				Reason:          types.ReasonMFARequired,
			}), nil
		}
		if winner.StepUpRequired && !req.Context.StepUpVerified {
			return r.finish(res, snap, now, types.Decision{
				Authorized:      false,
				Effect:          types.EffectDeny,
				MatchedPolicyID: winner.ID,
				Reason:          types.ReasonStepUpRequired,
			}), nil
		}
		reason := types.ReasonPolicyMatched
		if winner.Effect == types.EffectWarning {
			reason = types.ReasonWarningOnly
		}
		return r.finish(res, snap, now, types.Decision{
			Authorized:      true,
			Effect:          winner.Effect,
			MatchedPolicyID: winner.ID,
			Reason:          reason,
		}), nil
	}

	// No tenant policy decided; consider synthetic grants. Expiry is a
	// strict time comparison on every evaluation, no grace period.
	expiredMatch := false
	for _, g := range snap.Grants {
		if g.UserID != req.Subject {
			continue
		}
		covered := false
		for _, perm := range g.Permissions {
			if PermissionCovers(perm, req.Action, req.Resource) {
				covered = true
				break
			}
		}
		if !covered {
			continue
		}
		if !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt) {
			expiredMatch = true
			continue
		}
		reason := types.ReasonDelegatedGrant
		switch g.Source {
		case types.GrantSourceBreakGlass:
			reason = types.ReasonBreakGlassGrant
		case types.GrantSourceJIT:
			reason = types.ReasonJITGrant
		}
		return r.finish(res, snap, now, types.Decision{
			Authorized:      true,
			Effect:          types.EffectAllow,
			MatchedPolicyID: string(g.Source) + ":" + g.ID,
			Reason:          reason,
		}), nil
	}

	if snap.DefaultAllow {
		return r.finish(res, snap, now, types.Decision{
			Authorized: true,
			Effect:     types.EffectAllow,
			Reason:     types.ReasonDefaultAllow,
		}), nil
	}
	reason := types.ReasonDefaultDeny
	if expiredMatch {
		reason = types.ReasonElevationExpired
	}
	return r.finish(res, snap, now, types.Decision{
		Authorized: false,
		Effect:     types.EffectDeny,
		Reason:     reason,
	}), nil
}

func (r *Resolver) finish(res Result, snap Snapshot, now time.Time, d types.Decision) Result {
	d.EvaluationID = uuid.NewString()
	d.ConsistencyToken = snap.Token
	d.EvaluatedAt = now
	res.Decision = d
	return res
}

// conditionsHold evaluates ABAC predicates against the typed context and
// ReBAC predicates through the relationship checker.
func (r *Resolver) conditionsHold(ctx context.Context, c types.Conditions, req types.AuthorizationRequest) (bool, error) {
	if c.Empty() {
		return true, nil
	}
	if c.RequiredClearance != "" && req.Context.ClearanceLevel != c.RequiredClearance {
		return false, nil
	}
	if c.MaxRiskScore != nil && req.Context.RiskScore > *c.MaxRiskScore {
		return false, nil
	}
	if c.RequiredDeviceTrust != "" && req.Context.DeviceTrust != c.RequiredDeviceTrust {
		return false, nil
	}
	for k, want := range c.Extra {
		if req.Context.Extra[k] != want {
			return false, nil
		}
	}
	if c.RequiredRelation != "" {
		ok, err := r.Checker.HasRelation(ctx, req.Subject, c.RequiredRelation, req.Resource, req.Context)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
