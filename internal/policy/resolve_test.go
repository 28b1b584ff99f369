package policy

import (
	"context"
	"testing"
	"time"

	"github.com/gatehouse-io/authz-go/internal/types"
)

func activePolicy(id, name string, effect types.Effect, priority int) types.Policy {
	return types.Policy{
		ID:       id,
		TenantID: "acme",
		Name:     name,
		Effect:   effect,
		Priority: priority,
		Status:   types.PolicyStatusActive,
	}
}

func resolve(t *testing.T, snap Snapshot, req types.AuthorizationRequest) Result {
	t.Helper()
	r := NewResolver(nil)
	res, err := r.Resolve(context.Background(), snap, req)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	return res
}

func TestResolveDenyWinsOverWildcardAllow(t *testing.T) {
	deny := activePolicy("p-deny", "Explicit Deny Policy", types.EffectDeny, 1)
	deny.Subjects = []string{"user:mallory"}
	deny.Resources = []string{"vault:*"}
	deny.Actions = []string{"*"}

	allow := activePolicy("p-allow", "Wildcard Allow", types.EffectAllow, 10)
	allow.Subjects = []string{"*"}

	snap := Snapshot{TenantID: "acme", Policies: []types.Policy{deny, allow}, Token: "acme.v1"}
	SortPolicies(snap.Policies)

	res := resolve(t, snap, types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:mallory", Resource: "vault:prod", Action: "read",
	})
	if res.Decision.Authorized {
		t.Fatal("deny must win over the wildcard allow")
	}
	if res.Decision.MatchedPolicyID != "p-deny" {
		t.Fatalf("matched policy = %q, want p-deny", res.Decision.MatchedPolicyID)
	}
	if res.Decision.Reason != types.ReasonExplicitDeny {
		t.Fatalf("reason = %q, want %q", res.Decision.Reason, types.ReasonExplicitDeny)
	}

	// A different subject still gets the allow.
	res = resolve(t, snap, types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:alice", Resource: "vault:prod", Action: "read",
	})
	if !res.Decision.Authorized || res.Decision.MatchedPolicyID != "p-allow" {
		t.Fatalf("expected p-allow to authorize, got %+v", res.Decision)
	}
}

func TestResolveClearanceCondition(t *testing.T) {
	p := activePolicy("p-clear", "Confidential Docs", types.EffectAllow, 5)
	p.Resources = []string{"doc:confidential:*"}
	p.Conditions = types.Conditions{RequiredClearance: "confidential"}

	snap := Snapshot{TenantID: "acme", Policies: []types.Policy{p}, Token: "acme.v1"}

	req := types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:alice", Resource: "doc:confidential:9", Action: "read",
		Context: types.RequestContext{ClearanceLevel: "confidential"},
	}
	if res := resolve(t, snap, req); !res.Decision.Authorized {
		t.Fatalf("matching clearance should authorize, got %+v", res.Decision)
	}

	req.Context.ClearanceLevel = "public"
	res := resolve(t, snap, req)
	if res.Decision.Authorized {
		t.Fatal("insufficient clearance should fall through to default deny")
	}
	if res.Decision.Reason != types.ReasonDefaultDeny {
		t.Fatalf("reason = %q, want %q", res.Decision.Reason, types.ReasonDefaultDeny)
	}
}

func TestResolveRelationshipCondition(t *testing.T) {
	p := activePolicy("p-team", "Team Members", types.EffectAllow, 5)
	p.Resources = []string{"team:search"}
	p.Conditions = types.Conditions{RequiredRelation: "member_of"}

	snap := Snapshot{TenantID: "acme", Policies: []types.Policy{p}, Token: "acme.v1"}

	req := types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:alice", Resource: "team:search", Action: "read",
		Context: types.RequestContext{
			Relationships: map[string][]string{"member_of": {"team:search"}},
		},
	}
	if res := resolve(t, snap, req); !res.Decision.Authorized {
		t.Fatalf("member_of relation present, expected allow, got %+v", res.Decision)
	}

	req.Context.Relationships = nil
	if res := resolve(t, snap, req); res.Decision.Authorized {
		t.Fatal("missing member_of relation should deny")
	}
}

func TestResolveRiskAndDeviceConditions(t *testing.T) {
	max := 50
	p := activePolicy("p-risk", "Low Risk Managed Devices", types.EffectAllow, 5)
	p.Conditions = types.Conditions{MaxRiskScore: &max, RequiredDeviceTrust: "managed"}

	snap := Snapshot{TenantID: "acme", Policies: []types.Policy{p}, Token: "acme.v1"}
	req := types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:alice", Resource: "doc:1", Action: "read",
		Context: types.RequestContext{RiskScore: 30, DeviceTrust: "managed"},
	}
	if res := resolve(t, snap, req); !res.Decision.Authorized {
		t.Fatal("expected allow under risk threshold on managed device")
	}

	req.Context.RiskScore = 80
	if res := resolve(t, snap, req); res.Decision.Authorized {
		t.Fatal("risk above threshold should deny")
	}

	req.Context.RiskScore = 30
	req.Context.DeviceTrust = "byod"
	if res := resolve(t, snap, req); res.Decision.Authorized {
		t.Fatal("untrusted device should deny")
	}
}

func TestResolveMFAAndStepUpGates(t *testing.T) {
	p := activePolicy("p-mfa", "Sensitive Writes", types.EffectAllow, 5)
	p.MFARequired = true
	p.StepUpRequired = true

	snap := Snapshot{TenantID: "acme", Policies: []types.Policy{p}, Token: "acme.v1"}
	req := types.AuthorizationRequest{TenantID: "acme", Subject: "user:alice", Resource: "db:prod", Action: "write"}

	res := resolve(t, snap, req)
	if res.Decision.Authorized || res.Decision.Reason != types.ReasonMFARequired {
		t.Fatalf("without MFA expected %q deny, got %+v", types.ReasonMFARequired, res.Decision)
	}

	req.Context.MFAVerified = true
	res = resolve(t, snap, req)
	if res.Decision.Authorized || res.Decision.Reason != types.ReasonStepUpRequired {
		t.Fatalf("without step-up expected %q deny, got %+v", types.ReasonStepUpRequired, res.Decision)
	}

	req.Context.StepUpVerified = true
	if res := resolve(t, snap, req); !res.Decision.Authorized {
		t.Fatalf("fully verified request should pass, got %+v", res.Decision)
	}
}

func TestResolveAuditOnlyNeverDecides(t *testing.T) {
	obs := activePolicy("p-obs", "Shadow Rule", types.EffectAuditOnly, 1)
	snap := Snapshot{TenantID: "acme", Policies: []types.Policy{obs}, Token: "acme.v1"}

	res := resolve(t, snap, types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:alice", Resource: "doc:1", Action: "read",
	})
	if res.Decision.Authorized {
		t.Fatal("audit-only match must not authorize")
	}
	if len(res.AuditOnlyMatches) != 1 || res.AuditOnlyMatches[0] != "p-obs" {
		t.Fatalf("audit-only matches = %v, want [p-obs]", res.AuditOnlyMatches)
	}
}

func TestResolveWarningEffect(t *testing.T) {
	warn := activePolicy("p-warn", "Deprecated Path", types.EffectWarning, 1)
	snap := Snapshot{TenantID: "acme", Policies: []types.Policy{warn}, Token: "acme.v1"}

	res := resolve(t, snap, types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:alice", Resource: "doc:1", Action: "read",
	})
	if !res.Decision.Authorized {
		t.Fatal("warning effect still authorizes")
	}
	if res.Decision.Reason != types.ReasonWarningOnly {
		t.Fatalf("reason = %q, want %q", res.Decision.Reason, types.ReasonWarningOnly)
	}
}

func TestResolveSkipsInactiveAndDeleted(t *testing.T) {
	draft := activePolicy("p-draft", "Draft", types.EffectAllow, 1)
	draft.Status = types.PolicyStatusDraft
	gone := activePolicy("p-gone", "Deleted", types.EffectAllow, 2)
	now := time.Now()
	gone.DeletedAt = &now

	snap := Snapshot{TenantID: "acme", Policies: []types.Policy{draft, gone}, Token: "acme.v1"}
	res := resolve(t, snap, types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:alice", Resource: "doc:1", Action: "read",
	})
	if res.Decision.Authorized {
		t.Fatal("draft and soft-deleted policies must not apply")
	}
}

func TestResolveSyntheticGrantBelowDeny(t *testing.T) {
	deny := activePolicy("p-deny", "Explicit Deny Policy", types.EffectDeny, 1)
	deny.Resources = []string{"vault:prod"}

	grant := types.SyntheticGrant{
		ID:          "d-1",
		Source:      types.GrantSourceDelegation,
		UserID:      "user:bob",
		Permissions: []types.Permission{{Action: "read", Resource: "vault:*"}},
	}
	snap := Snapshot{
		TenantID: "acme",
		Policies: []types.Policy{deny},
		Grants:   []types.SyntheticGrant{grant},
		Token:    "acme.v1",
	}

	// The deny covers vault:prod for everyone; the delegated grant cannot
	// override it.
	res := resolve(t, snap, types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:bob", Resource: "vault:prod", Action: "read",
	})
	if res.Decision.Authorized {
		t.Fatal("delegated grant must not override an explicit deny")
	}

	// Off the denied resource the grant applies.
	res = resolve(t, snap, types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:bob", Resource: "vault:staging", Action: "read",
	})
	if !res.Decision.Authorized {
		t.Fatalf("expected delegated grant allow, got %+v", res.Decision)
	}
	if res.Decision.Reason != types.ReasonDelegatedGrant {
		t.Fatalf("reason = %q, want %q", res.Decision.Reason, types.ReasonDelegatedGrant)
	}
	if res.Decision.MatchedPolicyID != "delegation:d-1" {
		t.Fatalf("matched id = %q, want delegation:d-1", res.Decision.MatchedPolicyID)
	}
}

func TestResolveGrantReasonsPerSource(t *testing.T) {
	cases := []struct {
		source types.GrantSourceKind
		want   string
	}{
		{types.GrantSourceDelegation, types.ReasonDelegatedGrant},
		{types.GrantSourceBreakGlass, types.ReasonBreakGlassGrant},
		{types.GrantSourceJIT, types.ReasonJITGrant},
	}
	for _, c := range cases {
		snap := Snapshot{
			TenantID: "acme",
			Grants: []types.SyntheticGrant{{
				ID: "g", Source: c.source, UserID: "user:bob",
				Permissions: []types.Permission{{Action: "read", Resource: "*"}},
			}},
			Token: "acme.v1",
		}
		res := resolve(t, snap, types.AuthorizationRequest{
			TenantID: "acme", Subject: "user:bob", Resource: "doc:1", Action: "read",
		})
		if !res.Decision.Authorized || res.Decision.Reason != c.want {
			t.Errorf("source %s: got %+v, want reason %q", c.source, res.Decision, c.want)
		}
	}
}

func TestResolveExpiredGrantDeniesWithElevationExpired(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewResolver(nil)
	r.Now = func() time.Time { return fixed }

	snap := Snapshot{
		TenantID: "acme",
		Grants: []types.SyntheticGrant{{
			ID: "j-1", Source: types.GrantSourceJIT, UserID: "user:bob",
			Permissions: []types.Permission{{Action: "read", Resource: "*"}},
			ExpiresAt:   fixed, // expiry boundary is exclusive
		}},
		Token: "acme.v1",
	}
	res, err := r.Resolve(context.Background(), snap, types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:bob", Resource: "doc:1", Action: "read",
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if res.Decision.Authorized {
		t.Fatal("grant expiring exactly now must not authorize")
	}
	if res.Decision.Reason != types.ReasonElevationExpired {
		t.Fatalf("reason = %q, want %q", res.Decision.Reason, types.ReasonElevationExpired)
	}
}

func TestResolveTenantDefault(t *testing.T) {
	req := types.AuthorizationRequest{TenantID: "acme", Subject: "user:alice", Resource: "doc:1", Action: "read"}

	res := resolve(t, Snapshot{TenantID: "acme", Token: "acme.v0"}, req)
	if res.Decision.Authorized || res.Decision.Reason != types.ReasonDefaultDeny {
		t.Fatalf("built-in default must be deny, got %+v", res.Decision)
	}

	res = resolve(t, Snapshot{TenantID: "acme", Token: "acme.v0", DefaultAllow: true}, req)
	if !res.Decision.Authorized || res.Decision.Reason != types.ReasonDefaultAllow {
		t.Fatalf("fail-open tenant should default allow, got %+v", res.Decision)
	}
}

func TestResolveStampsDecisionMetadata(t *testing.T) {
	res := resolve(t, Snapshot{TenantID: "acme", Token: "acme.v7"}, types.AuthorizationRequest{
		TenantID: "acme", Subject: "user:alice", Resource: "doc:1", Action: "read",
	})
	if res.Decision.EvaluationID == "" {
		t.Fatal("evaluation id missing")
	}
	if res.Decision.ConsistencyToken != "acme.v7" {
		t.Fatalf("consistency token = %q, want acme.v7", res.Decision.ConsistencyToken)
	}
	if res.Decision.EvaluatedAt.IsZero() {
		t.Fatal("evaluated-at missing")
	}
}

func TestSortPoliciesDeterministic(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ps := []types.Policy{
		{ID: "c", Priority: 5, CreatedAt: base},
		{ID: "a", Priority: 1, CreatedAt: base.Add(time.Hour)},
		{ID: "b", Priority: 1, CreatedAt: base},
		{ID: "d", Priority: 1, CreatedAt: base},
	}
	SortPolicies(ps)
	got := []string{ps[0].ID, ps[1].ID, ps[2].ID, ps[3].ID}
	want := []string{"b", "d", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
