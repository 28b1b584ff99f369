package delegation

import (
	"context"
	"testing"
	"time"

	"github.com/gatehouse-io/authz-go/internal/audit"
	"github.com/gatehouse-io/authz-go/internal/authz"
	"github.com/gatehouse-io/authz-go/internal/store"
	"github.com/gatehouse-io/authz-go/internal/types"
)

type fixedPerms struct {
	perms []types.Permission
}

func (f fixedPerms) EffectivePermissions(context.Context, string) ([]types.Permission, error) {
	return f.perms, nil
}

func perms(pairs ...string) []types.Permission {
	out := make([]types.Permission, 0, len(pairs))
	for _, s := range pairs {
		p, err := types.ParsePermission(s)
		if err != nil {
			panic(err)
		}
		out = append(out, p)
	}
	return out
}

func TestCreateDelegationActivatesWithoutChain(t *testing.T) {
	e := NewEngine(nil, nil)
	d, err := e.CreateDelegation(context.Background(), CreateParams{
		TenantID:           "acme",
		DelegatorID:        "user:alice",
		DelegateeID:        "user:bob",
		Permissions:        perms("read:doc:*"),
		MaxDelegationDepth: 3,
	})
	if err != nil {
		t.Fatalf("CreateDelegation: %v", err)
	}
	if d.Status != types.DelegationStatusActive {
		t.Fatalf("status = %s, want ACTIVE", d.Status)
	}
	if d.DelegationDepth != 0 {
		t.Fatalf("depth = %d, want 0", d.DelegationDepth)
	}

	grants := e.ActiveGrantsFor("user:bob", time.Now())
	if len(grants) != 1 || grants[0].Source != types.GrantSourceDelegation {
		t.Fatalf("grants = %+v, want one delegation grant", grants)
	}
}

func TestSubDelegationDepthLimit(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)

	// Lineage allows two levels: depth 0 and depth 1.
	root, err := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions: perms("read:doc:*"), MaxDelegationDepth: 2,
	})
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	child, err := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:bob", DelegateeID: "user:carol",
		Permissions: perms("read:doc:*"), ParentDelegationID: root.ID,
	})
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	if child.DelegationDepth != 1 {
		t.Fatalf("child depth = %d, want 1", child.DelegationDepth)
	}
	if child.MaxDelegationDepth != 2 {
		t.Fatalf("child max depth = %d, want inherited 2", child.MaxDelegationDepth)
	}

	// Depth 2 would equal the lineage limit: rejected, and no record exists.
	rev := e.Revision()
	_, err = e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:carol", DelegateeID: "user:dave",
		Permissions: perms("read:doc:*"), ParentDelegationID: child.ID,
	})
	if err != types.ErrDelegationDepthExceeded {
		t.Fatalf("err = %v, want ErrDelegationDepthExceeded", err)
	}
	if e.Revision() != rev {
		t.Fatal("failed sub-delegation must not bump the revision")
	}
	if grants := e.ActiveGrantsFor("user:dave", time.Now()); len(grants) != 0 {
		t.Fatalf("rejected sub-delegation left grants behind: %+v", grants)
	}
}

func TestSubDelegationPermissionsMustBeContained(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)

	root, err := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions: perms("read:doc:*"), MaxDelegationDepth: 3,
	})
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	_, err = e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:bob", DelegateeID: "user:carol",
		Permissions: perms("write:doc:1"), ParentDelegationID: root.ID,
	})
	if err != types.ErrDelegationPermissionNotOwned {
		t.Fatalf("err = %v, want ErrDelegationPermissionNotOwned", err)
	}

	// A subset under the parent's wildcard is fine.
	if _, err := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:bob", DelegateeID: "user:carol",
		Permissions: perms("read:doc:42"), ParentDelegationID: root.ID,
	}); err != nil {
		t.Fatalf("contained subset rejected: %v", err)
	}
}

func TestSubDelegationRequiresActiveParentHeldByDelegator(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)

	root, _ := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions: perms("read:doc:*"), MaxDelegationDepth: 3,
	})

	// Someone who is not the parent's delegatee cannot chain from it.
	_, err := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:mallory", DelegateeID: "user:carol",
		Permissions: perms("read:doc:*"), ParentDelegationID: root.ID,
	})
	if err != types.ErrNotAuthorized {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestPartialPolicyDelegationSubsetCheck(t *testing.T) {
	ctx := context.Background()
	src := fixedPerms{perms: perms("read:doc:*", "write:doc:7")}
	e := NewEngine(src, nil)

	d, err := e.CreatePartialPolicyDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions: perms("read:doc:1", "write:doc:7"),
	})
	if err != nil {
		t.Fatalf("CreatePartialPolicyDelegation: %v", err)
	}
	if d.Status != types.DelegationStatusActive {
		t.Fatalf("status = %s, want ACTIVE", d.Status)
	}

	_, err = e.CreatePartialPolicyDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions: perms("delete:doc:1"),
	})
	if err != types.ErrDelegationPermissionNotOwned {
		t.Fatalf("err = %v, want ErrDelegationPermissionNotOwned", err)
	}
}

func TestPartialPolicyDelegationFromPolicyBackedDelegator(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	if _, err := mem.CreatePolicy(ctx, types.Policy{
		TenantID:  "acme",
		Name:      "Alice Reads Docs",
		Effect:    types.EffectAllow,
		Subjects:  []string{"user:alice"},
		Resources: []string{"doc:*"},
		Actions:   []string{"read"},
		Status:    types.PolicyStatusActive,
	}); err != nil {
		t.Fatalf("seed policy: %v", err)
	}
	engine := authz.New(authz.Options{Store: mem})
	e := NewEngine(engine, nil)
	engine.AddSource(e)

	// Alice holds read on docs purely through a tenant policy, no grants.
	d, err := e.CreatePartialPolicyDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions: perms("read:doc:1"),
	})
	if err != nil {
		t.Fatalf("CreatePartialPolicyDelegation: %v", err)
	}
	if d.Status != types.DelegationStatusActive {
		t.Fatalf("status = %s, want ACTIVE", d.Status)
	}

	_, err = e.CreatePartialPolicyDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions: perms("write:doc:1"),
	})
	if err != types.ErrDelegationPermissionNotOwned {
		t.Fatalf("err = %v, want ErrDelegationPermissionNotOwned", err)
	}
}

func TestApprovalChainRequiresAll(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)

	d, err := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions:          perms("read:doc:*"),
		ApprovalChain:        []string{"MANAGER", "SECURITY"},
		RequiresAllApprovals: true,
	})
	if err != nil {
		t.Fatalf("CreateDelegation: %v", err)
	}
	if d.Status != types.DelegationStatusPendingApproval {
		t.Fatalf("status = %s, want PENDING_APPROVAL", d.Status)
	}
	if grants := e.ActiveGrantsFor("user:bob", time.Now()); len(grants) != 0 {
		t.Fatal("pending delegation must not grant")
	}

	if _, err := e.Approve(ctx, d.ID, "user:mgr", "MANAGER"); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	got, _ := e.Get(d.ID)
	if got.Status != types.DelegationStatusPendingApproval {
		t.Fatalf("status after one of two approvals = %s, want PENDING_APPROVAL", got.Status)
	}

	if _, err := e.Approve(ctx, d.ID, "user:sec", "SECURITY"); err != nil {
		t.Fatalf("second approval: %v", err)
	}
	got, _ = e.Get(d.ID)
	if got.Status != types.DelegationStatusActive {
		t.Fatalf("status after full chain = %s, want ACTIVE", got.Status)
	}
}

func TestApproveRejectsBadRoleAndDuplicates(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)

	d, _ := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions:          perms("read:doc:*"),
		ApprovalChain:        []string{"MANAGER", "SECURITY"},
		RequiresAllApprovals: true,
	})

	if _, err := e.Approve(ctx, d.ID, "user:x", "JANITOR"); err != types.ErrApproverRoleInvalid {
		t.Fatalf("err = %v, want ErrApproverRoleInvalid", err)
	}
	if _, err := e.Approve(ctx, d.ID, "user:mgr", "MANAGER"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := e.Approve(ctx, d.ID, "user:mgr", "SECURITY"); err != types.ErrDuplicateApprover {
		t.Fatalf("err = %v, want ErrDuplicateApprover", err)
	}
}

func TestRevokeDelegationCascades(t *testing.T) {
	ctx := context.Background()
	sink := &audit.Capture{}
	e := NewEngine(nil, sink)

	var hookUsers []string
	e.OnRevoke(func(users []string) { hookUsers = users })

	root, _ := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions: perms("read:doc:*"), MaxDelegationDepth: 4,
	})
	child, _ := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:bob", DelegateeID: "user:carol",
		Permissions: perms("read:doc:*"), ParentDelegationID: root.ID,
	})
	_, err := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:carol", DelegateeID: "user:dave",
		Permissions: perms("read:doc:*"), ParentDelegationID: child.ID,
	})
	if err != nil {
		t.Fatalf("grandchild: %v", err)
	}

	rev := e.Revision()
	if err := e.RevokeDelegation(ctx, root.ID); err != nil {
		t.Fatalf("RevokeDelegation: %v", err)
	}
	if e.Revision() == rev {
		t.Fatal("revocation must bump the revision")
	}

	for _, user := range []string{"user:bob", "user:carol", "user:dave"} {
		if grants := e.ActiveGrantsFor(user, time.Now()); len(grants) != 0 {
			t.Fatalf("%s still holds grants after cascade: %+v", user, grants)
		}
	}
	if len(hookUsers) != 3 {
		t.Fatalf("hook saw %d affected users, want 3", len(hookUsers))
	}

	evs := sink.ByType("delegation_revoked")
	if len(evs) != 1 {
		t.Fatalf("revocation events = %d, want 1", len(evs))
	}
	if got := evs[0].Details["cascade_count"]; got != 3 {
		t.Fatalf("cascade_count = %v, want 3", got)
	}
}

func TestActiveGrantsForSkipsExpired(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)

	exp := time.Now().Add(time.Hour)
	_, err := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions: perms("read:doc:*"), ExpiresAt: exp,
	})
	if err != nil {
		t.Fatalf("CreateDelegation: %v", err)
	}

	if grants := e.ActiveGrantsFor("user:bob", exp.Add(-time.Minute)); len(grants) != 1 {
		t.Fatalf("grants before expiry = %d, want 1", len(grants))
	}
	// The boundary itself is already expired.
	if grants := e.ActiveGrantsFor("user:bob", exp); len(grants) != 0 {
		t.Fatal("grant at expiry instant should not be active")
	}
}

func TestConfigureApprovalChainLocksAfterFirstApproval(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)

	d, _ := e.CreateDelegation(ctx, CreateParams{
		TenantID: "acme", DelegatorID: "user:alice", DelegateeID: "user:bob",
		Permissions:   perms("read:doc:*"),
		ApprovalChain: []string{"MANAGER"},
	})

	if _, err := e.ConfigureApprovalChain(ctx, d.ID, []string{"MANAGER", "SECURITY"}, true); err != nil {
		t.Fatalf("reconfigure before approvals: %v", err)
	}
	if _, err := e.Approve(ctx, d.ID, "user:mgr", "MANAGER"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := e.ConfigureApprovalChain(ctx, d.ID, []string{"MANAGER"}, false); err == nil {
		t.Fatal("chain must be locked once an approval exists")
	}
}
