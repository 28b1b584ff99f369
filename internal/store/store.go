package store

import (
	"context"

	"github.com/gatehouse-io/authz-go/internal/types"
)

// PolicyStore is the engine's view of policy persistence. ActivePoliciesFor
// must return a consistent snapshot: either the full pre-mutation or the
// full post-mutation policy set, never a mix, together with a consistency
// token that changes whenever the tenant's policy set changes.
type PolicyStore interface {
	ActivePoliciesFor(ctx context.Context, tenantID string) ([]types.Policy, string, error)

	CreatePolicy(ctx context.Context, p types.Policy) (types.Policy, error)
	UpdatePolicy(ctx context.Context, p types.Policy) (types.Policy, error)
	GetPolicy(ctx context.Context, tenantID, id string) (types.Policy, error)
	ListPolicies(ctx context.Context, tenantID string) ([]types.Policy, error)
	// DeletePolicy soft-deletes; the policy stops matching but the record
	// survives for audit.
	DeletePolicy(ctx context.Context, tenantID, id string) error
}
