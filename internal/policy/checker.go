package policy

import (
	"context"

	"github.com/gatehouse-io/authz-go/internal/types"
)

// RelationshipChecker answers ReBAC membership questions: does subject hold
// relation to object? The local implementation reads the relationship edges
// the caller supplied in the request context; deployments backed by an
// external relationship store plug in their own.
type RelationshipChecker interface {
	HasRelation(ctx context.Context, subject, relation, object string, reqCtx types.RequestContext) (bool, error)
}

// ContextChecker resolves relations purely from the request context.
type ContextChecker struct{}

func (ContextChecker) HasRelation(_ context.Context, _ string, relation, object string, reqCtx types.RequestContext) (bool, error) {
	return reqCtx.HasRelation(relation, object), nil
}
