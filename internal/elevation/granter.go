package elevation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/authz-go/internal/audit"
	"github.com/gatehouse-io/authz-go/internal/token"
	"github.com/gatehouse-io/authz-go/internal/types"
)

// Granter issues just-in-time elevation grants. Grants are strictly
// time-boxed: there is no renewal path, only a fresh request. Expiry is
// enforced by the resolver's time check on every evaluation, so no cleanup
// job is needed.
type Granter struct {
	mu     sync.Mutex
	grants map[string]*types.JITElevationGrant
	byUser map[string][]string
	tokens *token.Store
	sink   audit.Sink
	rev    uint64
	maxTTL time.Duration
	defTTL time.Duration
	now    func() time.Time
}

func NewGranter(tokens *token.Store, sink audit.Sink) *Granter {
	return &Granter{
		grants: make(map[string]*types.JITElevationGrant),
		byUser: make(map[string][]string),
		tokens: tokens,
		sink:   sink,
		maxTTL: time.Hour,
		defTTL: 15 * time.Minute,
		now:    time.Now,
	}
}

func (g *Granter) Revision() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rev
}

type RequestParams struct {
	TenantID    string
	UserID      string
	Permissions []types.Permission
	Reason      string
	TTL         time.Duration
}

// Request issues a new grant with a hard expiry.
func (g *Granter) Request(ctx context.Context, p RequestParams) (*types.JITElevationGrant, error) {
	if p.UserID == "" || len(p.Permissions) == 0 || p.Reason == "" {
		return nil, types.ErrInvalidRequest
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = g.defTTL
	}
	if ttl > g.maxTTL {
		ttl = g.maxTTL
	}

	now := g.now().UTC()
	grant := &types.JITElevationGrant{
		ID:                 uuid.NewString(),
		TenantID:           p.TenantID,
		UserID:             p.UserID,
		GrantedPermissions: append([]types.Permission(nil), p.Permissions...),
		Reason:             p.Reason,
		GrantedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}

	value, err := g.tokens.Issue(ctx, token.Record{
		Kind:        token.KindElevation,
		Subject:     p.UserID,
		TenantID:    p.TenantID,
		GrantID:     grant.ID,
		Permissions: grant.GrantedPermissions,
		ExpiresAt:   grant.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	grant.ElevationToken = value

	g.mu.Lock()
	g.grants[grant.ID] = grant
	g.byUser[grant.UserID] = append(g.byUser[grant.UserID], grant.ID)
	g.rev++
	g.mu.Unlock()

	audit.Emit(ctx, g.sink, audit.Event{
		Type:     "jit_granted",
		Severity: audit.SeverityWarning,
		TenantID: p.TenantID,
		Actor:    p.UserID,
		Details: map[string]any{
			"grant_id":   grant.ID,
			"reason":     p.Reason,
			"expires_at": grant.ExpiresAt,
		},
	})
	out := *grant
	return &out, nil
}

// ActiveGrantsFor renders the user's unexpired grants for the resolver.
func (g *Granter) ActiveGrantsFor(userID string, now time.Time) []types.SyntheticGrant {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []types.SyntheticGrant
	for _, id := range g.byUser[userID] {
		grant := g.grants[id]
		if !now.Before(grant.ExpiresAt) {
			continue
		}
		out = append(out, types.SyntheticGrant{
			ID:          grant.ID,
			Source:      types.GrantSourceJIT,
			UserID:      grant.UserID,
			Permissions: append([]types.Permission(nil), grant.GrantedPermissions...),
			ExpiresAt:   grant.ExpiresAt,
			IssuedAt:    grant.GrantedAt,
		})
	}
	return out
}

// NextExpiry reports the earliest upcoming grant expiry for the user. The
// continuous authorization manager caps revalidation deadlines with it so a
// connection backed by a JIT grant revalidates no later than the grant
// expires.
func (g *Granter) NextExpiry(userID string, now time.Time) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var earliest time.Time
	for _, id := range g.byUser[userID] {
		grant := g.grants[id]
		if !now.Before(grant.ExpiresAt) {
			continue
		}
		if earliest.IsZero() || grant.ExpiresAt.Before(earliest) {
			earliest = grant.ExpiresAt
		}
	}
	return earliest, !earliest.IsZero()
}
