package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/authz-go/internal/policy"
	"github.com/gatehouse-io/authz-go/internal/types"
)

// MemoryStore keeps tenant policy sets in memory behind an RWMutex. Reads
// copy the set, so an in-flight evaluation never observes a half-applied
// mutation. Each mutation bumps a per-tenant version that feeds the
// consistency token.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]map[string]types.Policy // tenant -> id -> policy
	versions map[string]uint64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[string]map[string]types.Policy),
		versions: make(map[string]uint64),
		now:      time.Now,
	}
}

func (s *MemoryStore) token(tenantID string) string {
	return fmt.Sprintf("%s.v%d", tenantID, s.versions[tenantID])
}

func (s *MemoryStore) ActivePoliciesFor(_ context.Context, tenantID string) ([]types.Policy, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Policy
	for _, p := range s.policies[tenantID] {
		if p.Status == types.PolicyStatusActive && p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	policy.SortPolicies(out)
	return out, s.token(tenantID), nil
}

func (s *MemoryStore) CreatePolicy(_ context.Context, p types.Policy) (types.Policy, error) {
	if p.TenantID == "" {
		return types.Policy{}, types.ErrInvalidRequest
	}
	now := s.now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = types.PolicyStatusDraft
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policies[p.TenantID] == nil {
		s.policies[p.TenantID] = make(map[string]types.Policy)
	}
	s.policies[p.TenantID][p.ID] = p
	s.versions[p.TenantID]++
	return p, nil
}

func (s *MemoryStore) UpdatePolicy(_ context.Context, p types.Policy) (types.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.policies[p.TenantID][p.ID]
	if !ok {
		return types.Policy{}, types.ErrNotFound
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = s.now().UTC()
	s.policies[p.TenantID][p.ID] = p
	s.versions[p.TenantID]++
	return p, nil
}

func (s *MemoryStore) GetPolicy(_ context.Context, tenantID, id string) (types.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[tenantID][id]
	if !ok {
		return types.Policy{}, types.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListPolicies(_ context.Context, tenantID string) ([]types.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Policy
	for _, p := range s.policies[tenantID] {
		if p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	policy.SortPolicies(out)
	return out, nil
}

func (s *MemoryStore) DeletePolicy(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[tenantID][id]
	if !ok {
		return types.ErrNotFound
	}
	now := s.now().UTC()
	p.DeletedAt = &now
	p.UpdatedAt = now
	s.policies[tenantID][id] = p
	s.versions[tenantID]++
	return nil
}
