package authz

import (
	"sync"

	"github.com/google/uuid"
)

func newEvaluationID() string { return uuid.NewString() }

// TenantDefaults holds the per-tenant fail-open/fail-closed choice for
// requests no policy matches. The built-in default is fail-closed; a tenant
// must opt into fail-open explicitly.
type TenantDefaults struct {
	mu       sync.RWMutex
	failOpen map[string]bool
}

func NewTenantDefaults() *TenantDefaults {
	return &TenantDefaults{failOpen: make(map[string]bool)}
}

func (t *TenantDefaults) SetFailOpen(tenantID string, failOpen bool) {
	t.mu.Lock()
	t.failOpen[tenantID] = failOpen
	t.mu.Unlock()
}

func (t *TenantDefaults) DefaultAllow(tenantID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.failOpen[tenantID]
}
