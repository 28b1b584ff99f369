package types

import (
	"strings"
	"time"
)

// Permission is one action:resource pair. Resource (and action) may use the
// same wildcard forms as policy patterns ("*", "proj:*").
type Permission struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

func (p Permission) String() string { return p.Action + ":" + p.Resource }

// ParsePermission splits "action:resource". The resource part may itself
// contain colons ("read:document:42").
func ParsePermission(s string) (Permission, error) {
	action, resource, ok := strings.Cut(s, ":")
	if !ok || action == "" || resource == "" {
		return Permission{}, Err("malformed permission: " + s)
	}
	return Permission{Action: action, Resource: resource}, nil
}

type DelegationStatus string

const (
	DelegationStatusPendingApproval DelegationStatus = "PENDING_APPROVAL"
	DelegationStatusActive          DelegationStatus = "ACTIVE"
	DelegationStatusRevoked         DelegationStatus = "REVOKED"
	DelegationStatusExpired         DelegationStatus = "EXPIRED"
)

type Approval struct {
	ApproverID string    `json:"approver_id"`
	Role       string    `json:"role"`
	At         time.Time `json:"at"`
}

type Delegation struct {
	ID                   string           `json:"id"`
	TenantID             string           `json:"tenant_id"`
	DelegatorID          string           `json:"delegator_id"`
	DelegateeID          string           `json:"delegatee_id"`
	Permissions          []Permission     `json:"permissions"`
	Scope                string           `json:"scope,omitempty"`
	Status               DelegationStatus `json:"status"`
	DelegationDepth      int              `json:"delegation_depth"`
	MaxDelegationDepth   int              `json:"max_delegation_depth"`
	ParentDelegationID   string           `json:"parent_delegation_id,omitempty"`
	ApprovalChain        []string         `json:"approval_chain,omitempty"` // required approver roles, in order
	RequiresAllApprovals bool             `json:"requires_all_approvals,omitempty"`
	Approvals            []Approval       `json:"approvals,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	ExpiresAt            time.Time        `json:"expires_at,omitempty"`
	RevokedAt            *time.Time       `json:"revoked_at,omitempty"`
}

type BreakGlassStatus string

const (
	BreakGlassStatusPendingDualApproval   BreakGlassStatus = "PENDING_DUAL_APPROVAL"
	BreakGlassStatusPendingSecondApproval BreakGlassStatus = "PENDING_SECOND_APPROVAL"
	BreakGlassStatusApproved              BreakGlassStatus = "APPROVED"
	BreakGlassStatusActive                BreakGlassStatus = "ACTIVE"
	BreakGlassStatusDenied                BreakGlassStatus = "DENIED"
	BreakGlassStatusExpired               BreakGlassStatus = "EXPIRED"
)

type BreakGlassRequest struct {
	RequestID            string           `json:"request_id"`
	TenantID             string           `json:"tenant_id"`
	RequestedBy          string           `json:"requested_by"`
	EmergencyType        string           `json:"emergency_type"`
	Justification        string           `json:"justification,omitempty"`
	Permissions          []Permission     `json:"permissions"`
	Status               BreakGlassStatus `json:"status"`
	Approvals            []Approval       `json:"approvals,omitempty"`
	EmergencyAccessToken string           `json:"emergency_access_token,omitempty"` // issued only on activation
	EstimatedDuration    time.Duration    `json:"estimated_duration"`
	RequestedAt          time.Time        `json:"requested_at"`
	ActivatedAt          *time.Time       `json:"activated_at,omitempty"`
	ExpiresAt            *time.Time       `json:"expires_at,omitempty"`
}

type JITElevationGrant struct {
	ID                 string       `json:"id"`
	TenantID           string       `json:"tenant_id"`
	UserID             string       `json:"user_id"`
	GrantedPermissions []Permission `json:"granted_permissions"`
	ElevationToken     string       `json:"elevation_token"`
	Reason             string       `json:"reason"`
	GrantedAt          time.Time    `json:"granted_at"`
	ExpiresAt          time.Time    `json:"expires_at"`
}

type ConnectionStatus string

const (
	ConnectionStatusEstablished  ConnectionStatus = "ESTABLISHED"
	ConnectionStatusActive       ConnectionStatus = "ACTIVE"
	ConnectionStatusRevalidating ConnectionStatus = "REVALIDATING"
	ConnectionStatusTerminated   ConnectionStatus = "TERMINATED"
)

type LongLivedConnection struct {
	ConnectionID         string           `json:"connection_id"`
	TenantID             string           `json:"tenant_id"`
	UserID               string           `json:"user_id"`
	Resource             string           `json:"resource"`
	Permissions          []Permission     `json:"permissions"`
	Status               ConnectionStatus `json:"status"`
	RevalidationInterval time.Duration    `json:"revalidation_interval"`
	NextRevalidationAt   time.Time        `json:"next_revalidation_at"`
	EstablishedAt        time.Time        `json:"established_at"`
	Context              RequestContext   `json:"context,omitempty"`
}

// GrantSourceKind identifies where a synthetic grant came from.
type GrantSourceKind string

const (
	GrantSourceDelegation GrantSourceKind = "delegation"
	GrantSourceBreakGlass GrantSourceKind = "break_glass"
	GrantSourceJIT        GrantSourceKind = "jit"
)

// SyntheticGrant is a delegation, break-glass, or JIT grant rendered as an
// ALLOW candidate for the resolver. It sits below explicit tenant DENY
// policies and above the tenant default, and can never override a DENY.
type SyntheticGrant struct {
	ID          string          `json:"id"`
	Source      GrantSourceKind `json:"source"`
	UserID      string          `json:"user_id"`
	Permissions []Permission    `json:"permissions"`
	ExpiresAt   time.Time       `json:"expires_at"` // zero means no expiry
	IssuedAt    time.Time       `json:"issued_at"`
}
