package types

import (
	"strings"
	"time"
)

type Effect string

const (
	EffectAllow     Effect = "ALLOW"
	EffectDeny      Effect = "DENY"
	EffectAuditOnly Effect = "AUDIT_ONLY"
	EffectWarning   Effect = "WARNING"
)

type PolicyStatus string

const (
	PolicyStatusDraft      PolicyStatus = "DRAFT"
	PolicyStatusTesting    PolicyStatus = "TESTING"
	PolicyStatusActive     PolicyStatus = "ACTIVE"
	PolicyStatusInactive   PolicyStatus = "INACTIVE"
	PolicyStatusDeprecated PolicyStatus = "DEPRECATED"
)

// Conditions are the attribute predicates attached to a policy. A zero
// Conditions value matches any request context.
type Conditions struct {
	RequiredClearance string `json:"required_clearance,omitempty"`
	// RequiredRelation names a relationship edge (e.g. "member_of") whose
	// targets in the request context must include the resource.
	RequiredRelation    string            `json:"required_relation,omitempty"`
	MaxRiskScore        *int              `json:"max_risk_score,omitempty"`
	RequiredDeviceTrust string            `json:"required_device_trust,omitempty"`
	Extra               map[string]string `json:"extra,omitempty"`
}

func (c Conditions) Empty() bool {
	return c.RequiredClearance == "" && c.RequiredRelation == "" &&
		c.MaxRiskScore == nil && c.RequiredDeviceTrust == "" && len(c.Extra) == 0
}

type Policy struct {
	ID                 string       `json:"id"`
	TenantID           string       `json:"tenant_id"`
	Name               string       `json:"name"`
	Effect             Effect       `json:"effect"`
	Priority           int          `json:"priority"` // lower evaluates first
	Subjects           []string     `json:"subjects,omitempty"`
	Resources          []string     `json:"resources,omitempty"`
	Actions            []string     `json:"actions,omitempty"`
	Conditions         Conditions   `json:"conditions,omitempty"`
	MFARequired        bool         `json:"mfa_required,omitempty"`
	StepUpRequired     bool         `json:"step_up_required,omitempty"`
	BreakGlassEligible bool         `json:"break_glass_eligible,omitempty"`
	Status             PolicyStatus `json:"status"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	DeletedAt          *time.Time   `json:"deleted_at,omitempty"`
}

// RequestContext is the typed attribute bag carried by a request: a small
// closed set of well-known keys plus an extension map for tenant-specific
// attributes.
type RequestContext struct {
	ClearanceLevel string              `json:"clearance_level,omitempty"`
	Relationships  map[string][]string `json:"relationships,omitempty"` // edge -> targets
	RiskScore      int                 `json:"risk_score,omitempty"`
	DeviceTrust    string              `json:"device_trust,omitempty"`
	MFAVerified    bool                `json:"mfa_verified,omitempty"`
	StepUpVerified bool                `json:"step_up_verified,omitempty"`
	Extra          map[string]string   `json:"extra,omitempty"`
}

// HasRelation reports whether the context demonstrates the named edge from
// the subject to the target.
func (c RequestContext) HasRelation(relation, target string) bool {
	for _, t := range c.Relationships[relation] {
		if t == target {
			return true
		}
	}
	return false
}

// AuthorizationRequest is an immutable per-call value; it is never persisted.
type AuthorizationRequest struct {
	TenantID string         `json:"tenant_id"`
	Subject  string         `json:"subject"` // e.g. "user:alice"
	Resource string         `json:"resource"`
	Action   string         `json:"action"`
	Context  RequestContext `json:"context,omitempty"`
}

func (r AuthorizationRequest) Validate() error {
	if strings.TrimSpace(r.Subject) == "" ||
		strings.TrimSpace(r.Resource) == "" ||
		strings.TrimSpace(r.Action) == "" {
		return ErrInvalidRequest
	}
	return nil
}

type Decision struct {
	Authorized       bool      `json:"authorized"`
	Effect           Effect    `json:"effect"`
	MatchedPolicyID  string    `json:"matched_policy_id,omitempty"`
	Reason           string    `json:"reason"`
	EvaluationID     string    `json:"evaluation_id"`
	ConsistencyToken string    `json:"consistency_token"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// Reason codes carried on decisions. Internal failures never leak detail
// beyond ReasonEvaluationError; the specifics go to the audit record.
const (
	ReasonExplicitDeny     = "explicit_deny"
	ReasonPolicyMatched    = "policy_matched"
	ReasonWarningOnly      = "warning_only"
	ReasonDelegatedGrant   = "delegated_grant"
	ReasonBreakGlassGrant  = "break_glass_grant"
	ReasonJITGrant         = "jit_grant"
	ReasonDefaultAllow     = "default_allow"
	ReasonDefaultDeny      = "default_deny"
	ReasonMFARequired      = "mfa_required"
	ReasonStepUpRequired   = "step_up_required"
	ReasonElevationExpired = "elevation_expired"
	ReasonInvalidRequest   = "invalid_request"
	ReasonStoreUnavailable = "policy_store_unavailable"
	ReasonEvaluationError  = "evaluation_error"
)
