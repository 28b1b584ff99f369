package types

// Err is a lightweight sentinel error type for the engine's taxonomy.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrInvalidRequest                = Err("invalid_request")
	ErrPolicyStoreUnavailable        = Err("policy_store_unavailable")
	ErrDelegationDepthExceeded       = Err("delegation_depth_exceeded")
	ErrDelegationPermissionNotOwned  = Err("delegation_permission_not_owned")
	ErrBreakGlassApprovalRoleInvalid = Err("break_glass_approval_role_invalid")
	ErrElevationExpired              = Err("elevation_expired")
	ErrApproverRoleInvalid           = Err("approver_role_invalid")
	ErrDuplicateApprover             = Err("duplicate_approver")
	ErrNotFound                      = Err("not_found")
	ErrNotAuthorized                 = Err("not_authorized")
)
