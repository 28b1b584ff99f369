package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-io/authz-go/internal/delegation"
	"github.com/gatehouse-io/authz-go/internal/httpx"
	"github.com/gatehouse-io/authz-go/internal/types"
)

type DelegationsHandler struct {
	Engine *delegation.Engine
}

func NewDelegationsHandler(e *delegation.Engine) *DelegationsHandler {
	return &DelegationsHandler{Engine: e}
}

type createDelegationRequest struct {
	TenantID             string   `json:"tenant_id"`
	DelegatorID          string   `json:"delegator_id"`
	DelegateeID          string   `json:"delegatee_id"`
	Permissions          []string `json:"permissions"`
	Scope                string   `json:"scope,omitempty"`
	ParentDelegationID   string   `json:"parent_delegation_id,omitempty"`
	MaxDelegationDepth   int      `json:"max_delegation_depth,omitempty"`
	TTLSeconds           int      `json:"ttl_seconds,omitempty"`
	ApprovalChain        []string `json:"approval_chain,omitempty"`
	RequiresAllApprovals bool     `json:"requires_all_approvals,omitempty"`
	// Partial restricts the delegatee to a subset of the delegator's own
	// effective permissions, verified before activation.
	Partial bool `json:"partial,omitempty"`
}

func (h *DelegationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDelegationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := delegation.CreateParams{
		TenantID:             req.TenantID,
		DelegatorID:          req.DelegatorID,
		DelegateeID:          req.DelegateeID,
		Permissions:          perms,
		Scope:                req.Scope,
		ParentDelegationID:   req.ParentDelegationID,
		MaxDelegationDepth:   req.MaxDelegationDepth,
		ApprovalChain:        req.ApprovalChain,
		RequiresAllApprovals: req.RequiresAllApprovals,
	}
	if req.TTLSeconds > 0 {
		params.ExpiresAt = time.Now().UTC().Add(time.Duration(req.TTLSeconds) * time.Second)
	}

	var d *types.Delegation
	if req.Partial {
		d, err = h.Engine.CreatePartialPolicyDelegation(r.Context(), params)
	} else {
		d, err = h.Engine.CreateDelegation(r.Context(), params)
	}
	if err != nil {
		writeDelegationError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, d)
}

type approvalRequest struct {
	ApproverID string `json:"approver_id"`
	Role       string `json:"role"`
}

func (h *DelegationsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "delegationId")
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	d, err := h.Engine.Approve(r.Context(), id, req.ApproverID, req.Role)
	if err != nil {
		writeDelegationError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

type approvalChainRequest struct {
	ApprovalChain        []string `json:"approval_chain"`
	RequiresAllApprovals bool     `json:"requires_all_approvals"`
}

func (h *DelegationsHandler) ConfigureChain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "delegationId")
	var req approvalChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	d, err := h.Engine.ConfigureApprovalChain(r.Context(), id, req.ApprovalChain, req.RequiresAllApprovals)
	if err != nil {
		writeDelegationError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

func (h *DelegationsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "delegationId")
	if err := h.Engine.RevokeDelegation(r.Context(), id); err != nil {
		writeDelegationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DelegationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "delegationId")
	d, err := h.Engine.Get(id)
	if err != nil {
		writeDelegationError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

func writeDelegationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrDelegationDepthExceeded),
		errors.Is(err, types.ErrDelegationPermissionNotOwned),
		errors.Is(err, types.ErrApproverRoleInvalid),
		errors.Is(err, types.ErrDuplicateApprover),
		errors.Is(err, types.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, types.ErrNotAuthorized):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, httpx.SafeErrMsg(err))
	}
}
