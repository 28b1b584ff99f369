package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-io/authz-go/internal/breakglass"
	"github.com/gatehouse-io/authz-go/internal/httpx"
	"github.com/gatehouse-io/authz-go/internal/types"
)

type BreakGlassHandler struct {
	Manager *breakglass.Manager
}

func NewBreakGlassHandler(m *breakglass.Manager) *BreakGlassHandler {
	return &BreakGlassHandler{Manager: m}
}

type breakGlassRequest struct {
	TenantID                 string   `json:"tenant_id"`
	RequestedBy              string   `json:"requested_by"`
	EmergencyType            string   `json:"emergency_type"`
	Justification            string   `json:"justification,omitempty"`
	Permissions              []string `json:"permissions"`
	EstimatedDurationSeconds int      `json:"estimated_duration_seconds,omitempty"`
}

func (h *BreakGlassHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req breakGlassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	bg, err := h.Manager.Request(r.Context(), breakglass.RequestParams{
		TenantID:          req.TenantID,
		RequestedBy:       req.RequestedBy,
		EmergencyType:     req.EmergencyType,
		Justification:     req.Justification,
		Permissions:       perms,
		EstimatedDuration: time.Duration(req.EstimatedDurationSeconds) * time.Second,
	})
	if err != nil {
		writeBreakGlassError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bg)
}

func (h *BreakGlassHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestId")
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	bg, err := h.Manager.Approve(r.Context(), id, req.ApproverID, req.Role)
	if err != nil {
		writeBreakGlassError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bg)
}

type denyRequest struct {
	ApproverID string `json:"approver_id"`
	Reason     string `json:"reason,omitempty"`
}

func (h *BreakGlassHandler) Deny(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestId")
	var req denyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	bg, err := h.Manager.Deny(r.Context(), id, req.ApproverID, req.Reason)
	if err != nil {
		writeBreakGlassError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bg)
}

func (h *BreakGlassHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestId")
	bg, err := h.Manager.Get(id)
	if err != nil {
		writeBreakGlassError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bg)
}

func writeBreakGlassError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrBreakGlassApprovalRoleInvalid),
		errors.Is(err, types.ErrDuplicateApprover),
		errors.Is(err, types.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, types.ErrNotAuthorized):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, httpx.SafeErrMsg(err))
	}
}
