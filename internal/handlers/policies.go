package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-io/authz-go/internal/httpx"
	"github.com/gatehouse-io/authz-go/internal/store"
	"github.com/gatehouse-io/authz-go/internal/types"
)

// PoliciesHandler is the admin CRUD surface for tenant policies.
type PoliciesHandler struct {
	Store store.PolicyStore
}

func NewPoliciesHandler(s store.PolicyStore) *PoliciesHandler {
	return &PoliciesHandler{Store: s}
}

func (h *PoliciesHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	var p types.Policy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p.TenantID = tenant
	created, err := h.Store.CreatePolicy(r.Context(), p)
	if err != nil {
		writePolicyError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *PoliciesHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	id := chi.URLParam(r, "policyId")
	var p types.Policy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p.TenantID = tenant
	p.ID = id
	updated, err := h.Store.UpdatePolicy(r.Context(), p)
	if err != nil {
		writePolicyError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *PoliciesHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	policies, err := h.Store.ListPolicies(r.Context(), tenant)
	if err != nil {
		writePolicyError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"policies": policies})
}

func (h *PoliciesHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	id := chi.URLParam(r, "policyId")
	p, err := h.Store.GetPolicy(r.Context(), tenant, id)
	if err != nil {
		writePolicyError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *PoliciesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	id := chi.URLParam(r, "policyId")
	if err := h.Store.DeletePolicy(r.Context(), tenant, id); err != nil {
		writePolicyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writePolicyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrPolicyStoreUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "policy store unavailable")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, httpx.SafeErrMsg(err))
	}
}
