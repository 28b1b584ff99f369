package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-io/authz-go/internal/continuous"
	"github.com/gatehouse-io/authz-go/internal/httpx"
	"github.com/gatehouse-io/authz-go/internal/types"
)

type ConnectionsHandler struct {
	Manager *continuous.Manager
}

func NewConnectionsHandler(m *continuous.Manager) *ConnectionsHandler {
	return &ConnectionsHandler{Manager: m}
}

type establishRequest struct {
	TenantID        string               `json:"tenant_id"`
	UserID          string               `json:"user_id"`
	Resource        string               `json:"resource"`
	Permissions     []string             `json:"permissions"` // "action:resource"
	Context         types.RequestContext `json:"context,omitempty"`
	IntervalSeconds int                  `json:"revalidation_interval_seconds,omitempty"`
}

func (h *ConnectionsHandler) Establish(w http.ResponseWriter, r *http.Request) {
	var req establishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.Manager.Establish(r.Context(), continuous.EstablishParams{
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		Resource:    req.Resource,
		Permissions: perms,
		Context:     req.Context,
		Interval:    time.Duration(req.IntervalSeconds) * time.Second,
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidRequest):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, types.ErrNotAuthorized):
			httpx.WriteError(w, http.StatusForbidden, err.Error())
		default:
			httpx.WriteError(w, http.StatusInternalServerError, httpx.SafeErrMsg(err))
		}
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, conn)
}

func (h *ConnectionsHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "connectionId")
	res, err := h.Manager.Revalidate(r.Context(), id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "unknown connection")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, httpx.SafeErrMsg(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *ConnectionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "connectionId")
	if err := h.Manager.Close(id); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "unknown connection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "connectionId")
	conn, err := h.Manager.Get(id)
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "unknown connection")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, conn)
}

func parsePermissions(raw []string) ([]types.Permission, error) {
	perms := make([]types.Permission, 0, len(raw))
	for _, s := range raw {
		p, err := types.ParsePermission(s)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}
