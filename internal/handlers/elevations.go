package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gatehouse-io/authz-go/internal/elevation"
	"github.com/gatehouse-io/authz-go/internal/httpx"
	"github.com/gatehouse-io/authz-go/internal/types"
)

type ElevationsHandler struct {
	Granter *elevation.Granter
}

func NewElevationsHandler(g *elevation.Granter) *ElevationsHandler {
	return &ElevationsHandler{Granter: g}
}

type elevationRequest struct {
	TenantID    string   `json:"tenant_id"`
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
	Reason      string   `json:"reason"`
	TTLSeconds  int      `json:"ttl_seconds,omitempty"`
}

func (h *ElevationsHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req elevationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	grant, err := h.Granter.Request(r.Context(), elevation.RequestParams{
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		Permissions: perms,
		Reason:      req.Reason,
		TTL:         time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		if errors.Is(err, types.ErrInvalidRequest) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, httpx.SafeErrMsg(err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, grant)
}
