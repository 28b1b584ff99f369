package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gatehouse-io/authz-go/internal/httpx"
	"github.com/gatehouse-io/authz-go/internal/token"
)

// IntrospectHandler validates emergency access and elevation tokens for
// resource servers.
type IntrospectHandler struct {
	Tokens *token.Store
}

func NewIntrospectHandler(s *token.Store) *IntrospectHandler {
	return &IntrospectHandler{Tokens: s}
}

type introspectRequest struct {
	Token string `json:"token"`
}

type introspectResponse struct {
	Active      bool       `json:"active"`
	Kind        token.Kind `json:"kind,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	TenantID    string     `json:"tenant_id,omitempty"`
	GrantID     string     `json:"grant_id,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	ExpiresAt   int64      `json:"expires_at,omitempty"`
}

func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req introspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	rec, err := h.Tokens.Validate(r.Context(), req.Token)
	if err != nil {
		// Invalid, expired, and revoked all look the same to callers.
		httpx.WriteJSON(w, http.StatusOK, introspectResponse{Active: false})
		return
	}

	resp := introspectResponse{
		Active:    true,
		Kind:      rec.Kind,
		Subject:   rec.Subject,
		TenantID:  rec.TenantID,
		GrantID:   rec.GrantID,
		ExpiresAt: rec.ExpiresAt.Unix(),
	}
	for _, p := range rec.Permissions {
		resp.Permissions = append(resp.Permissions, p.String())
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
