package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gatehouse-io/authz-go/internal/authz"
	"github.com/gatehouse-io/authz-go/internal/httpx"
	"github.com/gatehouse-io/authz-go/internal/types"
)

type EvaluateHandler struct {
	Engine *authz.Engine
}

func NewEvaluateHandler(e *authz.Engine) *EvaluateHandler {
	return &EvaluateHandler{Engine: e}
}

func (h *EvaluateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req types.AuthorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	dec, err := h.Engine.Evaluate(r.Context(), req)
	if err != nil {
		if errors.Is(err, types.ErrInvalidRequest) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dec)
}

type batchRequest struct {
	Requests []types.AuthorizationRequest `json:"requests"`
}

type batchResponse struct {
	Decisions []types.Decision `json:"decisions"`
}

func (h *EvaluateHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Requests) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "empty batch")
		return
	}

	decs, err := h.Engine.EvaluateBatch(r.Context(), req.Requests)
	if err != nil {
		if errors.Is(err, types.ErrInvalidRequest) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, batchResponse{Decisions: decs})
}
