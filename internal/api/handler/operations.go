// internal/api/handler/operations.go
package handler

import (
	"net/http"

	"herdvest-agent/internal/api/types"
	"herdvest-agent/internal/service"
)

// CreateListing handles POST /listings.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var input service.CreateListingInput
	if !h.decodeBody(w, r, &input) {
		return
	}
	outcome, err := h.service.CreateListing(r.Context(), input)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, types.OK(outcome))
}

// Invest handles POST /investments.
func (h *Handler) Invest(w http.ResponseWriter, r *http.Request) {
	var input service.InvestInput
	if !h.decodeBody(w, r, &input) {
		return
	}
	outcome, err := h.service.Invest(r.Context(), input)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, types.OK(outcome))
}

type requestRoleBody struct {
	Role string `json:"role"`
}

// RequestRole handles POST /roles/request.
func (h *Handler) RequestRole(w http.ResponseWriter, r *http.Request) {
	var body requestRoleBody
	if !h.decodeBody(w, r, &body) {
		return
	}
	outcome, err := h.service.RequestRole(r.Context(), body.Role)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, types.OK(outcome))
}

// ClaimFunds handles POST /funds/claim.
func (h *Handler) ClaimFunds(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.ClaimFunds(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, types.OK(outcome))
}

// Roles handles GET /roles.
func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	flags, err := h.service.Roles(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.OK(flags))
}
