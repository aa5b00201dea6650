// internal/api/handler/records.go
package handler

import (
	"net/http"
	"strconv"

	"herdvest-agent/internal/api/types"
	"herdvest-agent/internal/domain"
	"herdvest-agent/internal/store"

	"github.com/go-chi/chi/v5"
)

// ListAssets handles GET /listings. Optional query filters: owner,
// status, active.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	filter := store.AssetFilter{
		Owner:      r.URL.Query().Get("owner"),
		Status:     domain.VerificationStatus(r.URL.Query().Get("status")),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	assets, err := h.records.ListAssets(r.Context(), filter)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.OK(assets))
}

// ListInvestments handles GET /investments. Optional query filters:
// investor, listing_id.
func (h *Handler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	filter := store.InvestmentFilter{Investor: r.URL.Query().Get("investor")}
	if raw := r.URL.Query().Get("listing_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.respondWithJSON(w, http.StatusBadRequest, types.Fail("invalid listing_id"))
			return
		}
		filter.ListingID = id
	}
	investments, err := h.records.ListInvestments(r.Context(), filter)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.OK(investments))
}

type setStatusBody struct {
	Status domain.VerificationStatus `json:"status"`
}

// SetAssetStatus handles PUT /listings/{listingID}/status, the explicit
// authorization action that moves a listing out of pending.
func (h *Handler) SetAssetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "listingID"), 10, 64)
	if err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, types.Fail("invalid listing id"))
		return
	}
	var body setStatusBody
	if !h.decodeBody(w, r, &body) {
		return
	}
	listing, err := h.records.SetAssetStatus(r.Context(), id, body.Status)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.OK(listing))
}

// DeactivateAsset handles DELETE /listings/{listingID}; listings are only
// ever deactivated, never removed.
func (h *Handler) DeactivateAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "listingID"), 10, 64)
	if err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, types.Fail("invalid listing id"))
		return
	}
	if err := h.records.DeactivateAsset(r.Context(), id); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.OK(nil))
}

type adjustSharesBody struct {
	AvailableShares int64 `json:"available_shares"`
}

// AdjustShares handles PUT /listings/{listingID}/shares, the admin
// correction path. It is the only way available shares may increase
// outside a withdrawal or rollback.
func (h *Handler) AdjustShares(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "listingID"), 10, 64)
	if err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, types.Fail("invalid listing id"))
		return
	}
	var body adjustSharesBody
	if !h.decodeBody(w, r, &body) {
		return
	}
	if err := h.records.AdjustAvailableShares(r.Context(), id, body.AvailableShares); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.OK(nil))
}

type withdrawBody struct {
	Shares int64 `json:"shares"`
}

// WithdrawInvestment handles POST /investments/{investmentID}/withdraw.
func (h *Handler) WithdrawInvestment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "investmentID"), 10, 64)
	if err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, types.Fail("invalid investment id"))
		return
	}
	var body withdrawBody
	if !h.decodeBody(w, r, &body) {
		return
	}
	if err := h.records.WithdrawInvestment(r.Context(), id, body.Shares); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.OK(nil))
}
