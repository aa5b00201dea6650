// internal/api/handler/handler.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"herdvest-agent/internal/api/types"
	"herdvest-agent/internal/network"
	"herdvest-agent/internal/service"
	"herdvest-agent/internal/store"
	"herdvest-agent/internal/util"
	"herdvest-agent/internal/wallet"
)

// DefaultTimeout bounds request handling time.
const DefaultTimeout = 60 * time.Second

// Handler serves the surface-facing API over the core components.
type Handler struct {
	service service.ContractService
	records store.RecordStore
	session wallet.Session
	guard   *network.Guard
	logger  *slog.Logger
}

// NewHandler creates the surface API handler.
func NewHandler(svc service.ContractService, records store.RecordStore, session wallet.Session, guard *network.Guard, logger *slog.Logger) *Handler {
	return &Handler{
		service: svc,
		records: records,
		session: session,
		guard:   guard,
		logger:  logger,
	}
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError maps the error taxonomy onto HTTP statuses while
// keeping the human-readable message in the envelope.
func (h *Handler) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError

	switch {
	case util.IsError(err, util.ErrInvalidInput), util.IsError(err, util.ErrInvalidShares):
		statusCode = http.StatusBadRequest
	case util.IsError(err, util.ErrNotFound):
		statusCode = http.StatusNotFound
	case util.IsError(err, util.ErrInsufficientFunds):
		statusCode = http.StatusPaymentRequired
	case util.IsError(err, util.ErrOversold),
		util.IsError(err, util.ErrOperationInProgress),
		util.IsError(err, util.ErrUserRejected):
		statusCode = http.StatusConflict
	case util.IsError(err, util.ErrNotConnected), util.IsError(err, util.ErrWrongNetwork):
		statusCode = http.StatusPreconditionFailed
	case util.IsError(err, util.ErrNotInstalled),
		util.IsError(err, util.ErrConnectorUnavailable),
		util.IsError(err, util.ErrUnsupportedWallet):
		statusCode = http.StatusServiceUnavailable
	case util.IsError(err, util.ErrNetworkFailure):
		statusCode = http.StatusBadGateway
	default:
		h.logger.Error("Unhandled internal error", "error", err)
	}

	h.respondWithJSON(w, statusCode, types.Fail(err.Error()))
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, types.Fail("invalid request payload"))
		return false
	}
	return true
}
