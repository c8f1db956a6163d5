// Package handlers exposes the open finance operations over HTTP. It maps
// domain errors to status codes and never leaks internals to callers.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"openfinance/internal/bulk"
	"openfinance/internal/catalog"
	"openfinance/internal/domain"
	"openfinance/internal/insurance"
	"openfinance/internal/payments"
	"openfinance/internal/payrequest"
	"openfinance/internal/treasury"
)

// Request headers carried by every TPP-facing endpoint.
const (
	headerTPPID          = "X-TPP-Id"
	headerConsentID      = "X-Consent-Id"
	headerIdempotencyKey = "X-Idempotency-Key"
	headerInteractionID  = "x-fapi-interaction-id"
	headerSignature      = "x-jws-signature"
)

// HTTPHandler handles HTTP requests for the open finance core
type HTTPHandler struct {
	logger    *slog.Logger
	validate  *validator.Validate
	payments  *payments.Pipeline
	bulk      *bulk.Processor
	treasury  *treasury.Service
	vrp       *payrequest.Service
	insurance *insurance.Service
	catalog   *catalog.Service
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	logger *slog.Logger,
	paymentPipeline *payments.Pipeline,
	bulkProcessor *bulk.Processor,
	treasuryService *treasury.Service,
	vrpService *payrequest.Service,
	insuranceService *insurance.Service,
	catalogService *catalog.Service,
) *HTTPHandler {
	return &HTTPHandler{
		logger:    logger,
		validate:  validator.New(),
		payments:  paymentPipeline,
		bulk:      bulkProcessor,
		treasury:  treasuryService,
		vrp:       vrpService,
		insurance: insuranceService,
		catalog:   catalogService,
	}
}

// RegisterRoutes registers HTTP routes
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	paymentRouter := router.PathPrefix("/payments").Subrouter()
	paymentRouter.HandleFunc("", h.handleSubmitPayment).Methods("POST")
	paymentRouter.HandleFunc("/{id}", h.handleGetPayment).Methods("GET")

	bulkRouter := router.PathPrefix("/bulk-payments").Subrouter()
	bulkRouter.HandleFunc("", h.handleSubmitBulkFile).Methods("POST")
	bulkRouter.HandleFunc("/{id}", h.handleGetBulkFileStatus).Methods("GET")
	bulkRouter.HandleFunc("/{id}/report", h.handleGetBulkFileReport).Methods("GET")

	treasuryRouter := router.PathPrefix("/treasury").Subrouter()
	treasuryRouter.HandleFunc("/accounts", h.handleListAccounts).Methods("GET")
	treasuryRouter.HandleFunc("/accounts/{id}/balances", h.handleGetBalances).Methods("GET")
	treasuryRouter.HandleFunc("/transactions", h.handleGetTransactions).Methods("GET")

	vrpRouter := router.PathPrefix("/payment-requests").Subrouter()
	vrpRouter.HandleFunc("/consents", h.handleCreateVRPConsent).Methods("POST")
	vrpRouter.HandleFunc("/consents/{id}", h.handleGetVRPConsent).Methods("GET")
	vrpRouter.HandleFunc("/consents/{id}/revoke", h.handleRevokeVRPConsent).Methods("POST")
	vrpRouter.HandleFunc("/payments", h.handleSubmitVRPPayment).Methods("POST")
	vrpRouter.HandleFunc("/payments/{id}", h.handleGetVRPPayment).Methods("GET")

	insuranceRouter := router.PathPrefix("/insurance").Subrouter()
	insuranceRouter.HandleFunc("/quotes", h.handleRequestQuote).Methods("POST")
	insuranceRouter.HandleFunc("/quotes/{id}", h.handleGetQuote).Methods("GET")

	router.HandleFunc("/products", h.handleListProducts).Methods("GET")
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "openfinance",
	}

	h.writeJSON(w, http.StatusOK, health)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// writeDomainError maps a domain error to its HTTP status. Unrecognized
// errors become opaque 500s.
func (h *HTTPHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsForbidden(err):
		h.writeError(w, http.StatusForbidden, err.Error())
	case domain.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, err.Error())
	case domain.IsConflict(err):
		h.writeError(w, http.StatusConflict, err.Error())
	case domain.IsRuleViolation(err):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case domain.IsPipeline(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Unhandled error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// requireTPP reads the caller identity header; a missing TPP id fails the
// request before any domain call.
func (h *HTTPHandler) requireTPP(w http.ResponseWriter, r *http.Request) (string, bool) {
	tppID := r.Header.Get(headerTPPID)
	if tppID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing X-TPP-Id header")
		return "", false
	}
	return tppID, true
}
