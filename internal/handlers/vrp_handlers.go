package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"openfinance/internal/payrequest"
)

type createVRPConsentRequest struct {
	PSUID     string    `json:"psu_id" validate:"required"`
	Limit     string    `json:"limit" validate:"required"`
	Currency  string    `json:"currency" validate:"required,len=3"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

func (h *HTTPHandler) handleCreateVRPConsent(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	var req createVRPConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := decimal.NewFromString(req.Limit)
	if err != nil || limit.Sign() <= 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	consent, err := h.vrp.CreateConsent(r.Context(), payrequest.CreateConsentCommand{
		TPPID:         tppID,
		PSUID:         req.PSUID,
		Limit:         limit,
		Currency:      req.Currency,
		ExpiresAt:     req.ExpiresAt,
		InteractionID: r.Header.Get(headerInteractionID),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, consent)
}

func (h *HTTPHandler) handleGetVRPConsent(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	consent, err := h.vrp.GetConsent(r.Context(), mux.Vars(r)["id"], tppID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, consent)
}

type revokeVRPConsentRequest struct {
	Reason string `json:"reason"`
}

func (h *HTTPHandler) handleRevokeVRPConsent(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	var req revokeVRPConsentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	consent, err := h.vrp.RevokeConsent(r.Context(), payrequest.RevokeConsentCommand{
		ConsentID:     mux.Vars(r)["id"],
		TPPID:         tppID,
		InteractionID: r.Header.Get(headerInteractionID),
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, consent)
}

type submitVRPPaymentRequest struct {
	ConsentID string `json:"consent_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Currency  string `json:"currency" validate:"required,len=3"`
}

func (h *HTTPHandler) handleSubmitVRPPayment(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	var req submitVRPPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	result, err := h.vrp.SubmitPayment(r.Context(), payrequest.SubmitPaymentCommand{
		TPPID:          tppID,
		ConsentID:      req.ConsentID,
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		Amount:         amount,
		Currency:       req.Currency,
		InteractionID:  r.Header.Get(headerInteractionID),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set(headerInteractionID, result.InteractionID)
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.writeJSON(w, status, result)
}

func (h *HTTPHandler) handleGetVRPPayment(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	payment, err := h.vrp.GetPayment(r.Context(), mux.Vars(r)["id"], tppID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, payment)
}
