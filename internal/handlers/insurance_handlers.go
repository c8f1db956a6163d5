package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"openfinance/internal/insurance"
)

type requestQuoteRequest struct {
	ProductCode    string `json:"product_code" validate:"required"`
	CoverageAmount string `json:"coverage_amount" validate:"required"`
	Currency       string `json:"currency" validate:"required,len=3"`
}

func (h *HTTPHandler) handleRequestQuote(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	var req requestQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	coverage, err := decimal.NewFromString(req.CoverageAmount)
	if err != nil || coverage.Sign() <= 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid coverage amount")
		return
	}

	result, err := h.insurance.RequestQuote(r.Context(), insurance.RequestQuoteCommand{
		TPPID:          tppID,
		ConsentID:      r.Header.Get(headerConsentID),
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		InteractionID:  r.Header.Get(headerInteractionID),
		ProductCode:    req.ProductCode,
		CoverageAmount: coverage,
		Currency:       req.Currency,
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

func (h *HTTPHandler) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	quote, err := h.insurance.GetQuote(r.Context(), mux.Vars(r)["id"], tppID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

func (h *HTTPHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	result, err := h.catalog.ListProducts(r.Context(), query.Get("category"), query.Get("currency"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
