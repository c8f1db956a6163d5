package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"openfinance/internal/treasury"
)

func (h *HTTPHandler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	includeVirtual, _ := strconv.ParseBool(r.URL.Query().Get("include_virtual"))

	result, err := h.treasury.ListAccounts(r.Context(), treasury.ListAccountsQuery{
		ConsentID:       r.Header.Get(headerConsentID),
		TPPID:           tppID,
		InteractionID:   r.Header.Get(headerInteractionID),
		IncludeVirtual:  includeVirtual,
		MasterAccountID: r.URL.Query().Get("master_account_id"),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	result, err := h.treasury.GetBalances(r.Context(), treasury.GetBalancesQuery{
		ConsentID:     r.Header.Get(headerConsentID),
		TPPID:         tppID,
		AccountID:     mux.Vars(r)["id"],
		InteractionID: r.Header.Get(headerInteractionID),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	q := treasury.GetTransactionsQuery{
		ConsentID:     r.Header.Get(headerConsentID),
		TPPID:         tppID,
		InteractionID: r.Header.Get(headerInteractionID),
		AccountID:     query.Get("account_id"),
	}

	if from, err := parseDateParam(query.Get("from")); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid from date")
		return
	} else {
		q.From = from
	}
	if to, err := parseDateParam(query.Get("to")); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid to date")
		return
	} else {
		q.To = to
	}

	q.Page, _ = strconv.Atoi(query.Get("page"))
	q.PageSize, _ = strconv.Atoi(query.Get("page_size"))

	result, err := h.treasury.GetTransactions(r.Context(), q)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// parseDateParam accepts RFC 3339 timestamps or plain dates.
func parseDateParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
