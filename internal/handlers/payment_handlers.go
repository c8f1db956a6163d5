package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"openfinance/internal/bulk"
	"openfinance/internal/payments"
)

type submitPaymentRequest struct {
	InstructionID   string     `json:"instruction_id" validate:"required"`
	EndToEndID      string     `json:"end_to_end_id"`
	DebtorAccountID string     `json:"debtor_account_id" validate:"required"`
	Amount          string     `json:"amount" validate:"required"`
	Currency        string     `json:"currency" validate:"required,len=3"`
	PayeeScheme     string     `json:"payee_scheme"`
	PayeeID         string     `json:"payee_id" validate:"required"`
	PayeeName       string     `json:"payee_name"`
	ExecutionDate   *time.Time `json:"execution_date,omitempty"`
}

func (h *HTTPHandler) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	// The signature and the idempotency hash are both computed over the
	// exact request bytes, so the body is read raw before decoding.
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req submitPaymentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	result, err := h.payments.Submit(r.Context(), payments.SubmitCommand{
		TPPID:          tppID,
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		ConsentID:      r.Header.Get(headerConsentID),
		InteractionID:  r.Header.Get(headerInteractionID),
		Payload:        payload,
		Signature:      r.Header.Get(headerSignature),
		Initiation: payments.Initiation{
			InstructionID:   req.InstructionID,
			EndToEndID:      req.EndToEndID,
			DebtorAccountID: req.DebtorAccountID,
			Amount:          amount,
			Currency:        req.Currency,
			PayeeScheme:     req.PayeeScheme,
			PayeeID:         req.PayeeID,
			PayeeName:       req.PayeeName,
			ExecutionDate:   req.ExecutionDate,
		},
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

func (h *HTTPHandler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	txn, err := h.payments.GetPayment(r.Context(), mux.Vars(r)["id"], tppID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, txn)
}

type submitBulkFileRequest struct {
	FileName      string `json:"file_name" validate:"required"`
	IntegrityMode string `json:"integrity_mode" validate:"omitempty,oneof=PARTIAL_REJECTION FULL_REJECTION"`
	Content       []byte `json:"content" validate:"required"`
	FileHash      string `json:"file_hash" validate:"required"`
}

func (h *HTTPHandler) handleSubmitBulkFile(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	var req submitBulkFileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode := bulk.IntegrityMode(req.IntegrityMode)
	if mode == "" {
		mode = bulk.PartialRejection
	}

	result, err := h.bulk.SubmitFile(r.Context(), bulk.SubmitCommand{
		TPPID:          tppID,
		ConsentID:      r.Header.Get(headerConsentID),
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		InteractionID:  r.Header.Get(headerInteractionID),
		FileName:       req.FileName,
		IntegrityMode:  mode,
		Content:        req.Content,
		FileHash:       req.FileHash,
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

func (h *HTTPHandler) handleGetBulkFileStatus(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	file, err := h.bulk.GetFileStatus(r.Context(), mux.Vars(r)["id"], tppID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, file)
}

func (h *HTTPHandler) handleGetBulkFileReport(w http.ResponseWriter, r *http.Request) {
	tppID, ok := h.requireTPP(w, r)
	if !ok {
		return
	}

	report, err := h.bulk.GetFileReport(r.Context(), mux.Vars(r)["id"], tppID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}
