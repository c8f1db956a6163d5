package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"openfinance/internal/clock"
	"openfinance/internal/domain"
	"openfinance/internal/idempotency"
	"openfinance/internal/metrics"
)

const submitOperation = "payments.submit"

// Settings holds the payment pipeline configuration.
type Settings struct {
	// IdempotencyTTL is the deduplication window for submissions,
	// typically 24h.
	IdempotencyTTL time.Duration
}

// Pipeline orchestrates a single payment submission end to end. All external
// state is reached through ports; the pipeline itself is stateless and safe
// for concurrent use.
type Pipeline struct {
	consents     ConsentPort
	idempotency  *idempotency.Coordinator
	transactions TransactionPort
	funds        FundsReservationPort
	risk         RiskAssessmentPort
	signatures   SignatureValidationPort
	events       EventPort
	settings     Settings
	clock        clock.Clock
	metrics      *metrics.Collector
	logger       *slog.Logger
}

// NewPipeline creates a payment submission pipeline.
func NewPipeline(
	consents ConsentPort,
	coordinator *idempotency.Coordinator,
	transactions TransactionPort,
	funds FundsReservationPort,
	risk RiskAssessmentPort,
	signatures SignatureValidationPort,
	events EventPort,
	settings Settings,
	clk clock.Clock,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		consents:     consents,
		idempotency:  coordinator,
		transactions: transactions,
		funds:        funds,
		risk:         risk,
		signatures:   signatures,
		events:       events,
		settings:     settings,
		clock:        clk,
		metrics:      collector,
		logger:       logger,
	}
}

// Submit runs the pipeline for one payment:
// signature check, consent binding, idempotency reconciliation, risk
// assessment, funds reservation (immediate payments only), persistence, and
// event publication. Replays return the stored result without re-executing
// any side effect.
func (p *Pipeline) Submit(ctx context.Context, cmd SubmitCommand) (*Result, error) {
	start := p.clock.Now()
	p.metrics.IncrementRequests(submitOperation)
	defer p.metrics.ObserveDuration(submitOperation, start)

	result, err := p.submit(ctx, cmd)
	if err != nil {
		p.metrics.IncrementErrors(submitOperation)
		if domain.IsConflict(err) {
			p.metrics.RecordConflict(submitOperation)
		}
		return nil, err
	}
	if result.Replayed {
		p.metrics.RecordReplay(submitOperation)
	}
	return result, nil
}

func (p *Pipeline) submit(ctx context.Context, cmd SubmitCommand) (*Result, error) {
	now := p.clock.Now()
	payloadHash := domain.HashPayload(cmd.Payload)

	valid, err := p.signatures.IsValid(ctx, cmd.Signature, cmd.Payload)
	if err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}
	if !valid {
		return nil, domain.Pipeline("Signature Invalid")
	}

	consentSnapshot, err := p.bindConsent(ctx, cmd, now)
	if err != nil {
		return nil, err
	}

	outcome, err := p.idempotency.Reconcile(ctx, cmd.IdempotencyKey, cmd.TPPID, payloadHash)
	if err != nil {
		return nil, err
	}
	if outcome.Replayed {
		return p.replayResult(ctx, cmd, outcome.Record)
	}

	decision, err := p.risk.Assess(ctx, cmd.Initiation, cmd.TPPID)
	if err != nil {
		return nil, fmt.Errorf("risk assessment failed: %w", err)
	}

	status := StatusAcceptedSettlementInProcess
	switch {
	case decision == RiskReject:
		status = StatusRejected
	case p.futureDated(cmd.Initiation, now):
		// Funds reservation only applies to immediate payments.
		status = StatusPending
	default:
		reserved, err := p.funds.Reserve(
			ctx,
			cmd.Initiation.DebtorAccountID,
			cmd.Initiation.Amount,
			cmd.Initiation.Currency,
			cmd.Initiation.InstructionID,
		)
		if err != nil {
			return nil, fmt.Errorf("funds reservation failed: %w", err)
		}
		if !reserved {
			return nil, domain.Pipeline("Insufficient funds")
		}
	}

	txn := &Transaction{
		PaymentID:       "PAY-" + uuid.NewString(),
		ConsentID:       cmd.ConsentID,
		TPPID:           cmd.TPPID,
		InstructionID:   cmd.Initiation.InstructionID,
		EndToEndID:      cmd.Initiation.EndToEndID,
		DebtorAccountID: cmd.Initiation.DebtorAccountID,
		Amount:          cmd.Initiation.Amount,
		Currency:        cmd.Initiation.Currency,
		PayeeHash:       consentSnapshot.PayeeHash,
		Status:          status,
		CreatedAt:       now,
	}

	canonical, replayed, err := p.idempotency.Commit(ctx, &idempotency.Record{
		Key:         cmd.IdempotencyKey,
		CallerID:    cmd.TPPID,
		PayloadHash: payloadHash,
		ResourceID:  txn.PaymentID,
		Status:      string(status),
		ExpiresAt:   now.Add(p.settings.IdempotencyTTL),
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		// A concurrent submission with the same key won the race; its
		// result is canonical and our transaction is discarded unpersisted.
		return p.replayResult(ctx, cmd, canonical)
	}

	if err := p.transactions.Save(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to persist payment: %w", err)
	}
	if err := p.events.PublishPaymentSubmitted(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to publish payment event: %w", err)
	}

	p.logger.Info("payment submitted",
		"payment_id", txn.PaymentID,
		"consent_id", cmd.ConsentID,
		"tpp_id", cmd.TPPID,
		"status", status)

	return &Result{
		PaymentID:     txn.PaymentID,
		Status:        status,
		InteractionID: cmd.InteractionID,
		CreatedAt:     txn.CreatedAt,
	}, nil
}

// GetPayment loads a persisted payment by id for the owning TPP.
func (p *Pipeline) GetPayment(ctx context.Context, paymentID, tppID string) (*Transaction, error) {
	txn, err := p.transactions.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.NotFound("Payment not found")
	}
	if txn.TPPID != tppID {
		return nil, domain.Forbidden("Consent participant mismatch")
	}
	return txn, nil
}

// bindConsent validates the consent itself, then binds the payment to it:
// declared amount within the authorized ceiling, currency equal, payee
// identity hash equal.
func (p *Pipeline) bindConsent(ctx context.Context, cmd SubmitCommand, now time.Time) (*Consent, error) {
	snapshot, err := p.consents.FindByID(ctx, cmd.ConsentID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, domain.Forbidden("Consent not found")
	}
	if snapshot.TPPID != cmd.TPPID {
		return nil, domain.Forbidden("Consent participant mismatch")
	}
	if !snapshot.ExpiresAt.After(now) {
		return nil, domain.Forbidden("Consent expired")
	}
	if snapshot.Status != ConsentAuthorized {
		return nil, domain.Pipeline("Consent binding validation failed")
	}

	initiation := cmd.Initiation
	if initiation.Amount.GreaterThan(snapshot.AuthorizedAmount) ||
		initiation.Currency != snapshot.Currency ||
		domain.HashIdentity(initiation.PayeeID) != snapshot.PayeeHash {
		return nil, domain.Pipeline("Consent binding validation failed")
	}
	return snapshot, nil
}

func (p *Pipeline) futureDated(initiation Initiation, now time.Time) bool {
	if initiation.ExecutionDate == nil {
		return false
	}
	execY, execM, execD := initiation.ExecutionDate.UTC().Date()
	nowY, nowM, nowD := now.UTC().Date()
	exec := time.Date(execY, execM, execD, 0, 0, 0, 0, time.UTC)
	today := time.Date(nowY, nowM, nowD, 0, 0, 0, 0, time.UTC)
	return exec.After(today)
}

func (p *Pipeline) replayResult(ctx context.Context, cmd SubmitCommand, rec *idempotency.Record) (*Result, error) {
	txn, err := p.transactions.FindByPaymentID(ctx, rec.ResourceID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.NotFound("Payment not found")
	}
	return &Result{
		PaymentID:     txn.PaymentID,
		Status:        txn.Status,
		InteractionID: cmd.InteractionID,
		Replayed:      true,
		CreatedAt:     txn.CreatedAt,
	}, nil
}
