// Package payrequest implements variable recurring payments: long-lived
// consents with a combined per-payment and cumulative limit, under which a
// payee pulls collections without per-payment authorization.
package payrequest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"openfinance/internal/cache"
	"openfinance/internal/clock"
	"openfinance/internal/domain"
	"openfinance/internal/idempotency"
	"openfinance/internal/metrics"
)

const (
	createOperation = "payrequest.consent.create"
	submitOperation = "payrequest.submit"
	revokeOperation = "payrequest.consent.revoke"
	getOperation    = "payrequest.get"
)

// periodLayout buckets cumulative usage by calendar month.
const periodLayout = "2006-01"

// Settings bounds the idempotency window for collections.
type Settings struct {
	IdempotencyTTL time.Duration
}

// Service owns the consent lifecycle and payment collection under it.
type Service struct {
	consents     ConsentPort
	payments     PaymentPort
	usage        UsagePort
	idempotency  *idempotency.Coordinator
	consentCache *cache.Cache[Consent]
	events       EventPort
	settings     Settings
	clock        clock.Clock
	metrics      *metrics.Collector
	logger       *slog.Logger
}

func NewService(
	consents ConsentPort,
	payments PaymentPort,
	usage UsagePort,
	coordinator *idempotency.Coordinator,
	consentCache *cache.Cache[Consent],
	events EventPort,
	settings Settings,
	clk clock.Clock,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Service {
	return &Service{
		consents:     consents,
		payments:     payments,
		usage:        usage,
		idempotency:  coordinator,
		consentCache: consentCache,
		events:       events,
		settings:     settings,
		clock:        clk,
		metrics:      collector,
		logger:       logger,
	}
}

// CreateConsent opens an AUTHORISED consent for the calling TPP.
func (s *Service) CreateConsent(ctx context.Context, cmd CreateConsentCommand) (*Consent, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(createOperation)
	defer s.metrics.ObserveDuration(createOperation, start)

	consent := &Consent{
		ConsentID: "CONS-VRP-" + uuid.NewString(),
		TPPID:     cmd.TPPID,
		PSUID:     cmd.PSUID,
		Limit:     cmd.Limit,
		Currency:  cmd.Currency,
		Status:    ConsentAuthorised,
		ExpiresAt: cmd.ExpiresAt,
		CreatedAt: start,
	}
	if err := s.consents.Save(ctx, consent); err != nil {
		s.metrics.IncrementErrors(createOperation)
		return nil, fmt.Errorf("failed to persist consent: %w", err)
	}

	s.logger.Info("vrp consent created",
		"consent_id", consent.ConsentID,
		"tpp_id", cmd.TPPID,
		"limit", cmd.Limit.StringFixed(2),
		"currency", cmd.Currency)
	return consent, nil
}

// SubmitPayment collects one payment under a consent, enforcing both the
// per-payment limit and the cumulative cap for the current period.
func (s *Service) SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (*CollectionResult, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(submitOperation)
	defer s.metrics.ObserveDuration(submitOperation, start)

	result, err := s.submitPayment(ctx, cmd)
	if err != nil {
		s.metrics.IncrementErrors(submitOperation)
		if domain.IsConflict(err) {
			s.metrics.RecordConflict(submitOperation)
		}
		return nil, err
	}
	if result.Replayed {
		s.metrics.RecordReplay(submitOperation)
	}
	return result, nil
}

func (s *Service) submitPayment(ctx context.Context, cmd SubmitPaymentCommand) (*CollectionResult, error) {
	now := s.clock.Now()

	consent, err := s.loadConsent(ctx, cmd.ConsentID)
	if err != nil {
		return nil, err
	}
	if consent.TPPID != cmd.TPPID {
		return nil, domain.Forbidden("Consent participant mismatch")
	}
	if consent.Status == ConsentRevoked {
		return nil, domain.Forbidden("Consent Revoked")
	}
	if !consent.ExpiresAt.After(now) {
		return nil, domain.Forbidden("Consent expired")
	}
	if cmd.Currency != consent.Currency {
		return nil, domain.RuleViolation("Currency mismatch")
	}
	if cmd.Amount.GreaterThan(consent.Limit) {
		return nil, domain.RuleViolation("Limit Exceeded")
	}

	fingerprint := domain.HashPayload([]byte(cmd.ConsentID + "|" + cmd.Amount.StringFixed(2) + "|" + cmd.Currency))
	outcome, err := s.idempotency.Reconcile(ctx, cmd.IdempotencyKey, cmd.TPPID, fingerprint)
	if err != nil {
		return nil, err
	}
	if outcome.Replayed {
		return s.replayResult(ctx, cmd, outcome.Record)
	}

	periodKey := now.UTC().Format(periodLayout)
	reserved, err := s.usage.Reserve(ctx, cmd.ConsentID, periodKey, cmd.Amount, consent.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve consent usage: %w", err)
	}
	if !reserved {
		return nil, domain.RuleViolation("Limit Exceeded")
	}

	payment := &Payment{
		PaymentID: "PAY-VRP-" + uuid.NewString(),
		ConsentID: cmd.ConsentID,
		TPPID:     cmd.TPPID,
		Amount:    cmd.Amount,
		Currency:  cmd.Currency,
		Status:    PaymentAccepted,
		PeriodKey: periodKey,
		CreatedAt: now,
	}

	canonical, replayed, err := s.idempotency.Commit(ctx, &idempotency.Record{
		Key:         cmd.IdempotencyKey,
		CallerID:    cmd.TPPID,
		PayloadHash: fingerprint,
		ResourceID:  payment.PaymentID,
		Status:      string(payment.Status),
		ExpiresAt:   now.Add(s.settings.IdempotencyTTL),
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		// The competing submission's reservation stands; ours is returned.
		if releaseErr := s.usage.Release(ctx, cmd.ConsentID, periodKey, cmd.Amount); releaseErr != nil {
			return nil, releaseErr
		}
		return s.replayResult(ctx, cmd, canonical)
	}

	if err := s.payments.Save(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to persist payment: %w", err)
	}
	if err := s.events.PublishPaymentCollected(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to publish payment event: %w", err)
	}

	s.logger.Info("vrp payment collected",
		"payment_id", payment.PaymentID,
		"consent_id", cmd.ConsentID,
		"tpp_id", cmd.TPPID,
		"amount", cmd.Amount.StringFixed(2),
		"period", periodKey)

	return &CollectionResult{
		PaymentID:     payment.PaymentID,
		Status:        payment.Status,
		InteractionID: cmd.InteractionID,
		CreatedAt:     payment.CreatedAt,
	}, nil
}

// RevokeConsent transitions the consent to REVOKED. Revoking an already
// revoked consent is a no-op.
func (s *Service) RevokeConsent(ctx context.Context, cmd RevokeConsentCommand) (*Consent, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(revokeOperation)
	defer s.metrics.ObserveDuration(revokeOperation, start)

	consent, err := s.consents.FindByID(ctx, cmd.ConsentID)
	if err != nil {
		s.metrics.IncrementErrors(revokeOperation)
		return nil, err
	}
	if consent == nil {
		s.metrics.IncrementErrors(revokeOperation)
		return nil, domain.NotFound("Consent not found")
	}
	if consent.TPPID != cmd.TPPID {
		s.metrics.IncrementErrors(revokeOperation)
		return nil, domain.Forbidden("Consent participant mismatch")
	}
	if consent.Status == ConsentRevoked {
		return consent, nil
	}

	now := s.clock.Now()
	consent.Status = ConsentRevoked
	consent.RevokedAt = &now
	consent.RevokeReason = cmd.Reason
	if err := s.consents.Save(ctx, consent); err != nil {
		s.metrics.IncrementErrors(revokeOperation)
		return nil, fmt.Errorf("failed to persist consent: %w", err)
	}
	// Write through so cached snapshots cannot authorize further collections.
	if err := s.consentCache.Put(ctx, consentCacheKey(consent.ConsentID), *consent); err != nil {
		return nil, err
	}
	if err := s.events.PublishConsentRevoked(ctx, consent); err != nil {
		return nil, fmt.Errorf("failed to publish revocation event: %w", err)
	}

	s.logger.Info("vrp consent revoked",
		"consent_id", consent.ConsentID,
		"tpp_id", cmd.TPPID,
		"reason", cmd.Reason)
	return consent, nil
}

// GetConsent returns the consent for its owning TPP.
func (s *Service) GetConsent(ctx context.Context, consentID, tppID string) (*Consent, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(getOperation)
	defer s.metrics.ObserveDuration(getOperation, start)

	consent, err := s.loadConsent(ctx, consentID)
	if err != nil {
		s.metrics.IncrementErrors(getOperation)
		return nil, err
	}
	if consent.TPPID != tppID {
		s.metrics.IncrementErrors(getOperation)
		return nil, domain.Forbidden("Consent participant mismatch")
	}
	return consent, nil
}

// GetPayment returns one collection for its owning TPP.
func (s *Service) GetPayment(ctx context.Context, paymentID, tppID string) (*Payment, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(getOperation)
	defer s.metrics.ObserveDuration(getOperation, start)

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		s.metrics.IncrementErrors(getOperation)
		return nil, err
	}
	if payment == nil {
		s.metrics.IncrementErrors(getOperation)
		return nil, domain.NotFound("Payment not found")
	}
	if payment.TPPID != tppID {
		s.metrics.IncrementErrors(getOperation)
		return nil, domain.Forbidden("Consent participant mismatch")
	}
	return payment, nil
}

func consentCacheKey(consentID string) string {
	return cache.Key("payrequest", "consent", consentID)
}

// loadConsent reads through the consent cache.
func (s *Service) loadConsent(ctx context.Context, consentID string) (*Consent, error) {
	key := consentCacheKey(consentID)
	cached, hit, err := s.consentCache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if hit {
		return &cached, nil
	}

	consent, err := s.consents.FindByID(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if consent == nil {
		return nil, domain.NotFound("Consent not found")
	}
	if err := s.consentCache.Put(ctx, key, *consent); err != nil {
		return nil, err
	}
	return consent, nil
}

func (s *Service) replayResult(ctx context.Context, cmd SubmitPaymentCommand, rec *idempotency.Record) (*CollectionResult, error) {
	payment, err := s.payments.FindByID(ctx, rec.ResourceID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.NotFound("Payment not found")
	}
	return &CollectionResult{
		PaymentID:     payment.PaymentID,
		Status:        payment.Status,
		InteractionID: cmd.InteractionID,
		Replayed:      true,
		CreatedAt:     payment.CreatedAt,
	}, nil
}
