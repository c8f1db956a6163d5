// Package insurance issues consent-gated insurance quotes. It is a thin
// instance of the shared core: consent authorization, idempotent submission,
// an external pricing port, persistence, and an issued event.
package insurance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"openfinance/internal/clock"
	"openfinance/internal/consent"
	"openfinance/internal/domain"
	"openfinance/internal/idempotency"
	"openfinance/internal/metrics"
)

// ScopeInsuranceQuote gates quote issuance.
const ScopeInsuranceQuote = "insurance-quote"

const (
	requestOperation = "insurance.quote.request"
	getOperation     = "insurance.quote.get"
)

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const QuoteIssued QuoteStatus = "ISSUED"

// Quote is one priced offer, valid until ExpiresAt.
type Quote struct {
	QuoteID        string          `json:"quote_id" db:"quote_id"`
	ConsentID      string          `json:"consent_id" db:"consent_id"`
	TPPID          string          `json:"tpp_id" db:"tpp_id"`
	ProductCode    string          `json:"product_code" db:"product_code"`
	CoverageAmount decimal.Decimal `json:"coverage_amount" db:"coverage_amount"`
	Premium        decimal.Decimal `json:"premium" db:"premium"`
	Currency       string          `json:"currency" db:"currency"`
	Status         QuoteStatus     `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at" db:"expires_at"`
}

type RequestQuoteCommand struct {
	TPPID          string
	ConsentID      string
	IdempotencyKey string
	InteractionID  string
	ProductCode    string
	CoverageAmount decimal.Decimal
	Currency       string
}

// QuoteResult is the synchronous response to a quote request.
type QuoteResult struct {
	Quote         *Quote `json:"quote"`
	InteractionID string `json:"interaction_id"`
	Replayed      bool   `json:"replayed"`
}

// PricingPort computes the premium for a coverage request.
type PricingPort interface {
	Premium(ctx context.Context, productCode string, coverage decimal.Decimal, currency string) (decimal.Decimal, error)
}

// QuotePort persists issued quotes.
type QuotePort interface {
	Save(ctx context.Context, quote *Quote) error
	FindByID(ctx context.Context, quoteID string) (*Quote, error)
}

// EventPort publishes the quote-issued domain event.
type EventPort interface {
	PublishQuoteIssued(ctx context.Context, quote *Quote) error
}

// Settings bounds quote validity and the idempotency window.
type Settings struct {
	QuoteValidity  time.Duration
	IdempotencyTTL time.Duration
}

type Service struct {
	authorizer  *consent.Authorizer
	idempotency *idempotency.Coordinator
	pricing     PricingPort
	quotes      QuotePort
	events      EventPort
	settings    Settings
	clock       clock.Clock
	metrics     *metrics.Collector
	logger      *slog.Logger
}

func NewService(
	authorizer *consent.Authorizer,
	coordinator *idempotency.Coordinator,
	pricing PricingPort,
	quotes QuotePort,
	events EventPort,
	settings Settings,
	clk clock.Clock,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Service {
	return &Service{
		authorizer:  authorizer,
		idempotency: coordinator,
		pricing:     pricing,
		quotes:      quotes,
		events:      events,
		settings:    settings,
		clock:       clk,
		metrics:     collector,
		logger:      logger,
	}
}

// RequestQuote prices and issues a quote under the caller's consent.
func (s *Service) RequestQuote(ctx context.Context, cmd RequestQuoteCommand) (*QuoteResult, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(requestOperation)
	defer s.metrics.ObserveDuration(requestOperation, start)

	result, err := s.requestQuote(ctx, cmd)
	if err != nil {
		s.metrics.IncrementErrors(requestOperation)
		if domain.IsConflict(err) {
			s.metrics.RecordConflict(requestOperation)
		}
		return nil, err
	}
	if result.Replayed {
		s.metrics.RecordReplay(requestOperation)
	}
	return result, nil
}

func (s *Service) requestQuote(ctx context.Context, cmd RequestQuoteCommand) (*QuoteResult, error) {
	now := s.clock.Now()

	if _, err := s.authorizer.Authorize(ctx, consent.Request{
		ConsentID:     cmd.ConsentID,
		CallerTPPID:   cmd.TPPID,
		RequiredScope: ScopeInsuranceQuote,
	}); err != nil {
		return nil, err
	}

	fingerprint := domain.HashPayload([]byte(cmd.ProductCode + "|" + cmd.CoverageAmount.StringFixed(2) + "|" + cmd.Currency))
	outcome, err := s.idempotency.Reconcile(ctx, cmd.IdempotencyKey, cmd.TPPID, fingerprint)
	if err != nil {
		return nil, err
	}
	if outcome.Replayed {
		return s.replayResult(ctx, cmd, outcome.Record)
	}

	premium, err := s.pricing.Premium(ctx, cmd.ProductCode, cmd.CoverageAmount, cmd.Currency)
	if err != nil {
		return nil, fmt.Errorf("pricing failed: %w", err)
	}

	quote := &Quote{
		QuoteID:        "QUOTE-" + uuid.NewString(),
		ConsentID:      cmd.ConsentID,
		TPPID:          cmd.TPPID,
		ProductCode:    cmd.ProductCode,
		CoverageAmount: cmd.CoverageAmount,
		Premium:        premium,
		Currency:       cmd.Currency,
		Status:         QuoteIssued,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.settings.QuoteValidity),
	}

	canonical, replayed, err := s.idempotency.Commit(ctx, &idempotency.Record{
		Key:         cmd.IdempotencyKey,
		CallerID:    cmd.TPPID,
		PayloadHash: fingerprint,
		ResourceID:  quote.QuoteID,
		Status:      string(quote.Status),
		ExpiresAt:   now.Add(s.settings.IdempotencyTTL),
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return s.replayResult(ctx, cmd, canonical)
	}

	if err := s.quotes.Save(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to persist quote: %w", err)
	}
	if err := s.events.PublishQuoteIssued(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to publish quote event: %w", err)
	}

	s.logger.Info("quote issued",
		"quote_id", quote.QuoteID,
		"tpp_id", cmd.TPPID,
		"product", cmd.ProductCode,
		"premium", premium.StringFixed(2))

	return &QuoteResult{Quote: quote, InteractionID: cmd.InteractionID}, nil
}

// GetQuote returns an issued quote for its owning TPP.
func (s *Service) GetQuote(ctx context.Context, quoteID, tppID string) (*Quote, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(getOperation)
	defer s.metrics.ObserveDuration(getOperation, start)

	quote, err := s.quotes.FindByID(ctx, quoteID)
	if err != nil {
		s.metrics.IncrementErrors(getOperation)
		return nil, err
	}
	if quote == nil {
		s.metrics.IncrementErrors(getOperation)
		return nil, domain.NotFound("Quote not found")
	}
	if quote.TPPID != tppID {
		s.metrics.IncrementErrors(getOperation)
		return nil, domain.Forbidden("Consent participant mismatch")
	}
	return quote, nil
}

func (s *Service) replayResult(ctx context.Context, cmd RequestQuoteCommand, rec *idempotency.Record) (*QuoteResult, error) {
	quote, err := s.quotes.FindByID(ctx, rec.ResourceID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, domain.NotFound("Quote not found")
	}
	return &QuoteResult{Quote: quote, InteractionID: cmd.InteractionID, Replayed: true}, nil
}
