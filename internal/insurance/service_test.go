package insurance

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openfinance/internal/clock"
	"openfinance/internal/consent"
	"openfinance/internal/domain"
	"openfinance/internal/idempotency"
	"openfinance/internal/metrics"
)

var testNow = time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

type fixture struct {
	consents *fakeConsentPort
	quotes   *fakeQuotePort
	pricing  *fakePricing
	events   *fakeEvents
	svc      *Service
}

func newFixture(t *testing.T, mutate func(*fixture)) *fixture {
	t.Helper()
	f := &fixture{
		consents: &fakeConsentPort{consent: &consent.Context{
			ConsentID: "CONS-INS-001",
			TPPID:     "TPP-001",
			Tier:      consent.TierFull,
			Scopes:    []string{ScopeInsuranceQuote},
			ExpiresAt: testNow.Add(24 * time.Hour),
		}},
		quotes:  &fakeQuotePort{data: map[string]*Quote{}},
		pricing: &fakePricing{premium: decimal.RequireFromString("420.00")},
		events:  &fakeEvents{},
	}
	if mutate != nil {
		mutate(f)
	}
	clk := clock.Fixed(testNow)
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	f.svc = NewService(
		consent.NewAuthorizer(f.consents, clk, logger),
		idempotency.NewCoordinator(idempotency.NewMemoryStore(), clk, logger),
		f.pricing,
		f.quotes,
		f.events,
		Settings{QuoteValidity: 72 * time.Hour, IdempotencyTTL: 24 * time.Hour},
		clk,
		metrics.NewNopCollector(),
		logger,
	)
	return f
}

func requestCommand(key string) RequestQuoteCommand {
	return RequestQuoteCommand{
		TPPID:          "TPP-001",
		ConsentID:      "CONS-INS-001",
		IdempotencyKey: key,
		InteractionID:  "ix-1",
		ProductCode:    "MOTOR-COMPREHENSIVE",
		CoverageAmount: decimal.RequireFromString("150000.00"),
		Currency:       "AED",
	}
}

func TestRequestQuoteIssues(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.svc.RequestQuote(context.Background(), requestCommand("IDEMP-Q-001"))
	require.NoError(t, err)

	assert.False(t, result.Replayed)
	assert.Equal(t, QuoteIssued, result.Quote.Status)
	assert.Equal(t, "420.00", result.Quote.Premium.StringFixed(2))
	assert.Equal(t, testNow.Add(72*time.Hour), result.Quote.ExpiresAt)
	assert.Equal(t, 1, f.events.publishCount)
}

func TestRequestQuoteIdempotentReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.RequestQuote(ctx, requestCommand("IDEMP-Q-001"))
	require.NoError(t, err)
	replay, err := f.svc.RequestQuote(ctx, requestCommand("IDEMP-Q-001"))
	require.NoError(t, err)

	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Quote.QuoteID, replay.Quote.QuoteID)
	assert.Equal(t, 1, f.quotes.saveCount)
	assert.Equal(t, 1, f.pricing.callCount, "replay must not re-price")
	assert.Equal(t, 1, f.events.publishCount)
}

func TestRequestQuoteIdempotencyConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RequestQuote(ctx, requestCommand("IDEMP-Q-001"))
	require.NoError(t, err)

	conflicting := requestCommand("IDEMP-Q-001")
	conflicting.CoverageAmount = decimal.RequireFromString("200000.00")
	_, err = f.svc.RequestQuote(ctx, conflicting)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

func TestRequestQuoteScopeRequired(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.consents.consent.Scopes = []string{"payments"}
	})

	_, err := f.svc.RequestQuote(context.Background(), requestCommand("IDEMP-Q-001"))
	require.Error(t, err)
	assert.True(t, domain.IsForbidden(err))
	assert.EqualError(t, err, "Required scope missing: insurance-quote")
}

func TestGetQuote(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	issued, err := f.svc.RequestQuote(ctx, requestCommand("IDEMP-Q-001"))
	require.NoError(t, err)

	loaded, err := f.svc.GetQuote(ctx, issued.Quote.QuoteID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, issued.Quote.QuoteID, loaded.QuoteID)

	_, err = f.svc.GetQuote(ctx, issued.Quote.QuoteID, "TPP-OTHER")
	assert.True(t, domain.IsForbidden(err))

	_, err = f.svc.GetQuote(ctx, "QUOTE-404", "TPP-001")
	assert.True(t, domain.IsNotFound(err))
	assert.EqualError(t, err, "Quote not found")
}

type fakeConsentPort struct {
	consent *consent.Context
}

func (p *fakeConsentPort) FindByID(_ context.Context, consentID string) (*consent.Context, error) {
	if p.consent == nil || p.consent.ConsentID != consentID {
		return nil, nil
	}
	return p.consent, nil
}

type fakeQuotePort struct {
	data      map[string]*Quote
	saveCount int
}

func (p *fakeQuotePort) Save(_ context.Context, quote *Quote) error {
	p.saveCount++
	p.data[quote.QuoteID] = quote
	return nil
}

func (p *fakeQuotePort) FindByID(_ context.Context, quoteID string) (*Quote, error) {
	return p.data[quoteID], nil
}

type fakePricing struct {
	premium   decimal.Decimal
	callCount int
}

func (p *fakePricing) Premium(context.Context, string, decimal.Decimal, string) (decimal.Decimal, error) {
	p.callCount++
	return p.premium, nil
}

type fakeEvents struct {
	publishCount int
}

func (p *fakeEvents) PublishQuoteIssued(context.Context, *Quote) error {
	p.publishCount++
	return nil
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
