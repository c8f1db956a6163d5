package payments

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openfinance/internal/clock"
	"openfinance/internal/domain"
	"openfinance/internal/idempotency"
	"openfinance/internal/metrics"
)

var testNow = time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

const payeeIBAN = "AE120001000000123456789"

func authorizedConsent() *Consent {
	return &Consent{
		ConsentID:        "CONS-001",
		TPPID:            "TPP-001",
		Status:           ConsentAuthorized,
		AuthorizedAmount: decimal.RequireFromString("500.00"),
		Currency:         "AED",
		PayeeHash:        domain.HashIdentity(payeeIBAN),
		ExpiresAt:        time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func validCommand(key, payload string, executionDate *time.Time) SubmitCommand {
	return SubmitCommand{
		TPPID:          "TPP-001",
		IdempotencyKey: key,
		ConsentID:      "CONS-001",
		Initiation: Initiation{
			InstructionID:   "INSTR-001",
			EndToEndID:      "E2E-001",
			DebtorAccountID: "ACC-DEBTOR-001",
			Amount:          decimal.RequireFromString("100.00"),
			Currency:        "AED",
			PayeeScheme:     "IBAN",
			PayeeID:         payeeIBAN,
			PayeeName:       "Vendor LLC",
			ExecutionDate:   executionDate,
		},
		InteractionID: "ix-001",
		Payload:       []byte(payload),
		Signature:     "detached-jws",
	}
}

type fixture struct {
	consents     *fakeConsentPort
	store        idempotency.Store
	transactions *fakeTransactionPort
	funds        *fakeFunds
	risk         *fakeRisk
	signatures   *fakeSignatures
	events       *fakeEvents
	pipeline     *Pipeline
}

func newFixture(t *testing.T, mutate func(*fixture)) *fixture {
	t.Helper()
	f := &fixture{
		consents:     &fakeConsentPort{consent: authorizedConsent()},
		store:        idempotency.NewMemoryStore(),
		transactions: &fakeTransactionPort{data: map[string]*Transaction{}},
		funds:        &fakeFunds{allowed: true},
		risk:         &fakeRisk{decision: RiskPass},
		signatures:   &fakeSignatures{valid: true},
		events:       &fakeEvents{},
	}
	if mutate != nil {
		mutate(f)
	}
	clk := clock.Fixed(testNow)
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	f.pipeline = NewPipeline(
		f.consents,
		idempotency.NewCoordinator(f.store, clk, logger),
		f.transactions,
		f.funds,
		f.risk,
		f.signatures,
		f.events,
		Settings{IdempotencyTTL: 24 * time.Hour},
		clk,
		metrics.NewNopCollector(),
		logger,
	)
	return f
}

func TestSubmitImmediatePayment(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.pipeline.Submit(context.Background(), validCommand("IDEMP-001", `{"amount":"100.00"}`, nil))
	require.NoError(t, err)

	assert.Equal(t, StatusAcceptedSettlementInProcess, result.Status)
	assert.False(t, result.Replayed)
	assert.NotEmpty(t, result.PaymentID)
	assert.Equal(t, 1, f.transactions.saveCount)
	assert.Equal(t, 1, f.funds.reserveCount)
	assert.Equal(t, 1, f.events.publishCount)
}

func TestSubmitIdempotentReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.pipeline.Submit(ctx, validCommand("IDEMP-001", `{"amount":"100.00"}`, nil))
	require.NoError(t, err)
	second, err := f.pipeline.Submit(ctx, validCommand("IDEMP-001", `{"amount":"100.00"}`, nil))
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, f.transactions.saveCount, "replay must not re-persist")
	assert.Equal(t, 1, f.funds.reserveCount, "replay must not re-reserve funds")
	assert.Equal(t, 1, f.events.publishCount, "replay must not re-publish")
}

func TestSubmitIdempotencyConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.pipeline.Submit(ctx, validCommand("IDEMP-001", `{"amount":"100.00"}`, nil))
	require.NoError(t, err)

	_, err = f.pipeline.Submit(ctx, validCommand("IDEMP-001", `{"amount":"101.00"}`, nil))
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.EqualError(t, err, "Idempotency conflict")
}

func TestSubmitInvalidSignature(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.signatures.valid = false })

	_, err := f.pipeline.Submit(context.Background(), validCommand("IDEMP-001", `{"amount":"100.00"}`, nil))
	require.Error(t, err)
	assert.True(t, domain.IsPipeline(err))
	assert.EqualError(t, err, "Signature Invalid")
	assert.Zero(t, f.transactions.saveCount)
}

func TestSubmitConsentBindingFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cmd *SubmitCommand)
	}{
		{"amount above ceiling", func(cmd *SubmitCommand) {
			cmd.Initiation.Amount = decimal.RequireFromString("600.00")
		}},
		{"currency mismatch", func(cmd *SubmitCommand) {
			cmd.Initiation.Currency = "USD"
		}},
		{"payee mismatch", func(cmd *SubmitCommand) {
			cmd.Initiation.PayeeID = "AE990001000000000000000"
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			cmd := validCommand("IDEMP-001", `{"amount":"600.00"}`, nil)
			tc.mutate(&cmd)

			_, err := f.pipeline.Submit(context.Background(), cmd)
			require.Error(t, err)
			assert.EqualError(t, err, "Consent binding validation failed")
			assert.Zero(t, f.funds.reserveCount)
		})
	}
}

func TestSubmitConsentAuthorizationFailures(t *testing.T) {
	t.Run("consent missing", func(t *testing.T) {
		f := newFixture(t, func(f *fixture) { f.consents.consent = nil })
		_, err := f.pipeline.Submit(context.Background(), validCommand("IDEMP-001", `{}`, nil))
		assert.True(t, domain.IsForbidden(err))
		assert.EqualError(t, err, "Consent not found")
	})

	t.Run("consent expired", func(t *testing.T) {
		f := newFixture(t, func(f *fixture) {
			f.consents.consent.ExpiresAt = testNow.Add(-time.Hour)
		})
		_, err := f.pipeline.Submit(context.Background(), validCommand("IDEMP-001", `{}`, nil))
		assert.True(t, domain.IsForbidden(err))
		assert.EqualError(t, err, "Consent expired")
	})

	t.Run("participant mismatch", func(t *testing.T) {
		f := newFixture(t, func(f *fixture) { f.consents.consent.TPPID = "TPP-XYZ" })
		_, err := f.pipeline.Submit(context.Background(), validCommand("IDEMP-001", `{}`, nil))
		assert.True(t, domain.IsForbidden(err))
		assert.EqualError(t, err, "Consent participant mismatch")
	})
}

func TestSubmitInsufficientFunds(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.funds.allowed = false })

	_, err := f.pipeline.Submit(context.Background(), validCommand("IDEMP-001", `{"amount":"100.00"}`, nil))
	require.Error(t, err)
	assert.EqualError(t, err, "Insufficient funds")
	assert.Zero(t, f.transactions.saveCount)
	assert.Zero(t, f.events.publishCount)
}

func TestSubmitFutureDatedPaymentSkipsFundsReservation(t *testing.T) {
	f := newFixture(t, nil)
	execution := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	result, err := f.pipeline.Submit(context.Background(), validCommand("IDEMP-001", `{"amount":"100.00"}`, &execution))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, result.Status)
	assert.Zero(t, f.funds.reserveCount)
	assert.Equal(t, 1, f.transactions.saveCount)
	assert.Equal(t, 1, f.events.publishCount)
}

func TestSubmitRiskRejected(t *testing.T) {
	f := newFixture(t, func(f *fixture) { f.risk.decision = RiskReject })

	result, err := f.pipeline.Submit(context.Background(), validCommand("IDEMP-001", `{"amount":"100.00"}`, nil))
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, result.Status)
	assert.Zero(t, f.funds.reserveCount)
	assert.Equal(t, 1, f.transactions.saveCount)
	assert.Equal(t, 1, f.events.publishCount)
}

func TestGetPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.pipeline.Submit(ctx, validCommand("IDEMP-001", `{"amount":"100.00"}`, nil))
	require.NoError(t, err)

	loaded, err := f.pipeline.GetPayment(ctx, created.PaymentID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, created.PaymentID, loaded.PaymentID)

	_, err = f.pipeline.GetPayment(ctx, created.PaymentID, "TPP-XYZ")
	assert.True(t, domain.IsForbidden(err))

	_, err = f.pipeline.GetPayment(ctx, "PAY-missing", "TPP-001")
	assert.True(t, domain.IsNotFound(err))
}

// TestSubmitLosesCommitRace simulates two processes racing on the same key:
// this caller's reconcile sees no record, but by commit time the competing
// record is present. The canonical result must be returned and this caller's
// transaction must never be persisted or published.
func TestSubmitLosesCommitRace(t *testing.T) {
	canonical := &Transaction{
		PaymentID: "PAY-winner",
		TPPID:     "TPP-001",
		Status:    StatusAcceptedSettlementInProcess,
		CreatedAt: testNow,
	}

	var f *fixture
	f = newFixture(t, func(fx *fixture) {
		fx.transactions = &fakeTransactionPort{data: map[string]*Transaction{"PAY-winner": canonical}}
		fx.store = &racingStore{
			winner: &idempotency.Record{
				Key:         "IDEMP-001",
				CallerID:    "TPP-001",
				PayloadHash: domain.HashPayload([]byte(`{"amount":"100.00"}`)),
				ResourceID:  "PAY-winner",
				Status:      string(StatusAcceptedSettlementInProcess),
				ExpiresAt:   testNow.Add(24 * time.Hour),
			},
		}
	})

	result, err := f.pipeline.Submit(context.Background(), validCommand("IDEMP-001", `{"amount":"100.00"}`, nil))
	require.NoError(t, err)

	assert.True(t, result.Replayed)
	assert.Equal(t, "PAY-winner", result.PaymentID)
	assert.Zero(t, f.transactions.saveCount)
	assert.Zero(t, f.events.publishCount)
}

// racingStore reports no record on Find but always loses PutIfAbsent to a
// pre-existing winner, mimicking a concurrent committer.
type racingStore struct {
	winner *idempotency.Record
}

func (s *racingStore) Find(context.Context, string, string) (*idempotency.Record, error) {
	return nil, nil
}

func (s *racingStore) PutIfAbsent(context.Context, *idempotency.Record) (*idempotency.Record, bool, error) {
	return s.winner, false, nil
}

type fakeConsentPort struct {
	consent *Consent
}

func (p *fakeConsentPort) FindByID(_ context.Context, consentID string) (*Consent, error) {
	if p.consent == nil || p.consent.ConsentID != consentID {
		return nil, nil
	}
	return p.consent, nil
}

type fakeTransactionPort struct {
	data      map[string]*Transaction
	saveCount int
}

func (p *fakeTransactionPort) Save(_ context.Context, txn *Transaction) error {
	p.saveCount++
	p.data[txn.PaymentID] = txn
	return nil
}

func (p *fakeTransactionPort) FindByPaymentID(_ context.Context, paymentID string) (*Transaction, error) {
	return p.data[paymentID], nil
}

type fakeFunds struct {
	allowed      bool
	reserveCount int
}

func (p *fakeFunds) Reserve(context.Context, string, decimal.Decimal, string, string) (bool, error) {
	p.reserveCount++
	return p.allowed, nil
}

type fakeRisk struct {
	decision RiskDecision
}

func (p *fakeRisk) Assess(context.Context, Initiation, string) (RiskDecision, error) {
	return p.decision, nil
}

type fakeSignatures struct {
	valid bool
}

func (p *fakeSignatures) IsValid(context.Context, string, []byte) (bool, error) {
	return p.valid, nil
}

type fakeEvents struct {
	publishCount int
}

func (p *fakeEvents) PublishPaymentSubmitted(context.Context, *Transaction) error {
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
