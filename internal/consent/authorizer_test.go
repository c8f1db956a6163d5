package consent

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openfinance/internal/clock"
	"openfinance/internal/domain"
)

var testNow = time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

func activeConsent() *Context {
	return &Context{
		ConsentID:   "CONS-001",
		TPPID:       "TPP-001",
		SubjectID:   "PSU-001",
		Tier:        TierFull,
		Scopes:      []string{"READACCOUNTS", "payments"},
		ResourceIDs: []string{"ACC-001", "ACC-002"},
		ExpiresAt:   testNow.Add(time.Hour),
	}
}

func newAuthorizer(t *testing.T, c *Context) *Authorizer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewAuthorizer(&fakePort{consent: c}, clock.Fixed(testNow), logger)
}

func TestAuthorizeGrantsLinkedResource(t *testing.T) {
	a := newAuthorizer(t, activeConsent())

	cc, err := a.Authorize(context.Background(), Request{
		ConsentID:     "CONS-001",
		CallerTPPID:   "TPP-001",
		RequiredScope: "payments",
		ResourceID:    "ACC-002",
	})
	require.NoError(t, err)
	assert.Equal(t, "CONS-001", cc.ConsentID)
}

func TestAuthorizeScopeCaseInsensitive(t *testing.T) {
	a := newAuthorizer(t, activeConsent())

	_, err := a.Authorize(context.Background(), Request{
		ConsentID:     "CONS-001",
		CallerTPPID:   "TPP-001",
		RequiredScope: "ReadAccounts",
	})
	require.NoError(t, err)
}

func TestAuthorizeFailures(t *testing.T) {
	tests := []struct {
		name    string
		consent func() *Context
		req     Request
		reason  string
	}{
		{
			"consent missing",
			func() *Context { return nil },
			Request{ConsentID: "CONS-404", CallerTPPID: "TPP-001", RequiredScope: "payments"},
			"Consent not found",
		},
		{
			"participant mismatch",
			activeConsent,
			Request{ConsentID: "CONS-001", CallerTPPID: "TPP-XYZ", RequiredScope: "payments"},
			"Consent participant mismatch",
		},
		{
			"consent expired",
			func() *Context {
				c := activeConsent()
				c.ExpiresAt = testNow.Add(-time.Minute)
				return c
			},
			Request{ConsentID: "CONS-001", CallerTPPID: "TPP-001", RequiredScope: "payments"},
			"Consent expired",
		},
		{
			"scope missing",
			activeConsent,
			Request{ConsentID: "CONS-001", CallerTPPID: "TPP-001", RequiredScope: "bulk-payment"},
			"Required scope missing: bulk-payment",
		},
		{
			"resource not linked despite sufficient scope",
			activeConsent,
			Request{ConsentID: "CONS-001", CallerTPPID: "TPP-001", RequiredScope: "payments", ResourceID: "ACC-999"},
			"Resource not linked to consent",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := newAuthorizer(t, tc.consent())

			_, err := a.Authorize(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, domain.IsForbidden(err))
			assert.EqualError(t, err, tc.reason)
		})
	}
}

// Expiry boundary: a consent expiring exactly at "now" is no longer active.
func TestAuthorizeExpiryBoundary(t *testing.T) {
	c := activeConsent()
	c.ExpiresAt = testNow
	a := newAuthorizer(t, c)

	_, err := a.Authorize(context.Background(), Request{
		ConsentID:     "CONS-001",
		CallerTPPID:   "TPP-001",
		RequiredScope: "payments",
	})
	require.Error(t, err)
	assert.EqualError(t, err, "Consent expired")
}

type fakePort struct {
	consent *Context
}

func (p *fakePort) FindByID(_ context.Context, consentID string) (*Context, error) {
	if p.consent == nil || p.consent.ConsentID != consentID {
		return nil, nil
	}
	return p.consent, nil
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
