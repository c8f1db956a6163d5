package bulk

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openfinance/internal/cache"
	"openfinance/internal/clock"
	"openfinance/internal/consent"
	"openfinance/internal/domain"
	"openfinance/internal/idempotency"
	"openfinance/internal/metrics"
)

var testNow = time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

const (
	validCSV = "instruction_id,payee_iban,amount\n" +
		"INSTR-1,AE070331234567890123456,100.00\n" +
		"INSTR-2,GB29NWBK60161331926819,250.50\n"
	mixedCSV = "instruction_id,payee_iban,amount\n" +
		"INSTR-1,AE070331234567890123456,100.00\n" +
		"INSTR-2,NOT_AN_IBAN,250.50\n"
)

type fixture struct {
	consents *fakeConsentPort
	files    *fakeFilePort
	reports  *fakeReportPort
	events   *fakeEvents
	clock    *clock.Manual
	proc     *Processor
}

func newFixture(t *testing.T, mutate func(*fixture)) *fixture {
	t.Helper()
	f := &fixture{
		consents: &fakeConsentPort{consent: &consent.Context{
			ConsentID: "CONS-BULK-001",
			TPPID:     "TPP-001",
			Tier:      consent.TierFull,
			Scopes:    []string{ScopeBulkPayment},
			ExpiresAt: testNow.Add(24 * time.Hour),
		}},
		files:   &fakeFilePort{data: map[string]*File{}},
		reports: &fakeReportPort{data: map[string]*Report{}},
		events:  &fakeEvents{},
		clock:   clock.Fixed(testNow),
	}
	if mutate != nil {
		mutate(f)
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	f.proc = NewProcessor(
		consent.NewAuthorizer(f.consents, f.clock, logger),
		idempotency.NewCoordinator(idempotency.NewMemoryStore(), f.clock, logger),
		f.files,
		f.reports,
		cache.New[Report](cache.NewMemoryStore(), f.clock, 30*time.Second),
		f.events,
		Settings{
			MaxFileSizeBytes:      1 << 20,
			StatusPollsToComplete: 2,
			IdempotencyTTL:        24 * time.Hour,
		},
		f.clock,
		metrics.NewNopCollector(),
		logger,
	)
	return f
}

func submitCommand(content string) SubmitCommand {
	return SubmitCommand{
		TPPID:          "TPP-001",
		ConsentID:      "CONS-BULK-001",
		IdempotencyKey: "IDEMP-BULK-001",
		InteractionID:  "ix-1",
		FileName:       "payments.csv",
		IntegrityMode:  PartialRejection,
		Content:        []byte(content),
		FileHash:       domain.HashPayload([]byte(content)),
	}
}

func TestSubmitFileAcceptsValidBatch(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.proc.SubmitFile(context.Background(), submitCommand(validCSV))
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, result.Status)
	assert.False(t, result.Replayed)
	assert.Equal(t, 2, result.AcceptedCount)
	assert.Zero(t, result.RejectedCount)
	assert.Equal(t, 1, f.events.publishCount)

	stored := f.files.data[result.FileID]
	require.NotNil(t, stored)
	assert.Equal(t, StatusCompleted, stored.TargetStatus)
}

func TestStatusFinalizesOnSecondPoll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	upload, err := f.proc.SubmitFile(ctx, submitCommand(validCSV))
	require.NoError(t, err)

	first, err := f.proc.GetFileStatus(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, first.Status)
	assert.Equal(t, 1, first.PollCount)

	second, err := f.proc.GetFileStatus(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, second.Status)
	require.NotNil(t, second.CompletedAt)

	// Terminal files stop counting polls.
	third, err := f.proc.GetFileStatus(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, 2, third.PollCount)
}

func TestPartialRejectionMixedBatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	upload, err := f.proc.SubmitFile(ctx, submitCommand(mixedCSV))
	require.NoError(t, err)
	assert.Equal(t, 1, upload.AcceptedCount)
	assert.Equal(t, 1, upload.RejectedCount)

	f.proc.GetFileStatus(ctx, upload.FileID, "TPP-001")
	status, err := f.proc.GetFileStatus(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyAccepted, status.Status)

	report, err := f.proc.GetFileReport(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AcceptedCount)
	assert.Equal(t, 1, report.RejectedCount)
	require.Len(t, report.Items, 2)
	assert.True(t, report.Items[0].Accepted)
	assert.False(t, report.Items[1].Accepted)
	assert.Equal(t, "Invalid IBAN", report.Items[1].ErrorMessage)
}

func TestFullRejectionMixedBatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cmd := submitCommand(mixedCSV)
	cmd.IntegrityMode = FullRejection

	upload, err := f.proc.SubmitFile(ctx, cmd)
	require.NoError(t, err)
	assert.Zero(t, upload.AcceptedCount)
	assert.Equal(t, 2, upload.RejectedCount)

	f.proc.GetFileStatus(ctx, upload.FileID, "TPP-001")
	status, err := f.proc.GetFileStatus(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, status.Status)

	report, err := f.proc.GetFileReport(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	for _, item := range report.Items {
		assert.False(t, item.Accepted)
		assert.NotEmpty(t, item.ErrorMessage)
	}
	assert.Equal(t, "Rejected due to full rejection mode", report.Items[0].ErrorMessage)
	assert.Equal(t, "Invalid IBAN", report.Items[1].ErrorMessage)
}

func TestSubmitFileIdempotentReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.proc.SubmitFile(ctx, submitCommand(validCSV))
	require.NoError(t, err)
	second, err := f.proc.SubmitFile(ctx, submitCommand(validCSV))
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.FileID, second.FileID)
	assert.Equal(t, 1, f.files.saveCount)
	assert.Equal(t, 1, f.events.publishCount)
}

func TestSubmitFileIdempotencyConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.proc.SubmitFile(ctx, submitCommand(validCSV))
	require.NoError(t, err)

	_, err = f.proc.SubmitFile(ctx, submitCommand(mixedCSV))
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.EqualError(t, err, "Idempotency conflict")
}

func TestSubmitFileValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cmd *SubmitCommand, f *fixture)
		reason string
	}{
		{"empty payload", func(cmd *SubmitCommand, _ *fixture) {
			cmd.Content = []byte("   \n")
			cmd.FileHash = domain.HashPayload(cmd.Content)
		}, "Empty Payload"},
		{"payload too large", func(cmd *SubmitCommand, f *fixture) {
			f.proc.settings.MaxFileSizeBytes = 10
		}, "Payload Too Large"},
		{"integrity failure", func(cmd *SubmitCommand, _ *fixture) {
			cmd.FileHash = "tampered"
		}, "Integrity Failure"},
		{"bad header", func(cmd *SubmitCommand, _ *fixture) {
			content := []byte("id,iban,amt\nINSTR-1,AE070331234567890123456,100.00\n")
			cmd.Content = content
			cmd.FileHash = domain.HashPayload(content)
		}, "Schema Validation Failed"},
		{"wrong column count", func(cmd *SubmitCommand, _ *fixture) {
			content := []byte("instruction_id,payee_iban,amount\nINSTR-1,AE070331234567890123456\n")
			cmd.Content = content
			cmd.FileHash = domain.HashPayload(content)
		}, "Schema Validation Failed"},
		{"non-positive amount", func(cmd *SubmitCommand, _ *fixture) {
			content := []byte("instruction_id,payee_iban,amount\nINSTR-1,AE070331234567890123456,-5.00\n")
			cmd.Content = content
			cmd.FileHash = domain.HashPayload(content)
		}, "Schema Validation Failed"},
		{"header only", func(cmd *SubmitCommand, _ *fixture) {
			content := []byte("instruction_id,payee_iban,amount\n\n\n")
			cmd.Content = content
			cmd.FileHash = domain.HashPayload(content)
		}, "Empty Payload"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			cmd := submitCommand(validCSV)
			tc.mutate(&cmd, f)

			_, err := f.proc.SubmitFile(context.Background(), cmd)
			require.Error(t, err)
			assert.True(t, domain.IsRuleViolation(err))
			assert.EqualError(t, err, tc.reason)
			assert.Zero(t, f.files.saveCount)
		})
	}
}

func TestSubmitFileConsentFailures(t *testing.T) {
	t.Run("scope missing", func(t *testing.T) {
		f := newFixture(t, func(f *fixture) {
			f.consents.consent.Scopes = []string{"payments"}
		})
		_, err := f.proc.SubmitFile(context.Background(), submitCommand(validCSV))
		assert.True(t, domain.IsForbidden(err))
		assert.EqualError(t, err, "Required scope missing: bulk-payment")
	})

	t.Run("consent missing", func(t *testing.T) {
		f := newFixture(t, func(f *fixture) { f.consents.consent = nil })
		_, err := f.proc.SubmitFile(context.Background(), submitCommand(validCSV))
		assert.True(t, domain.IsForbidden(err))
		assert.EqualError(t, err, "Consent not found")
	})
}

func TestFileOwnershipEnforced(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	upload, err := f.proc.SubmitFile(ctx, submitCommand(validCSV))
	require.NoError(t, err)

	_, err = f.proc.GetFileStatus(ctx, upload.FileID, "TPP-XYZ")
	assert.True(t, domain.IsForbidden(err))

	_, err = f.proc.GetFileReport(ctx, upload.FileID, "TPP-XYZ")
	assert.True(t, domain.IsForbidden(err))

	_, err = f.proc.GetFileStatus(ctx, "FILE-404", "TPP-001")
	assert.True(t, domain.IsNotFound(err))
}

func TestReportServedFromCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	upload, err := f.proc.SubmitFile(ctx, submitCommand(validCSV))
	require.NoError(t, err)

	_, err = f.proc.GetFileReport(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, 1, f.reports.findCount)

	_, err = f.proc.GetFileReport(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, 1, f.reports.findCount, "second read must hit the cache")

	f.clock.Advance(31 * time.Second)
	_, err = f.proc.GetFileReport(ctx, upload.FileID, "TPP-001")
	require.NoError(t, err)
	assert.Equal(t, 2, f.reports.findCount, "expired entry must fall through to the port")
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

type fakeFilePort struct {
	data      map[string]*File
	saveCount int
}

func (p *fakeFilePort) Save(_ context.Context, file *File) error {
	p.saveCount++
	copied := *file
	p.data[file.FileID] = &copied
	return nil
}

func (p *fakeFilePort) FindByID(_ context.Context, fileID string) (*File, error) {
	file, ok := p.data[fileID]
	if !ok {
		return nil, nil
	}
	copied := *file
	return &copied, nil
}

type fakeReportPort struct {
	data      map[string]*Report
	findCount int
}

func (p *fakeReportPort) Save(_ context.Context, report *Report) error {
	p.data[report.FileID] = report
	return nil
}

func (p *fakeReportPort) FindByFileID(_ context.Context, fileID string) (*Report, error) {
	p.findCount++
	return p.data[fileID], nil
}

type fakeEvents struct {
	publishCount int
}

func (p *fakeEvents) PublishBulkFileSubmitted(context.Context, *File) error {
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
