package bulk

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"openfinance/internal/cache"
	"openfinance/internal/clock"
	"openfinance/internal/consent"
	"openfinance/internal/domain"
	"openfinance/internal/idempotency"
	"openfinance/internal/metrics"
)

// ScopeBulkPayment is the consent scope required for every bulk operation.
const ScopeBulkPayment = "bulk-payment"

const (
	submitOperation = "bulk.submit"
	statusOperation = "bulk.status"
	reportOperation = "bulk.report"
)

// Settings bounds bulk file processing.
type Settings struct {
	MaxFileSizeBytes      int
	StatusPollsToComplete int
	IdempotencyTTL        time.Duration
}

// Processor validates, parses, and persists uploaded batch files. Heavy
// per-record validation happens at submission, but the aggregate stays
// PROCESSING until enough status polls have been observed, so the caller
// sees an asynchronous-style state machine without a background scheduler.
type Processor struct {
	authorizer  *consent.Authorizer
	idempotency *idempotency.Coordinator
	files       FilePort
	reports     ReportPort
	reportCache *cache.Cache[Report]
	events      EventPort
	settings    Settings
	clock       clock.Clock
	metrics     *metrics.Collector
	logger      *slog.Logger
}

func NewProcessor(
	authorizer *consent.Authorizer,
	coordinator *idempotency.Coordinator,
	files FilePort,
	reports ReportPort,
	reportCache *cache.Cache[Report],
	events EventPort,
	settings Settings,
	clk clock.Clock,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		authorizer:  authorizer,
		idempotency: coordinator,
		files:       files,
		reports:     reports,
		reportCache: reportCache,
		events:      events,
		settings:    settings,
		clock:       clk,
		metrics:     collector,
		logger:      logger,
	}
}

// SubmitFile validates and accepts one batch upload. Replays return the
// prior file id and status without reprocessing.
func (p *Processor) SubmitFile(ctx context.Context, cmd SubmitCommand) (*UploadResult, error) {
	start := p.clock.Now()
	p.metrics.IncrementRequests(submitOperation)
	defer p.metrics.ObserveDuration(submitOperation, start)

	result, err := p.submitFile(ctx, cmd)
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

func (p *Processor) submitFile(ctx context.Context, cmd SubmitCommand) (*UploadResult, error) {
	now := p.clock.Now()

	if _, err := p.authorizer.Authorize(ctx, consent.Request{
		ConsentID:     cmd.ConsentID,
		CallerTPPID:   cmd.TPPID,
		RequiredScope: ScopeBulkPayment,
	}); err != nil {
		return nil, err
	}

	if err := p.validatePayload(cmd.Content); err != nil {
		return nil, err
	}

	requestHash := domain.HashPayload(cmd.Content)
	if requestHash != cmd.FileHash {
		return nil, domain.RuleViolation("Integrity Failure")
	}

	outcome, err := p.idempotency.Reconcile(ctx, cmd.IdempotencyKey, cmd.TPPID, requestHash)
	if err != nil {
		return nil, err
	}
	if outcome.Replayed {
		return p.replayResult(ctx, cmd, outcome.Record)
	}

	parsed, err := parseCSV(cmd.Content, cmd.IntegrityMode)
	if err != nil {
		return nil, err
	}

	file := &File{
		FileID:         "FILE-BULK-" + uuid.NewString(),
		ConsentID:      cmd.ConsentID,
		TPPID:          cmd.TPPID,
		IdempotencyKey: cmd.IdempotencyKey,
		RequestHash:    requestHash,
		FileName:       cmd.FileName,
		IntegrityMode:  cmd.IntegrityMode,
		Status:         StatusProcessing,
		TargetStatus:   parsed.TargetStatus,
		TotalCount:     parsed.TotalCount,
		AcceptedCount:  parsed.AcceptedCount,
		RejectedCount:  parsed.RejectedCount,
		TotalAmount:    parsed.TotalAmount,
		CreatedAt:      now,
	}

	canonical, replayed, err := p.idempotency.Commit(ctx, &idempotency.Record{
		Key:         cmd.IdempotencyKey,
		CallerID:    cmd.TPPID,
		PayloadHash: requestHash,
		ResourceID:  file.FileID,
		Status:      string(file.Status),
		ExpiresAt:   now.Add(p.settings.IdempotencyTTL),
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		// A concurrent upload with the same key won the race; its file is
		// canonical and ours is discarded unpersisted.
		return p.replayResult(ctx, cmd, canonical)
	}

	if err := p.files.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to persist bulk file: %w", err)
	}

	report := &Report{
		FileID:        file.FileID,
		Status:        parsed.TargetStatus,
		TotalCount:    parsed.TotalCount,
		AcceptedCount: parsed.AcceptedCount,
		RejectedCount: parsed.RejectedCount,
		Items:         parsed.Items,
		CreatedAt:     now,
	}
	if err := p.reports.Save(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to persist bulk report: %w", err)
	}

	if err := p.events.PublishBulkFileSubmitted(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to publish bulk file event: %w", err)
	}

	p.logger.Info("bulk file accepted",
		"file_id", file.FileID,
		"tpp_id", cmd.TPPID,
		"integrity_mode", cmd.IntegrityMode,
		"total", file.TotalCount,
		"accepted", file.AcceptedCount,
		"rejected", file.RejectedCount)

	return &UploadResult{
		FileID:        file.FileID,
		Status:        file.Status,
		InteractionID: cmd.InteractionID,
		AcceptedCount: file.AcceptedCount,
		RejectedCount: file.RejectedCount,
		CreatedAt:     file.CreatedAt,
	}, nil
}

// GetFileStatus returns the current aggregate state for the owning TPP.
// Each call on a non-terminal file counts as one poll.
func (p *Processor) GetFileStatus(ctx context.Context, fileID, tppID string) (*File, error) {
	start := p.clock.Now()
	p.metrics.IncrementRequests(statusOperation)
	defer p.metrics.ObserveDuration(statusOperation, start)

	file, err := p.loadOwnedFile(ctx, fileID, tppID)
	if err != nil {
		p.metrics.IncrementErrors(statusOperation)
		return nil, err
	}

	if !file.Terminal() {
		advanced, changed := file.AdvanceProcessing(p.settings.StatusPollsToComplete, p.clock.Now())
		if changed {
			if err := p.files.Save(ctx, &advanced); err != nil {
				p.metrics.IncrementErrors(statusOperation)
				return nil, fmt.Errorf("failed to persist bulk file: %w", err)
			}
			file = &advanced
		}
	}
	return file, nil
}

// GetFileReport serves the per-record report, cached per (file, TPP).
func (p *Processor) GetFileReport(ctx context.Context, fileID, tppID string) (*Report, error) {
	start := p.clock.Now()
	p.metrics.IncrementRequests(reportOperation)
	defer p.metrics.ObserveDuration(reportOperation, start)

	key := cache.Key("report", fileID, tppID)
	cached, hit, err := p.reportCache.Get(ctx, key)
	if err != nil {
		p.metrics.IncrementErrors(reportOperation)
		return nil, err
	}
	p.metrics.RecordCacheRead(reportOperation, hit)
	if hit {
		return &cached, nil
	}

	if _, err := p.loadOwnedFile(ctx, fileID, tppID); err != nil {
		p.metrics.IncrementErrors(reportOperation)
		return nil, err
	}

	report, err := p.reports.FindByFileID(ctx, fileID)
	if err != nil {
		p.metrics.IncrementErrors(reportOperation)
		return nil, err
	}
	if report == nil {
		p.metrics.IncrementErrors(reportOperation)
		return nil, domain.NotFound("Bulk report not found")
	}

	if err := p.reportCache.Put(ctx, key, *report); err != nil {
		return nil, err
	}
	return report, nil
}

func (p *Processor) loadOwnedFile(ctx context.Context, fileID, tppID string) (*File, error) {
	file, err := p.files.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, domain.NotFound("Bulk file not found")
	}
	if !file.BelongsToTPP(tppID) {
		return nil, domain.Forbidden("Consent participant mismatch")
	}
	return file, nil
}

func (p *Processor) validatePayload(content []byte) error {
	if len(bytes.TrimSpace(content)) == 0 {
		return domain.RuleViolation("Empty Payload")
	}
	if len(content) > p.settings.MaxFileSizeBytes {
		return domain.RuleViolation("Payload Too Large")
	}
	return nil
}

func (p *Processor) replayResult(ctx context.Context, cmd SubmitCommand, rec *idempotency.Record) (*UploadResult, error) {
	file, err := p.files.FindByID(ctx, rec.ResourceID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, domain.NotFound("Bulk file not found for idempotency record")
	}
	return &UploadResult{
		FileID:        file.FileID,
		Status:        file.Status,
		InteractionID: cmd.InteractionID,
		Replayed:      true,
		AcceptedCount: file.AcceptedCount,
		RejectedCount: file.RejectedCount,
		CreatedAt:     file.CreatedAt,
	}, nil
}
