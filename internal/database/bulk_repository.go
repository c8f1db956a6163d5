package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"openfinance/internal/bulk"
)

// BulkFileRepository persists bulk file records.
type BulkFileRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewBulkFileRepository creates a new bulk file repository
func NewBulkFileRepository(db *sqlx.DB, logger *slog.Logger) *BulkFileRepository {
	return &BulkFileRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// Save inserts or replaces a bulk file record. Status polling rewrites the
// same row as the file advances toward its target status.
func (r *BulkFileRepository) Save(ctx context.Context, file *bulk.File) error {
	query := `
		INSERT INTO bulk_files (
			file_id, consent_id, tpp_id, idempotency_key, request_hash, file_name,
			integrity_mode, status, target_status, poll_count, total_count,
			accepted_count, rejected_count, total_amount, created_at, completed_at
		) VALUES (
			:file_id, :consent_id, :tpp_id, :idempotency_key, :request_hash, :file_name,
			:integrity_mode, :status, :target_status, :poll_count, :total_count,
			:accepted_count, :rejected_count, :total_amount, :created_at, :completed_at
		)
		ON CONFLICT (file_id) DO UPDATE SET
			status = EXCLUDED.status,
			poll_count = EXCLUDED.poll_count,
			completed_at = EXCLUDED.completed_at`

	_, err := r.db.NamedExecContext(ctx, query, file)
	if err != nil {
		r.logger.Error("Failed to save bulk file", "file_id", file.FileID, "error", err)
		return fmt.Errorf("failed to save bulk file: %w", err)
	}

	return nil
}

// FindByID retrieves a bulk file record, nil when absent.
func (r *BulkFileRepository) FindByID(ctx context.Context, fileID string) (*bulk.File, error) {
	query := `
		SELECT file_id, consent_id, tpp_id, idempotency_key, request_hash, file_name,
		       integrity_mode, status, target_status, poll_count, total_count,
		       accepted_count, rejected_count, total_amount, created_at, completed_at
		FROM bulk_files
		WHERE file_id = $1`

	var file bulk.File
	err := r.db.GetContext(ctx, &file, query, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get bulk file", "file_id", fileID, "error", err)
		return nil, fmt.Errorf("failed to get bulk file: %w", err)
	}

	return &file, nil
}

// BulkReportRepository persists per-record bulk reports.
type BulkReportRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewBulkReportRepository creates a new bulk report repository
func NewBulkReportRepository(db *sqlx.DB, logger *slog.Logger) *BulkReportRepository {
	return &BulkReportRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// Save inserts a report header plus its item rows in one transaction.
func (r *BulkReportRepository) Save(ctx context.Context, report *bulk.Report) error {
	return r.Transaction(func(tx *sqlx.Tx) error {
		headerQuery := `
			INSERT INTO bulk_reports (file_id, status, total_count, accepted_count, rejected_count, created_at)
			VALUES (:file_id, :status, :total_count, :accepted_count, :rejected_count, :created_at)`

		if _, err := tx.NamedExecContext(ctx, headerQuery, report); err != nil {
			r.logger.Error("Failed to save bulk report", "file_id", report.FileID, "error", err)
			return fmt.Errorf("failed to save bulk report: %w", err)
		}

		itemQuery := `
			INSERT INTO bulk_report_items (file_id, line_number, instruction_id, payee_iban, amount, accepted, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`

		for _, item := range report.Items {
			_, err := tx.ExecContext(ctx, itemQuery,
				report.FileID, item.LineNumber, item.InstructionID,
				item.PayeeIBAN, item.Amount, item.Accepted, item.ErrorMessage)
			if err != nil {
				r.logger.Error("Failed to save bulk report item",
					"file_id", report.FileID, "line", item.LineNumber, "error", err)
				return fmt.Errorf("failed to save bulk report item: %w", err)
			}
		}

		return nil
	})
}

// FindByFileID retrieves a report with its items, nil when absent.
func (r *BulkReportRepository) FindByFileID(ctx context.Context, fileID string) (*bulk.Report, error) {
	headerQuery := `
		SELECT file_id, status, total_count, accepted_count, rejected_count, created_at
		FROM bulk_reports
		WHERE file_id = $1`

	var report bulk.Report
	err := r.db.GetContext(ctx, &report, headerQuery, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get bulk report", "file_id", fileID, "error", err)
		return nil, fmt.Errorf("failed to get bulk report: %w", err)
	}

	itemsQuery := `
		SELECT line_number, instruction_id, payee_iban, amount, accepted, error_message
		FROM bulk_report_items
		WHERE file_id = $1
		ORDER BY line_number`

	if err := r.db.SelectContext(ctx, &report.Items, itemsQuery, fileID); err != nil {
		r.logger.Error("Failed to get bulk report items", "file_id", fileID, "error", err)
		return nil, fmt.Errorf("failed to get bulk report items: %w", err)
	}

	return &report, nil
}
