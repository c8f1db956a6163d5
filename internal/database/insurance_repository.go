package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"openfinance/internal/insurance"
)

// QuoteRepository persists issued insurance quotes.
type QuoteRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewQuoteRepository creates a new quote repository
func NewQuoteRepository(db *sqlx.DB, logger *slog.Logger) *QuoteRepository {
	return &QuoteRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// Save inserts a quote.
func (r *QuoteRepository) Save(ctx context.Context, quote *insurance.Quote) error {
	query := `
		INSERT INTO quotes (
			quote_id, consent_id, tpp_id, product_code, coverage_amount,
			premium, currency, status, created_at, expires_at
		) VALUES (
			:quote_id, :consent_id, :tpp_id, :product_code, :coverage_amount,
			:premium, :currency, :status, :created_at, :expires_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, quote)
	if err != nil {
		r.logger.Error("Failed to save quote", "quote_id", quote.QuoteID, "error", err)
		return fmt.Errorf("failed to save quote: %w", err)
	}

	return nil
}

// FindByID retrieves a quote, nil when absent.
func (r *QuoteRepository) FindByID(ctx context.Context, quoteID string) (*insurance.Quote, error) {
	query := `
		SELECT quote_id, consent_id, tpp_id, product_code, coverage_amount,
		       premium, currency, status, created_at, expires_at
		FROM quotes
		WHERE quote_id = $1`

	var quote insurance.Quote
	err := r.db.GetContext(ctx, &quote, query, quoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get quote", "quote_id", quoteID, "error", err)
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	return &quote, nil
}
