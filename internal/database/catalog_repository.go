package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"openfinance/internal/catalog"
)

// ProductRepository serves the public product catalog.
type ProductRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sqlx.DB, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// FindAll retrieves every active product. Filtering happens in the service
// so one cached read serves all filter combinations.
func (r *ProductRepository) FindAll(ctx context.Context) ([]catalog.Product, error) {
	query := `
		SELECT product_code, name, category, currency, status
		FROM products
		WHERE status = 'ACTIVE'
		ORDER BY product_code`

	products := []catalog.Product{}
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		r.logger.Error("Failed to list products", "error", err)
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return products, nil
}
