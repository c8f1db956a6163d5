// Package catalog serves the public product catalog. Listings are not
// consent-gated, but they flow through the shared TTL cache with normalized
// keys so equivalent filter combinations share one entry.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"openfinance/internal/cache"
	"openfinance/internal/clock"
	"openfinance/internal/metrics"
)

const listOperation = "catalog.list"

// Product is one catalog entry.
type Product struct {
	ProductCode string `json:"product_code" db:"product_code"`
	Name        string `json:"name" db:"name"`
	Category    string `json:"category" db:"category"`
	Currency    string `json:"currency" db:"currency"`
	Status      string `json:"status" db:"status"`
}

// ListResult carries the filtered products plus the cache-hit flag.
type ListResult struct {
	Products []Product `json:"products"`
	CacheHit bool      `json:"cache_hit"`
}

// ReadPort loads the full catalog from the system of record.
type ReadPort interface {
	FindAll(ctx context.Context) ([]Product, error)
}

type Service struct {
	products ReadPort
	cache    *cache.Cache[[]Product]
	clock    clock.Clock
	metrics  *metrics.Collector
	logger   *slog.Logger
}

func NewService(
	products ReadPort,
	productCache *cache.Cache[[]Product],
	clk clock.Clock,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Service {
	return &Service{
		products: products,
		cache:    productCache,
		clock:    clk,
		metrics:  collector,
		logger:   logger,
	}
}

// ListProducts returns catalog entries, optionally filtered by category and
// currency. Filter matching is case-insensitive.
func (s *Service) ListProducts(ctx context.Context, category, currency string) (*ListResult, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(listOperation)
	defer s.metrics.ObserveDuration(listOperation, start)

	key := cache.NormalizedKey([]string{"catalog", "products"}, category, currency)
	cached, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.IncrementErrors(listOperation)
		return nil, err
	}
	s.metrics.RecordCacheRead(listOperation, hit)
	if hit {
		return &ListResult{Products: cached, CacheHit: true}, nil
	}

	all, err := s.products.FindAll(ctx)
	if err != nil {
		s.metrics.IncrementErrors(listOperation)
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	filtered := make([]Product, 0, len(all))
	for _, product := range all {
		if category != "" && !strings.EqualFold(product.Category, strings.TrimSpace(category)) {
			continue
		}
		if currency != "" && !strings.EqualFold(product.Currency, strings.TrimSpace(currency)) {
			continue
		}
		filtered = append(filtered, product)
	}

	if err := s.cache.Put(ctx, key, filtered); err != nil {
		return nil, err
	}
	return &ListResult{Products: filtered}, nil
}
