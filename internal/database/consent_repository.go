package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"openfinance/internal/consent"
)

// ConsentRepository loads consent records for authorization checks.
type ConsentRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewConsentRepository creates a new consent repository
func NewConsentRepository(db *sqlx.DB, logger *slog.Logger) *ConsentRepository {
	return &ConsentRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

type consentRow struct {
	ConsentID   string         `db:"consent_id"`
	TPPID       string         `db:"tpp_id"`
	SubjectID   string         `db:"subject_id"`
	Tier        string         `db:"tier"`
	Scopes      pq.StringArray `db:"scopes"`
	ResourceIDs pq.StringArray `db:"resource_ids"`
	ExpiresAt   time.Time      `db:"expires_at"`
}

// FindByID retrieves a consent snapshot by ID. A missing row is not an
// error; it returns nil so the caller can map it to its own failure mode.
func (r *ConsentRepository) FindByID(ctx context.Context, consentID string) (*consent.Context, error) {
	query := `
		SELECT consent_id, tpp_id, subject_id, tier, scopes, resource_ids, expires_at
		FROM consents
		WHERE consent_id = $1`

	var row consentRow
	err := r.db.GetContext(ctx, &row, query, consentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get consent by ID", "consent_id", consentID, "error", err)
		return nil, fmt.Errorf("failed to get consent by ID: %w", err)
	}

	return &consent.Context{
		ConsentID:   row.ConsentID,
		TPPID:       row.TPPID,
		SubjectID:   row.SubjectID,
		Tier:        consent.EntitlementTier(row.Tier),
		Scopes:      row.Scopes,
		ResourceIDs: row.ResourceIDs,
		ExpiresAt:   row.ExpiresAt,
	}, nil
}
