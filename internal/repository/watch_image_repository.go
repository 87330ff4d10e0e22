package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/basel-ax/watchimage/internal/domain"
)

// WatchImageRepository defines data access for records that need an image.
// Rows checked at or after checkedBefore are left out so unresolvable rows
// do not hold back the rest of the table.
type WatchImageRepository interface {
	GetCriteriaMissingImage(ctx context.Context, limit int, checkedBefore time.Time) ([]domain.WatchRecord, error)
	GetListingsMissingImage(ctx context.Context, limit int, checkedBefore time.Time) ([]domain.WatchRecord, error)
	UpdateImageURL(ctx context.Context, record domain.WatchRecord, imageURL string) error
	MarkImageChecked(ctx context.Context, record domain.WatchRecord) error
}

// PostgresWatchImageRepository implements WatchImageRepository for PostgreSQL
type PostgresWatchImageRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresWatchImageRepository creates a new PostgreSQL watch image repository
func NewPostgresWatchImageRepository(db *sql.DB) *PostgresWatchImageRepository {
	return &PostgresWatchImageRepository{db: db, now: utcNow}
}

// EnsureImageColumns adds the image columns the dashboard schema does not create itself
func (r *PostgresWatchImageRepository) EnsureImageColumns(ctx context.Context) error {
	for _, table := range []string{"watch_search_criteria", "watch_listings"} {
		query := fmt.Sprintf(`
			ALTER TABLE %s
			ADD COLUMN IF NOT EXISTS image_url TEXT,
			ADD COLUMN IF NOT EXISTS image_checked_at TIMESTAMP
		`, table)
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to add image columns to %s: %w", table, err)
		}
	}
	return nil
}

// GetCriteriaMissingImage retrieves active search criteria without an image,
// never-checked rows first.
func (r *PostgresWatchImageRepository) GetCriteriaMissingImage(ctx context.Context, limit int, checkedBefore time.Time) ([]domain.WatchRecord, error) {
	query := `
		SELECT id::text, manufacturer, model, COALESCE(reference_number, '')
		FROM watch_search_criteria
		WHERE active = true
		AND (image_url IS NULL OR image_url = '')
		AND (image_checked_at IS NULL OR image_checked_at < $2)
		ORDER BY image_checked_at ASC NULLS FIRST, created_at ASC
		LIMIT $1
	`

	return r.queryRecords(ctx, domain.RecordCriteria, query, limit, checkedBefore)
}

// GetListingsMissingImage retrieves available listings without an image.
// Listings lacking a manufacturer or model cannot be resolved and are skipped.
func (r *PostgresWatchImageRepository) GetListingsMissingImage(ctx context.Context, limit int, checkedBefore time.Time) ([]domain.WatchRecord, error) {
	query := `
		SELECT id::text, manufacturer, model, COALESCE(reference_number, '')
		FROM watch_listings
		WHERE availability <> 'Sold'
		AND (image_url IS NULL OR image_url = '')
		AND manufacturer IS NOT NULL AND manufacturer != ''
		AND model IS NOT NULL AND model != ''
		AND (image_checked_at IS NULL OR image_checked_at < $2)
		ORDER BY image_checked_at ASC NULLS FIRST, date_found ASC
		LIMIT $1
	`

	return r.queryRecords(ctx, domain.RecordListing, query, limit, checkedBefore)
}

// UpdateImageURL stores the resolved image URL on the record's row
func (r *PostgresWatchImageRepository) UpdateImageURL(ctx context.Context, record domain.WatchRecord, imageURL string) error {
	table, err := tableFor(record.Kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET image_url = $1, image_checked_at = $2
		WHERE id::text = $3
	`, table)

	_, err = r.db.ExecContext(ctx, query, imageURL, r.now(), record.ID)
	return err
}

// MarkImageChecked records a resolution attempt that found nothing
func (r *PostgresWatchImageRepository) MarkImageChecked(ctx context.Context, record domain.WatchRecord) error {
	table, err := tableFor(record.Kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET image_checked_at = $1
		WHERE id::text = $2
	`, table)

	_, err = r.db.ExecContext(ctx, query, r.now(), record.ID)
	return err
}

func (r *PostgresWatchImageRepository) queryRecords(ctx context.Context, kind domain.RecordKind, query string, limit int, checkedBefore time.Time) ([]domain.WatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, limit, checkedBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.WatchRecord
	for rows.Next() {
		rec := domain.WatchRecord{Kind: kind}
		if err := rows.Scan(&rec.ID, &rec.Manufacturer, &rec.Model, &rec.ReferenceNumber); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// utcNow keeps the TIMESTAMP columns in UTC regardless of the host zone
func utcNow() time.Time {
	return time.Now().UTC()
}

func tableFor(kind domain.RecordKind) (string, error) {
	switch kind {
	case domain.RecordCriteria:
		return "watch_search_criteria", nil
	case domain.RecordListing:
		return "watch_listings", nil
	}
	return "", fmt.Errorf("unknown record kind: %q", kind)
}
