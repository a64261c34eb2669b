package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passmint/wallet-service/internal/domain"
)

// PostgresTemplateRepository implements TemplateRepository using PostgreSQL
type PostgresTemplateRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTemplateRepository creates a new PostgresTemplateRepository
func NewPostgresTemplateRepository(pool *pgxpool.Pool) *PostgresTemplateRepository {
	return &PostgresTemplateRepository{pool: pool}
}

// templateColumns defines the columns to select for templates
const templateColumns = `id, organizer_id, platform, name,
	COALESCE(description, '') as description,
	version, status, is_default,
	COALESCE(appearance, '{}'::jsonb) as appearance,
	COALESCE(fields, '{}'::jsonb) as fields,
	COALESCE(barcode, '{}'::jsonb) as barcode,
	location_triggers_on, beacon_triggers_on,
	COALESCE(locations, '[]'::jsonb) as locations,
	COALESCE(beacons, '[]'::jsonb) as beacons,
	COALESCE(sharing, '{}'::jsonb) as sharing,
	COALESCE(validation, '[]'::jsonb) as validation,
	created_at, updated_at`

// scanTemplate scans a row into a Template struct
func (r *PostgresTemplateRepository) scanTemplate(row pgx.Row) (*domain.Template, error) {
	tpl := &domain.Template{}
	var appearanceJSON, fieldsJSON, barcodeJSON, locationsJSON, beaconsJSON, sharingJSON, validationJSON []byte

	err := row.Scan(
		&tpl.ID,
		&tpl.OrganizerID,
		&tpl.Platform,
		&tpl.Name,
		&tpl.Description,
		&tpl.Version,
		&tpl.Status,
		&tpl.IsDefault,
		&appearanceJSON,
		&fieldsJSON,
		&barcodeJSON,
		&tpl.LocationTriggersOn,
		&tpl.BeaconTriggersOn,
		&locationsJSON,
		&beaconsJSON,
		&sharingJSON,
		&validationJSON,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal(appearanceJSON, &tpl.Appearance)
	json.Unmarshal(fieldsJSON, &tpl.Fields)
	json.Unmarshal(barcodeJSON, &tpl.Barcode)
	json.Unmarshal(locationsJSON, &tpl.Locations)
	json.Unmarshal(beaconsJSON, &tpl.Beacons)
	json.Unmarshal(sharingJSON, &tpl.Sharing)
	json.Unmarshal(validationJSON, &tpl.Validation)

	return tpl, nil
}

// Create creates a new template
func (r *PostgresTemplateRepository) Create(ctx context.Context, tpl *domain.Template) error {
	query := `
		INSERT INTO pass_templates (
			id, organizer_id, platform, name, description, version, status,
			is_default, appearance, fields, barcode, location_triggers_on,
			beacon_triggers_on, locations, beacons, sharing, validation,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`

	appearanceJSON, _ := json.Marshal(tpl.Appearance)
	fieldsJSON, _ := json.Marshal(tpl.Fields)
	barcodeJSON, _ := json.Marshal(tpl.Barcode)
	locationsJSON, _ := json.Marshal(tpl.Locations)
	beaconsJSON, _ := json.Marshal(tpl.Beacons)
	sharingJSON, _ := json.Marshal(tpl.Sharing)
	validationJSON, _ := json.Marshal(tpl.Validation)

	_, err := r.pool.Exec(ctx, query,
		tpl.ID,
		tpl.OrganizerID,
		tpl.Platform,
		tpl.Name,
		tpl.Description,
		tpl.Version,
		tpl.Status,
		tpl.IsDefault,
		appearanceJSON,
		fieldsJSON,
		barcodeJSON,
		tpl.LocationTriggersOn,
		tpl.BeaconTriggersOn,
		locationsJSON,
		beaconsJSON,
		sharingJSON,
		validationJSON,
		tpl.CreatedAt,
		tpl.UpdatedAt,
	)
	return err
}

// GetByID retrieves a template by ID
func (r *PostgresTemplateRepository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM pass_templates WHERE id = $1`, templateColumns)
	tpl, err := r.scanTemplate(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, err
	}
	return tpl, nil
}

// GetDefault retrieves the default active template for (organizer, platform)
func (r *PostgresTemplateRepository) GetDefault(ctx context.Context, organizerID string, platform domain.Platform) (*domain.Template, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM pass_templates
		WHERE organizer_id = $1 AND platform = $2 AND is_default = true AND status = $3
		LIMIT 1
	`, templateColumns)
	tpl, err := r.scanTemplate(r.pool.QueryRow(ctx, query, organizerID, platform, domain.TemplateStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, err
	}
	return tpl, nil
}

// ListByOrganizer retrieves all templates owned by an organizer
func (r *PostgresTemplateRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]*domain.Template, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM pass_templates
		WHERE organizer_id = $1
		ORDER BY created_at DESC
	`, templateColumns)

	rows, err := r.pool.Query(ctx, query, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*domain.Template
	for rows.Next() {
		tpl, err := r.scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// Update updates a template
func (r *PostgresTemplateRepository) Update(ctx context.Context, tpl *domain.Template) error {
	query := `
		UPDATE pass_templates SET
			name = $2, description = $3, version = $4, status = $5,
			is_default = $6, appearance = $7, fields = $8, barcode = $9,
			location_triggers_on = $10, beacon_triggers_on = $11,
			locations = $12, beacons = $13, sharing = $14, validation = $15,
			updated_at = $16
		WHERE id = $1
	`

	appearanceJSON, _ := json.Marshal(tpl.Appearance)
	fieldsJSON, _ := json.Marshal(tpl.Fields)
	barcodeJSON, _ := json.Marshal(tpl.Barcode)
	locationsJSON, _ := json.Marshal(tpl.Locations)
	beaconsJSON, _ := json.Marshal(tpl.Beacons)
	sharingJSON, _ := json.Marshal(tpl.Sharing)
	validationJSON, _ := json.Marshal(tpl.Validation)

	tpl.UpdatedAt = time.Now().UTC()
	result, err := r.pool.Exec(ctx, query,
		tpl.ID,
		tpl.Name,
		tpl.Description,
		tpl.Version,
		tpl.Status,
		tpl.IsDefault,
		appearanceJSON,
		fieldsJSON,
		barcodeJSON,
		tpl.LocationTriggersOn,
		tpl.BeaconTriggersOn,
		locationsJSON,
		beaconsJSON,
		sharingJSON,
		validationJSON,
		tpl.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

// Delete removes a template
func (r *PostgresTemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM pass_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

// ClearDefault unsets the default flag for (organizer, platform)
func (r *PostgresTemplateRepository) ClearDefault(ctx context.Context, organizerID string, platform domain.Platform) error {
	query := `
		UPDATE pass_templates
		SET is_default = false, updated_at = $3
		WHERE organizer_id = $1 AND platform = $2 AND is_default = true
	`
	_, err := r.pool.Exec(ctx, query, organizerID, platform, time.Now().UTC())
	return err
}
