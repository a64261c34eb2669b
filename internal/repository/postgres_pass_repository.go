package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passmint/wallet-service/internal/domain"
)

// PostgresPassRepository implements PassRepository using PostgreSQL
type PostgresPassRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPassRepository creates a new PostgresPassRepository
func NewPostgresPassRepository(pool *pgxpool.Pool) *PostgresPassRepository {
	return &PostgresPassRepository{pool: pool}
}

// passColumns defines the columns to select for passes
// Using COALESCE for nullable string columns to avoid scan errors
const passColumns = `id, ticket_id, event_id, user_id,
	COALESCE(template_id, '') as template_id,
	platform,
	COALESCE(pass_type_identifier, '') as pass_type_identifier,
	serial_number, status,
	COALESCE(status_reason, '') as status_reason,
	COALESCE(content, '{}'::jsonb) as content,
	COALESCE(barcode_payload, '') as barcode_payload,
	authentication_token,
	COALESCE(locations, '[]'::jsonb) as locations,
	COALESCE(beacons, '[]'::jsonb) as beacons,
	COALESCE(quiet_hours, '{}'::jsonb) as quiet_hours,
	expires_at,
	COALESCE(sharing, '{}'::jsonb) as sharing,
	COALESCE(google_object_id, '') as google_object_id,
	COALESCE(metadata, '{}'::jsonb) as metadata,
	content_version, created_at, updated_at`

// scanPass scans a row into a Pass struct
func (r *PostgresPassRepository) scanPass(row pgx.Row) (*domain.Pass, error) {
	pass := &domain.Pass{}
	var contentJSON, locationsJSON, beaconsJSON, quietJSON, sharingJSON, metadataJSON []byte

	err := row.Scan(
		&pass.ID,
		&pass.TicketID,
		&pass.EventID,
		&pass.UserID,
		&pass.TemplateID,
		&pass.Platform,
		&pass.PassTypeIdentifier,
		&pass.SerialNumber,
		&pass.Status,
		&pass.StatusReason,
		&contentJSON,
		&pass.BarcodePayload,
		&pass.AuthenticationToken,
		&locationsJSON,
		&beaconsJSON,
		&quietJSON,
		&pass.ExpiresAt,
		&sharingJSON,
		&pass.GoogleObjectID,
		&metadataJSON,
		&pass.ContentVersion,
		&pass.CreatedAt,
		&pass.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal(contentJSON, &pass.Content)
	json.Unmarshal(locationsJSON, &pass.Locations)
	json.Unmarshal(beaconsJSON, &pass.Beacons)
	json.Unmarshal(quietJSON, &pass.QuietHours)
	json.Unmarshal(sharingJSON, &pass.Sharing)
	json.Unmarshal(metadataJSON, &pass.Metadata)
	if pass.Content == nil {
		pass.Content = map[string]interface{}{}
	}
	if pass.Metadata == nil {
		pass.Metadata = map[string]string{}
	}

	return pass, nil
}

// scanPasses scans multiple rows into Pass structs
func (r *PostgresPassRepository) scanPasses(rows pgx.Rows) ([]*domain.Pass, error) {
	var passes []*domain.Pass
	for rows.Next() {
		pass, err := r.scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, pass)
	}
	return passes, rows.Err()
}

// Create creates a new pass. The partial unique index on (ticket_id) where
// status <> 'revoked' enforces one live pass per ticket; the unique serial
// number index enforces serial uniqueness.
func (r *PostgresPassRepository) Create(ctx context.Context, pass *domain.Pass) error {
	query := `
		INSERT INTO passes (
			id, ticket_id, event_id, user_id, template_id, platform,
			pass_type_identifier, serial_number, status, status_reason, content,
			barcode_payload, authentication_token, locations, beacons,
			quiet_hours, expires_at, sharing, google_object_id, metadata,
			content_version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)
	`

	contentJSON, _ := json.Marshal(pass.Content)
	locationsJSON, _ := json.Marshal(pass.Locations)
	beaconsJSON, _ := json.Marshal(pass.Beacons)
	quietJSON, _ := json.Marshal(pass.QuietHours)
	sharingJSON, _ := json.Marshal(pass.Sharing)
	metadataJSON, _ := json.Marshal(pass.Metadata)

	_, err := r.pool.Exec(ctx, query,
		pass.ID,
		pass.TicketID,
		pass.EventID,
		pass.UserID,
		pass.TemplateID,
		pass.Platform,
		pass.PassTypeIdentifier,
		pass.SerialNumber,
		pass.Status,
		pass.StatusReason,
		contentJSON,
		pass.BarcodePayload,
		pass.AuthenticationToken,
		locationsJSON,
		beaconsJSON,
		quietJSON,
		pass.ExpiresAt,
		sharingJSON,
		pass.GoogleObjectID,
		metadataJSON,
		pass.ContentVersion,
		pass.CreatedAt,
		pass.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "passes_serial_number_key" {
				return domain.ErrSerialNumberTaken
			}
			return domain.ErrTicketAlreadyHasPass
		}
		return err
	}
	return nil
}

// GetByID retrieves a pass by ID
func (r *PostgresPassRepository) GetByID(ctx context.Context, id string) (*domain.Pass, error) {
	query := fmt.Sprintf(`SELECT %s FROM passes WHERE id = $1`, passColumns)
	pass, err := r.scanPass(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPassNotFound
		}
		return nil, err
	}
	return pass, nil
}

// GetBySerial retrieves a pass by its update-channel identity
func (r *PostgresPassRepository) GetBySerial(ctx context.Context, passTypeID, serialNumber string) (*domain.Pass, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM passes
		WHERE pass_type_identifier = $1 AND serial_number = $2
	`, passColumns)
	pass, err := r.scanPass(r.pool.QueryRow(ctx, query, passTypeID, serialNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPassNotFound
		}
		return nil, err
	}
	return pass, nil
}

// GetByTicket retrieves the non-revoked pass for a ticket
func (r *PostgresPassRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.Pass, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM passes
		WHERE ticket_id = $1 AND status <> $2
		ORDER BY created_at DESC
		LIMIT 1
	`, passColumns)
	pass, err := r.scanPass(r.pool.QueryRow(ctx, query, ticketID, domain.PassStatusRevoked))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPassNotFound
		}
		return nil, err
	}
	return pass, nil
}

// ListActiveByUser retrieves the user's active passes
func (r *PostgresPassRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Pass, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM passes
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
	`, passColumns)

	rows, err := r.pool.Query(ctx, query, userID, domain.PassStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanPasses(rows)
}

// ListByEvent retrieves all non-terminal passes for an event
func (r *PostgresPassRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Pass, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM passes
		WHERE event_id = $1 AND status NOT IN ($2, $3)
		ORDER BY created_at ASC
	`, passColumns)

	rows, err := r.pool.Query(ctx, query, eventID, domain.PassStatusExpired, domain.PassStatusRevoked)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanPasses(rows)
}

// Update updates a pass guarded by its content version
func (r *PostgresPassRepository) Update(ctx context.Context, pass *domain.Pass) error {
	query := `
		UPDATE passes SET
			status = $2, status_reason = $3, content = $4, barcode_payload = $5,
			locations = $6, beacons = $7, quiet_hours = $8, expires_at = $9,
			sharing = $10, google_object_id = $11, metadata = $12,
			content_version = content_version + 1, updated_at = $13
		WHERE id = $1 AND content_version = $14
	`

	contentJSON, _ := json.Marshal(pass.Content)
	locationsJSON, _ := json.Marshal(pass.Locations)
	beaconsJSON, _ := json.Marshal(pass.Beacons)
	quietJSON, _ := json.Marshal(pass.QuietHours)
	sharingJSON, _ := json.Marshal(pass.Sharing)
	metadataJSON, _ := json.Marshal(pass.Metadata)

	pass.UpdatedAt = time.Now().UTC()
	result, err := r.pool.Exec(ctx, query,
		pass.ID,
		pass.Status,
		pass.StatusReason,
		contentJSON,
		pass.BarcodePayload,
		locationsJSON,
		beaconsJSON,
		quietJSON,
		pass.ExpiresAt,
		sharingJSON,
		pass.GoogleObjectID,
		metadataJSON,
		pass.UpdatedAt,
		pass.ContentVersion,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		// Distinguish a stale snapshot from a missing row
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM passes WHERE id = $1)`, pass.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrPassNotFound
		}
		return ErrVersionConflict
	}
	pass.ContentVersion++
	return nil
}

// ListExpired retrieves non-terminal passes whose expiry instant has passed
func (r *PostgresPassRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Pass, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM passes
		WHERE expires_at IS NOT NULL AND expires_at <= $1
			AND status NOT IN ($2, $3)
		ORDER BY expires_at ASC
		LIMIT $4
	`, passColumns)

	rows, err := r.pool.Query(ctx, query, now, domain.PassStatusExpired, domain.PassStatusRevoked, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanPasses(rows)
}

// CountByTemplate counts passes referencing a template
func (r *PostgresPassRepository) CountByTemplate(ctx context.Context, templateID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM passes WHERE template_id = $1`, templateID).Scan(&count)
	return count, err
}

// CountByStatus counts passes per status across the whole fleet
func (r *PostgresPassRepository) CountByStatus(ctx context.Context) (map[domain.PassStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM passes GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.PassStatus]int)
	for rows.Next() {
		var status domain.PassStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ListByTemplate retrieves all passes rendered from a template
func (r *PostgresPassRepository) ListByTemplate(ctx context.Context, templateID string) ([]*domain.Pass, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM passes
		WHERE template_id = $1
		ORDER BY created_at ASC
	`, passColumns)

	rows, err := r.pool.Query(ctx, query, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanPasses(rows)
}
