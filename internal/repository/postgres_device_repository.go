package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passmint/wallet-service/internal/domain"
)

// PostgresDeviceRepository implements DeviceRepository using PostgreSQL
type PostgresDeviceRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDeviceRepository creates a new PostgresDeviceRepository
func NewPostgresDeviceRepository(pool *pgxpool.Pool) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{pool: pool}
}

// Register stores a registration, returning false when the triple already
// existed. Re-registration refreshes the push token.
func (r *PostgresDeviceRepository) Register(ctx context.Context, reg *domain.DeviceRegistration) (bool, error) {
	query := `
		INSERT INTO device_registrations (
			device_library_identifier, pass_type_identifier, serial_number,
			push_token, registered_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_library_identifier, pass_type_identifier, serial_number)
		DO UPDATE SET push_token = EXCLUDED.push_token
		RETURNING (xmax = 0)
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		reg.DeviceLibraryIdentifier,
		reg.PassTypeIdentifier,
		reg.SerialNumber,
		reg.PushToken,
		reg.RegisteredAt,
	).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Unregister removes one registration
func (r *PostgresDeviceRepository) Unregister(ctx context.Context, deviceLibraryID, passTypeID, serialNumber string) error {
	query := `
		DELETE FROM device_registrations
		WHERE device_library_identifier = $1
			AND pass_type_identifier = $2
			AND serial_number = $3
	`
	result, err := r.pool.Exec(ctx, query, deviceLibraryID, passTypeID, serialNumber)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrDeviceNotFound
	}
	return nil
}

// SerialsForDevice lists serial numbers registered to a device whose passes
// changed since the given time, plus the newest change instant for the
// device's next If-Modified-Since poll.
func (r *PostgresDeviceRepository) SerialsForDevice(ctx context.Context, deviceLibraryID, passTypeID string, since time.Time) ([]string, time.Time, error) {
	query := `
		SELECT p.serial_number, p.updated_at
		FROM device_registrations d
		JOIN passes p ON p.serial_number = d.serial_number
			AND p.pass_type_identifier = d.pass_type_identifier
		WHERE d.device_library_identifier = $1
			AND d.pass_type_identifier = $2
			AND p.updated_at > $3
		ORDER BY p.updated_at ASC
	`

	rows, err := r.pool.Query(ctx, query, deviceLibraryID, passTypeID, since)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	var serials []string
	var lastUpdated time.Time
	for rows.Next() {
		var serial string
		var updatedAt time.Time
		if err := rows.Scan(&serial, &updatedAt); err != nil {
			return nil, time.Time{}, err
		}
		serials = append(serials, serial)
		if updatedAt.After(lastUpdated) {
			lastUpdated = updatedAt
		}
	}
	return serials, lastUpdated, rows.Err()
}

// DevicesForPass lists the registrations to notify about a pass change
func (r *PostgresDeviceRepository) DevicesForPass(ctx context.Context, passTypeID, serialNumber string) ([]*domain.DeviceRegistration, error) {
	query := `
		SELECT device_library_identifier, pass_type_identifier, serial_number,
			push_token, registered_at
		FROM device_registrations
		WHERE pass_type_identifier = $1 AND serial_number = $2
	`

	rows, err := r.pool.Query(ctx, query, passTypeID, serialNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*domain.DeviceRegistration
	for rows.Next() {
		reg := &domain.DeviceRegistration{}
		if err := rows.Scan(
			&reg.DeviceLibraryIdentifier,
			&reg.PassTypeIdentifier,
			&reg.SerialNumber,
			&reg.PushToken,
			&reg.RegisteredAt,
		); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}
