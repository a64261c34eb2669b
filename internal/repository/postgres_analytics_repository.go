package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passmint/wallet-service/internal/domain"
)

// PostgresAnalyticsRepository implements AnalyticsRepository using PostgreSQL
type PostgresAnalyticsRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAnalyticsRepository creates a new PostgresAnalyticsRepository
func NewPostgresAnalyticsRepository(pool *pgxpool.Pool) *PostgresAnalyticsRepository {
	return &PostgresAnalyticsRepository{pool: pool}
}

// analyticsColumns defines the columns to select for analytics events
const analyticsColumns = `id, pass_id, kind,
	COALESCE(device_id, '') as device_id,
	latitude, longitude,
	COALESCE(data, '{}'::jsonb) as data,
	created_at`

func (r *PostgresAnalyticsRepository) scanEvents(rows pgx.Rows) ([]*domain.AnalyticsEvent, error) {
	var events []*domain.AnalyticsEvent
	for rows.Next() {
		event := &domain.AnalyticsEvent{}
		var dataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.PassID,
			&event.Kind,
			&event.DeviceID,
			&event.Latitude,
			&event.Longitude,
			&dataJSON,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		json.Unmarshal(dataJSON, &event.Data)
		events = append(events, event)
	}
	return events, rows.Err()
}

// Append stores one event. The table is append-only; there is no update path.
func (r *PostgresAnalyticsRepository) Append(ctx context.Context, event *domain.AnalyticsEvent) error {
	query := `
		INSERT INTO analytics_events (
			id, pass_id, kind, device_id, latitude, longitude, data, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	dataJSON, _ := json.Marshal(event.Data)
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.PassID,
		event.Kind,
		event.DeviceID,
		event.Latitude,
		event.Longitude,
		dataJSON,
		event.CreatedAt,
	)
	return err
}

// ListByPass retrieves a pass's events inside [since, until)
func (r *PostgresAnalyticsRepository) ListByPass(ctx context.Context, passID string, since, until time.Time) ([]*domain.AnalyticsEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM analytics_events
		WHERE pass_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`, analyticsColumns)

	rows, err := r.pool.Query(ctx, query, passID, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

// ListByPasses retrieves events for a set of passes inside [since, until)
func (r *PostgresAnalyticsRepository) ListByPasses(ctx context.Context, passIDs []string, since, until time.Time) ([]*domain.AnalyticsEvent, error) {
	if len(passIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM analytics_events
		WHERE pass_id = ANY($1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`, analyticsColumns)

	rows, err := r.pool.Query(ctx, query, passIDs, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

// ListAll retrieves every event inside [since, until)
func (r *PostgresAnalyticsRepository) ListAll(ctx context.Context, since, until time.Time) ([]*domain.AnalyticsEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM analytics_events
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, analyticsColumns)

	rows, err := r.pool.Query(ctx, query, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

// CountSince counts one kind of event for a pass since the given time
func (r *PostgresAnalyticsRepository) CountSince(ctx context.Context, passID string, kind domain.EventKind, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM analytics_events
		WHERE pass_id = $1 AND kind = $2 AND created_at >= $3
	`
	var count int
	err := r.pool.QueryRow(ctx, query, passID, kind, since).Scan(&count)
	return count, err
}

// ArchiveOlderThan removes events past the retention window and reports how
// many rows were removed
func (r *PostgresAnalyticsRepository) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM analytics_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
