package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

const viewColumns = `id, tenant_id, client_id, description, status, roles, created_at,
	expires_at, secret_rotated_at, version, updated_at`

// PostgresStore keeps views in the sa_views table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed view store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (View, error) {
	ctx, span := tracedGet(ctx, "projection.Get", id)
	defer span.End()

	row := s.db.QueryRowContext(ctx, `SELECT `+viewColumns+` FROM sa_views WHERE id = $1`, id)
	v, err := scanView(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
	}
	return v, err
}

// Upsert writes v only when it is newer than the stored row
func (s *PostgresStore) Upsert(ctx context.Context, v View) (bool, error) {
	roles := v.Roles
	if roles == nil {
		roles = []string{}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sa_views (`+viewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			client_id = EXCLUDED.client_id,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			roles = EXCLUDED.roles,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			secret_rotated_at = EXCLUDED.secret_rotated_at,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE sa_views.version < EXCLUDED.version
	`,
		v.ID, v.TenantID, v.ClientID, v.Description, string(v.Status), pq.Array(roles), v.CreatedAt,
		v.ExpiresAt, v.SecretRotatedAt, v.Version, v.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert view: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *PostgresStore) FindByClientID(ctx context.Context, tenantID, clientID string) (View, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+viewColumns+` FROM sa_views WHERE tenant_id = $1 AND client_id = $2`,
		tenantID, clientID,
	)
	return scanView(row)
}

func (s *PostgresStore) ClientIDExists(ctx context.Context, tenantID, clientID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sa_views WHERE tenant_id = $1 AND client_id = $2)`,
		tenantID, clientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check client ID: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, filter Filter) ([]View, error) {
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(roles)", len(args)))
	}

	query := `SELECT ` + viewColumns + ` FROM sa_views WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	defer rows.Close()
	return scanViews(rows)
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]View, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+viewColumns+` FROM sa_views
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
		ORDER BY expires_at ASC, id ASC
		LIMIT $3
	`, string(serviceaccount.StatusActive), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired views: %w", err)
	}
	defer rows.Close()
	return scanViews(rows)
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE sa_views`); err != nil {
		return fmt.Errorf("failed to reset views: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanView(row scanner) (View, error) {
	var (
		v         View
		status    string
		roles     pq.StringArray
		expiresAt sql.NullTime
		rotatedAt sql.NullTime
	)
	err := row.Scan(&v.ID, &v.TenantID, &v.ClientID, &v.Description, &status, &roles,
		&v.CreatedAt, &expiresAt, &rotatedAt, &v.Version, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return View{}, ErrNotFound
	}
	if err != nil {
		return View{}, fmt.Errorf("failed to scan view: %w", err)
	}

	v.Status = serviceaccount.Status(status)
	v.Roles = []string(roles)
	if v.Roles == nil {
		v.Roles = []string{}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		v.ExpiresAt = &t
	}
	if rotatedAt.Valid {
		t := rotatedAt.Time
		v.SecretRotatedAt = &t
	}
	return v, nil
}

func scanViews(rows *sql.Rows) ([]View, error) {
	views := []View{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating views: %w", err)
	}
	return views, nil
}
