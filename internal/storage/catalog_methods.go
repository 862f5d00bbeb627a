package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// ========== Location Methods ==========

func scanLocation(row rowScanner) (*models.Location, error) {
	l := &models.Location{}
	if err := row.Scan(&l.ID, &l.CreatedAt, &l.TenantID, &l.Name, &l.Address, &l.Phone); err != nil {
		return nil, mapError(err)
	}
	return l, nil
}

// CreateLocation creates a location
func (s *PostgresStore) CreateLocation(ctx context.Context, location *models.Location) error {
	if location.ID == uuid.Nil {
		location.ID = uuid.New()
	}
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}
	_, err := s.getDB().ExecContext(ctx,
		`INSERT INTO locations (id, created_at, tenant_id, name, address, phone)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		location.ID, location.CreatedAt, location.TenantID, location.Name, location.Address, location.Phone)
	return mapError(err)
}

// GetLocation gets a location of a tenant
func (s *PostgresStore) GetLocation(ctx context.Context, tenantID, id uuid.UUID) (*models.Location, error) {
	return scanLocation(s.getDB().QueryRowContext(ctx,
		`SELECT id, created_at, tenant_id, name, address, phone
		 FROM locations WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// UpdateLocation updates a location
func (s *PostgresStore) UpdateLocation(ctx context.Context, location *models.Location) error {
	return expectRows(s.getDB().ExecContext(ctx,
		`UPDATE locations SET name = $3, address = $4, phone = $5 WHERE id = $1 AND tenant_id = $2`,
		location.ID, location.TenantID, location.Name, location.Address, location.Phone))
}

// DeleteLocation deletes a location
func (s *PostgresStore) DeleteLocation(ctx context.Context, tenantID, id uuid.UUID) error {
	return expectRows(s.getDB().ExecContext(ctx,
		`DELETE FROM locations WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// ListLocations lists the locations of a tenant
func (s *PostgresStore) ListLocations(ctx context.Context, tenantID uuid.UUID) ([]*models.Location, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT id, created_at, tenant_id, name, address, phone
		 FROM locations WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []*models.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// CountLocations counts the locations of a tenant
func (s *PostgresStore) CountLocations(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM locations WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

// ========== Custom Status Methods ==========

const statusColumns = `id, created_at, updated_at, tenant_id, category, label, color, icon,
	description, sort_order, is_final, requires_note`

func scanStatus(row rowScanner) (*models.CustomStatus, error) {
	st := &models.CustomStatus{}
	err := row.Scan(
		&st.ID, &st.CreatedAt, &st.UpdatedAt, &st.TenantID, &st.Category, &st.Label, &st.Color,
		&st.Icon, &st.Description, &st.Order, &st.IsFinal, &st.RequiresNote,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return st, nil
}

// CreateStatus creates a custom status
func (s *PostgresStore) CreateStatus(ctx context.Context, status *models.CustomStatus) error {
	if status.ID == uuid.Nil {
		status.ID = uuid.New()
	}
	now := time.Now().UTC()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}
	status.UpdatedAt = now

	_, err := s.getDB().ExecContext(ctx,
		`INSERT INTO custom_statuses (`+statusColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		status.ID, status.CreatedAt, status.UpdatedAt, status.TenantID, status.Category, status.Label,
		status.Color, status.Icon, status.Description, status.Order, status.IsFinal, status.RequiresNote)
	return mapError(err)
}

// GetStatus gets a custom status of a tenant
func (s *PostgresStore) GetStatus(ctx context.Context, tenantID, id uuid.UUID) (*models.CustomStatus, error) {
	return scanStatus(s.getDB().QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM custom_statuses WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// UpdateStatus updates a custom status
func (s *PostgresStore) UpdateStatus(ctx context.Context, status *models.CustomStatus) error {
	status.UpdatedAt = time.Now().UTC()
	return expectRows(s.getDB().ExecContext(ctx,
		`UPDATE custom_statuses SET
			updated_at = $3, category = $4, label = $5, color = $6, icon = $7,
			description = $8, sort_order = $9, is_final = $10, requires_note = $11
		 WHERE id = $1 AND tenant_id = $2`,
		status.ID, status.TenantID, status.UpdatedAt, status.Category, status.Label, status.Color,
		status.Icon, status.Description, status.Order, status.IsFinal, status.RequiresNote))
}

// DeleteStatus deletes a custom status
func (s *PostgresStore) DeleteStatus(ctx context.Context, tenantID, id uuid.UUID) error {
	return expectRows(s.getDB().ExecContext(ctx,
		`DELETE FROM custom_statuses WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// ListStatuses lists the statuses of a tenant in display order
func (s *PostgresStore) ListStatuses(ctx context.Context, tenantID uuid.UUID) ([]*models.CustomStatus, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT `+statusColumns+` FROM custom_statuses WHERE tenant_id = $1
		 ORDER BY sort_order, created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []*models.CustomStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	models.SortStatuses(statuses)
	return statuses, nil
}
