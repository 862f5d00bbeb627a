package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

const tenantColumns = `id, created_at, updated_at, service_name, owner_name, email, phone,
	subscription_status, subscription_plan, subscription_price, subscription_end_date,
	is_trial, ai_enabled`

func scanTenant(row rowScanner) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.ServiceName, &t.OwnerName, &t.Email, &t.Phone,
		&t.SubscriptionStatus, &t.SubscriptionPlan, &t.SubscriptionPrice, &t.SubscriptionEndDate,
		&t.IsTrial, &t.AIEnabled,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return t, nil
}

// CreateTenant creates a tenant
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	now := time.Now().UTC()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now

	query := `INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.getDB().ExecContext(ctx, query,
		tenant.ID, tenant.CreatedAt, tenant.UpdatedAt, tenant.ServiceName, tenant.OwnerName,
		tenant.Email, tenant.Phone, tenant.SubscriptionStatus, tenant.SubscriptionPlan,
		tenant.SubscriptionPrice, tenant.SubscriptionEndDate, tenant.IsTrial, tenant.AIEnabled,
	)
	return mapError(err)
}

// GetTenant gets a tenant by ID
func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	row := s.getDB().QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// GetTenantForUpdate gets a tenant and locks its row for the rest of the
// transaction
func (s *PostgresStore) GetTenantForUpdate(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	row := s.getDB().QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, id)
	return scanTenant(row)
}

// UpdateTenant updates a tenant
func (s *PostgresStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	tenant.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tenants SET
			updated_at = $2, service_name = $3, owner_name = $4, email = $5, phone = $6,
			subscription_status = $7, subscription_plan = $8, subscription_price = $9,
			subscription_end_date = $10, is_trial = $11, ai_enabled = $12
		WHERE id = $1`

	return expectRows(s.getDB().ExecContext(ctx, query,
		tenant.ID, tenant.UpdatedAt, tenant.ServiceName, tenant.OwnerName, tenant.Email,
		tenant.Phone, tenant.SubscriptionStatus, tenant.SubscriptionPlan, tenant.SubscriptionPrice,
		tenant.SubscriptionEndDate, tenant.IsTrial, tenant.AIEnabled,
	))
}

// ListTenants lists tenants, newest first
func (s *PostgresStore) ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error) {
	var count int64
	if err := s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at DESC`
	args := []interface{}{}
	query, args = withPage(query, args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, t)
	}
	return tenants, count, rows.Err()
}
