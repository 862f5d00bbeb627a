package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// ========== User Methods ==========

const userColumns = `id, created_at, updated_at, tenant_id, name, email, password_hash,
	role, location_id, is_owner, is_active`

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.TenantID, &u.Name, &u.Email, &u.PasswordHash,
		&u.Role, &u.LocationID, &u.IsOwner, &u.IsActive,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

// CreateUser creates a new user
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.CreatedAt, user.UpdatedAt, user.TenantID, user.Name, user.Email,
		user.PasswordHash, user.Role, user.LocationID, user.IsOwner, user.IsActive,
	)
	return mapError(err)
}

// GetUser gets a user of a tenant
func (s *PostgresStore) GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error) {
	row := s.getDB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return scanUser(row)
}

// GetUserByEmail gets a user by email
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.getDB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return scanUser(row)
}

// UpdateUser updates a user
func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users SET
			updated_at = $3, name = $4, email = $5, password_hash = $6, role = $7,
			location_id = $8, is_owner = $9, is_active = $10
		WHERE id = $1 AND tenant_id = $2`

	return expectRows(s.getDB().ExecContext(ctx, query,
		user.ID, user.TenantID, user.UpdatedAt, user.Name, user.Email, user.PasswordHash,
		user.Role, user.LocationID, user.IsOwner, user.IsActive,
	))
}

// DeleteUser deletes a user
func (s *PostgresStore) DeleteUser(ctx context.Context, tenantID, id uuid.UUID) error {
	return expectRows(s.getDB().ExecContext(ctx,
		"DELETE FROM users WHERE id = $1 AND tenant_id = $2", id, tenantID))
}

// ListUsers lists the users of a tenant
func (s *PostgresStore) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers counts the users of a tenant
func (s *PostgresStore) CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

// ========== Admin Methods ==========

// CreateAdmin creates a platform admin
func (s *PostgresStore) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = time.Now().UTC()
	}
	_, err := s.getDB().ExecContext(ctx,
		`INSERT INTO admins (id, created_at, name, email, password_hash) VALUES ($1, $2, $3, $4, $5)`,
		admin.ID, admin.CreatedAt, admin.Name, admin.Email, admin.PasswordHash)
	return mapError(err)
}

func scanAdmin(row rowScanner) (*models.Admin, error) {
	a := &models.Admin{}
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.Name, &a.Email, &a.PasswordHash); err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

// GetAdmin gets an admin by ID
func (s *PostgresStore) GetAdmin(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	return scanAdmin(s.getDB().QueryRowContext(ctx,
		`SELECT id, created_at, name, email, password_hash FROM admins WHERE id = $1`, id))
}

// GetAdminByEmail gets an admin by email
func (s *PostgresStore) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return scanAdmin(s.getDB().QueryRowContext(ctx,
		`SELECT id, created_at, name, email, password_hash FROM admins WHERE LOWER(email) = LOWER($1)`, email))
}

// ========== Role Methods ==========

func scanRole(row rowScanner) (*models.Role, error) {
	r := &models.Role{}
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.TenantID, &r.Name, &r.Description, pq.Array(&r.Permissions)); err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

// CreateRole creates a custom role
func (s *PostgresStore) CreateRole(ctx context.Context, role *models.Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	_, err := s.getDB().ExecContext(ctx,
		`INSERT INTO roles (id, created_at, tenant_id, name, description, permissions)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		role.ID, role.CreatedAt, role.TenantID, role.Name, role.Description, pq.Array(role.Permissions))
	return mapError(err)
}

// GetRole gets a custom role of a tenant
func (s *PostgresStore) GetRole(ctx context.Context, tenantID, id uuid.UUID) (*models.Role, error) {
	return scanRole(s.getDB().QueryRowContext(ctx,
		`SELECT id, created_at, tenant_id, name, description, permissions
		 FROM roles WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// UpdateRole updates a custom role
func (s *PostgresStore) UpdateRole(ctx context.Context, role *models.Role) error {
	return expectRows(s.getDB().ExecContext(ctx,
		`UPDATE roles SET name = $3, description = $4, permissions = $5
		 WHERE id = $1 AND tenant_id = $2`,
		role.ID, role.TenantID, role.Name, role.Description, pq.Array(role.Permissions)))
}

// DeleteRole deletes a custom role
func (s *PostgresStore) DeleteRole(ctx context.Context, tenantID, id uuid.UUID) error {
	return expectRows(s.getDB().ExecContext(ctx,
		`DELETE FROM roles WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// ListRoles lists the custom roles of a tenant
func (s *PostgresStore) ListRoles(ctx context.Context, tenantID uuid.UUID) ([]*models.Role, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT id, created_at, tenant_id, name, description, permissions
		 FROM roles WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}
