package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// ========== Tenant Methods ==========

func sqliteTenant(r *sqliteRow) (*models.Tenant, error) {
	t := &models.Tenant{
		ID:                  r.id(),
		CreatedAt:           r.time(),
		UpdatedAt:           r.time(),
		ServiceName:         r.text(),
		OwnerName:           r.text(),
		Email:               r.text(),
		Phone:               r.text(),
		SubscriptionStatus:  models.SubscriptionStatus(r.text()),
		SubscriptionPlan:    r.text(),
		SubscriptionPrice:   r.decimal(),
		SubscriptionEndDate: r.time(),
		IsTrial:             r.flag(),
		AIEnabled:           r.flag(),
	}
	return t, r.err
}

// CreateTenant creates a tenant
func (s *SQLiteStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	now := time.Now().UTC()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now

	_, err := s.exec(ctx, `INSERT INTO tenants (`+tenantColumns+`)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13)`,
		idArg(tenant.ID), timeArg(tenant.CreatedAt), timeArg(tenant.UpdatedAt), tenant.ServiceName,
		tenant.OwnerName, tenant.Email, tenant.Phone, string(tenant.SubscriptionStatus),
		tenant.SubscriptionPlan, decimalArg(tenant.SubscriptionPrice), timeArg(tenant.SubscriptionEndDate),
		boolArg(tenant.IsTrial), boolArg(tenant.AIEnabled))
	return err
}

// GetTenant gets a tenant by ID
func (s *SQLiteStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return sqliteOne(ctx, s, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?1`,
		[]any{idArg(id)}, sqliteTenant)
}

// GetTenantForUpdate reads a tenant inside a transaction. SQLite
// transactions already hold the database write lock, so this is GetTenant.
func (s *SQLiteStore) GetTenantForUpdate(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.GetTenant(ctx, id)
}

// UpdateTenant updates a tenant
func (s *SQLiteStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	tenant.UpdatedAt = time.Now().UTC()
	return s.execOne(ctx, `
		UPDATE tenants SET
			updated_at = ?2, service_name = ?3, owner_name = ?4, email = ?5, phone = ?6,
			subscription_status = ?7, subscription_plan = ?8, subscription_price = ?9,
			subscription_end_date = ?10, is_trial = ?11, ai_enabled = ?12
		WHERE id = ?1`,
		idArg(tenant.ID), timeArg(tenant.UpdatedAt), tenant.ServiceName, tenant.OwnerName, tenant.Email,
		tenant.Phone, string(tenant.SubscriptionStatus), tenant.SubscriptionPlan,
		decimalArg(tenant.SubscriptionPrice), timeArg(tenant.SubscriptionEndDate),
		boolArg(tenant.IsTrial), boolArg(tenant.AIEnabled))
}

// ListTenants lists tenants, newest first
func (s *SQLiteStore) ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error) {
	var (
		tenants []*models.Tenant
		total   int64
	)
	err := s.withSavepoint(ctx, func(v *SQLiteStore) error {
		var err error
		if total, err = v.count(ctx, `SELECT COUNT(*) FROM tenants`); err != nil {
			return err
		}
		query, args := sqlitePage(`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC, id`, nil, limit, offset)
		tenants, err = sqliteCollect(ctx, v, query, args, sqliteTenant)
		return err
	})
	return tenants, total, err
}

// ========== User Methods ==========

func sqliteUser(r *sqliteRow) (*models.User, error) {
	u := &models.User{
		ID:           r.id(),
		CreatedAt:    r.time(),
		UpdatedAt:    r.time(),
		TenantID:     r.id(),
		Name:         r.text(),
		Email:        r.text(),
		PasswordHash: r.text(),
		Role:         r.text(),
		LocationID:   r.optID(),
		IsOwner:      r.flag(),
		IsActive:     r.flag(),
	}
	return u, r.err
}

// CreateUser creates a new user
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := s.exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11)`,
		idArg(user.ID), timeArg(user.CreatedAt), timeArg(user.UpdatedAt), idArg(user.TenantID),
		user.Name, user.Email, user.PasswordHash, user.Role, optIDArg(user.LocationID),
		boolArg(user.IsOwner), boolArg(user.IsActive))
	return err
}

// GetUser gets a user of a tenant
func (s *SQLiteStore) GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error) {
	return sqliteOne(ctx, s, `SELECT `+userColumns+` FROM users WHERE id = ?1 AND tenant_id = ?2`,
		[]any{idArg(id), idArg(tenantID)}, sqliteUser)
}

// GetUserByEmail gets a user by email
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return sqliteOne(ctx, s, `SELECT `+userColumns+` FROM users WHERE fold(email) = fold(?1)`,
		[]any{email}, sqliteUser)
}

// UpdateUser updates a user
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	return s.execOne(ctx, `
		UPDATE users SET
			updated_at = ?3, name = ?4, email = ?5, password_hash = ?6, role = ?7,
			location_id = ?8, is_owner = ?9, is_active = ?10
		WHERE id = ?1 AND tenant_id = ?2`,
		idArg(user.ID), idArg(user.TenantID), timeArg(user.UpdatedAt), user.Name, user.Email,
		user.PasswordHash, user.Role, optIDArg(user.LocationID), boolArg(user.IsOwner), boolArg(user.IsActive))
}

// DeleteUser deletes a user
func (s *SQLiteStore) DeleteUser(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.execOne(ctx, `DELETE FROM users WHERE id = ?1 AND tenant_id = ?2`, idArg(id), idArg(tenantID))
}

// ListUsers lists the users of a tenant
func (s *SQLiteStore) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	return sqliteCollect(ctx, s, `SELECT `+userColumns+` FROM users WHERE tenant_id = ?1 ORDER BY created_at, id`,
		[]any{idArg(tenantID)}, sqliteUser)
}

// CountUsers counts the users of a tenant
func (s *SQLiteStore) CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM users WHERE tenant_id = ?1`, idArg(tenantID))
	return int(n), err
}

// ========== Admin Methods ==========

const adminColumns = `id, created_at, name, email, password_hash`

func sqliteAdmin(r *sqliteRow) (*models.Admin, error) {
	a := &models.Admin{
		ID:           r.id(),
		CreatedAt:    r.time(),
		Name:         r.text(),
		Email:        r.text(),
		PasswordHash: r.text(),
	}
	return a, r.err
}

// CreateAdmin creates a platform admin
func (s *SQLiteStore) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `INSERT INTO admins (`+adminColumns+`) VALUES (?1, ?2, ?3, ?4, ?5)`,
		idArg(admin.ID), timeArg(admin.CreatedAt), admin.Name, admin.Email, admin.PasswordHash)
	return err
}

// GetAdmin gets an admin by ID
func (s *SQLiteStore) GetAdmin(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	return sqliteOne(ctx, s, `SELECT `+adminColumns+` FROM admins WHERE id = ?1`, []any{idArg(id)}, sqliteAdmin)
}

// GetAdminByEmail gets an admin by email
func (s *SQLiteStore) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return sqliteOne(ctx, s, `SELECT `+adminColumns+` FROM admins WHERE fold(email) = fold(?1)`,
		[]any{email}, sqliteAdmin)
}

// ========== Role Methods ==========

const roleColumns = `id, created_at, tenant_id, name, description, permissions`

func sqliteRole(r *sqliteRow) (*models.Role, error) {
	role := &models.Role{
		ID:          r.id(),
		CreatedAt:   r.time(),
		TenantID:    r.id(),
		Name:        r.text(),
		Description: r.text(),
	}
	if err := json.Unmarshal([]byte(r.text()), &role.Permissions); err != nil {
		return nil, err
	}
	return role, r.err
}

func permissionsArg(perms []string) (string, error) {
	if perms == nil {
		perms = []string{}
	}
	raw, err := json.Marshal(perms)
	return string(raw), err
}

// CreateRole creates a custom role
func (s *SQLiteStore) CreateRole(ctx context.Context, role *models.Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	perms, err := permissionsArg(role.Permissions)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO roles (`+roleColumns+`) VALUES (?1, ?2, ?3, ?4, ?5, ?6)`,
		idArg(role.ID), timeArg(role.CreatedAt), idArg(role.TenantID), role.Name, role.Description, perms)
	return err
}

// GetRole gets a custom role of a tenant
func (s *SQLiteStore) GetRole(ctx context.Context, tenantID, id uuid.UUID) (*models.Role, error) {
	return sqliteOne(ctx, s, `SELECT `+roleColumns+` FROM roles WHERE id = ?1 AND tenant_id = ?2`,
		[]any{idArg(id), idArg(tenantID)}, sqliteRole)
}

// UpdateRole updates a custom role
func (s *SQLiteStore) UpdateRole(ctx context.Context, role *models.Role) error {
	perms, err := permissionsArg(role.Permissions)
	if err != nil {
		return err
	}
	return s.execOne(ctx, `UPDATE roles SET name = ?3, description = ?4, permissions = ?5
		WHERE id = ?1 AND tenant_id = ?2`,
		idArg(role.ID), idArg(role.TenantID), role.Name, role.Description, perms)
}

// DeleteRole deletes a custom role
func (s *SQLiteStore) DeleteRole(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.execOne(ctx, `DELETE FROM roles WHERE id = ?1 AND tenant_id = ?2`, idArg(id), idArg(tenantID))
}

// ListRoles lists the custom roles of a tenant
func (s *SQLiteStore) ListRoles(ctx context.Context, tenantID uuid.UUID) ([]*models.Role, error) {
	return sqliteCollect(ctx, s, `SELECT `+roleColumns+` FROM roles WHERE tenant_id = ?1 ORDER BY name`,
		[]any{idArg(tenantID)}, sqliteRole)
}
