package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// ========== Plan Methods ==========

const planColumns = `id, created_at, updated_at, name, description, price, duration_days,
	max_locations, max_employees, has_ai, is_active`

func scanPlan(row rowScanner) (*models.SubscriptionPlan, error) {
	p := &models.SubscriptionPlan{}
	err := row.Scan(
		&p.ID, &p.CreatedAt, &p.UpdatedAt, &p.Name, &p.Description, &p.Price, &p.DurationDays,
		&p.Limits.Locations, &p.Limits.Employees, &p.Limits.HasAI, &p.IsActive,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// CreatePlan creates a subscription plan
func (s *PostgresStore) CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	_, err := s.getDB().ExecContext(ctx,
		`INSERT INTO subscription_plans (`+planColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		plan.ID, plan.CreatedAt, plan.UpdatedAt, plan.Name, plan.Description, plan.Price,
		plan.DurationDays, plan.Limits.Locations, plan.Limits.Employees, plan.Limits.HasAI, plan.IsActive)
	return mapError(err)
}

// GetPlan gets a plan by ID
func (s *PostgresStore) GetPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	return scanPlan(s.getDB().QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id))
}

// GetPlanByName gets a plan by case-insensitive name
func (s *PostgresStore) GetPlanByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	return scanPlan(s.getDB().QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE LOWER(name) = LOWER($1)`, name))
}

// UpdatePlan updates a plan
func (s *PostgresStore) UpdatePlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	plan.UpdatedAt = time.Now().UTC()
	return expectRows(s.getDB().ExecContext(ctx,
		`UPDATE subscription_plans SET
			updated_at = $2, name = $3, description = $4, price = $5, duration_days = $6,
			max_locations = $7, max_employees = $8, has_ai = $9, is_active = $10
		 WHERE id = $1`,
		plan.ID, plan.UpdatedAt, plan.Name, plan.Description, plan.Price, plan.DurationDays,
		plan.Limits.Locations, plan.Limits.Employees, plan.Limits.HasAI, plan.IsActive))
}

// DeletePlan deletes a plan
func (s *PostgresStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	return expectRows(s.getDB().ExecContext(ctx, `DELETE FROM subscription_plans WHERE id = $1`, id))
}

// ListPlans lists plans by ascending price
func (s *PostgresStore) ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT `+planColumns+` FROM subscription_plans ORDER BY price, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// ========== Payment Methods ==========

// CreatePayment records a payment
func (s *PostgresStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	_, err := s.getDB().ExecContext(ctx,
		`INSERT INTO payments (id, created_at, tenant_id, plan, amount, status, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		payment.ID, payment.CreatedAt, payment.TenantID, payment.Plan, payment.Amount,
		payment.Status, payment.Note)
	return mapError(err)
}

// ListPayments lists the payments of a tenant, newest first
func (s *PostgresStore) ListPayments(ctx context.Context, tenantID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT id, created_at, tenant_id, plan, amount, status, note
		 FROM payments WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p := &models.Payment{}
		if err := rows.Scan(&p.ID, &p.CreatedAt, &p.TenantID, &p.Plan, &p.Amount, &p.Status, &p.Note); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ========== Announcement Methods ==========

func scanAnnouncement(row rowScanner) (*models.Announcement, error) {
	a := &models.Announcement{}
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.Title, &a.Message, &a.Type, &a.IsActive, &a.ExpiresAt); err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

// CreateAnnouncement creates an announcement
func (s *PostgresStore) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.getDB().ExecContext(ctx,
		`INSERT INTO announcements (id, created_at, title, message, type, is_active, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.CreatedAt, a.Title, a.Message, a.Type, a.IsActive, a.ExpiresAt)
	return mapError(err)
}

// GetAnnouncement gets an announcement by ID
func (s *PostgresStore) GetAnnouncement(ctx context.Context, id uuid.UUID) (*models.Announcement, error) {
	return scanAnnouncement(s.getDB().QueryRowContext(ctx,
		`SELECT id, created_at, title, message, type, is_active, expires_at
		 FROM announcements WHERE id = $1`, id))
}

// UpdateAnnouncement updates an announcement
func (s *PostgresStore) UpdateAnnouncement(ctx context.Context, a *models.Announcement) error {
	return expectRows(s.getDB().ExecContext(ctx,
		`UPDATE announcements SET title = $2, message = $3, type = $4, is_active = $5, expires_at = $6
		 WHERE id = $1`,
		a.ID, a.Title, a.Message, a.Type, a.IsActive, a.ExpiresAt))
}

// DeleteAnnouncement deletes an announcement
func (s *PostgresStore) DeleteAnnouncement(ctx context.Context, id uuid.UUID) error {
	return expectRows(s.getDB().ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id))
}

// ListAnnouncements lists announcements, newest first
func (s *PostgresStore) ListAnnouncements(ctx context.Context) ([]*models.Announcement, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT id, created_at, title, message, type, is_active, expires_at
		 FROM announcements ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ========== Log Methods ==========

// CreateLogEntry appends a log entry
func (s *PostgresStore) CreateLogEntry(ctx context.Context, entry *models.LogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO log_entries (
			id, created_at, log_type, level, category, message,
			tenant_id, user_email, ip_address, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.getDB().ExecContext(ctx, query,
		entry.ID, entry.CreatedAt, entry.Type, entry.Level, entry.Category, entry.Message,
		entry.TenantID, entry.UserEmail, entry.IPAddress, entry.Details,
	)
	return err
}

// logWhere builds the WHERE clause of a log listing
func logWhere(filter models.LogFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 0

	if filter.Type != "" {
		argCount++
		where += fmt.Sprintf(" AND log_type = $%d", argCount)
		args = append(args, filter.Type)
	}
	if filter.Level != "" {
		argCount++
		where += fmt.Sprintf(" AND level = $%d", argCount)
		args = append(args, filter.Level)
	}
	if filter.Category != "" {
		argCount++
		where += fmt.Sprintf(" AND category = $%d", argCount)
		args = append(args, filter.Category)
	}
	if filter.TenantID != nil {
		argCount++
		where += fmt.Sprintf(" AND tenant_id = $%d", argCount)
		args = append(args, *filter.TenantID)
	}
	if filter.StartTime != nil {
		argCount++
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		argCount++
		where += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.EndTime)
	}
	if filter.Search != "" {
		argCount++
		where += fmt.Sprintf(" AND (LOWER(message) LIKE $%d OR LOWER(user_email) LIKE $%d)", argCount, argCount)
		args = append(args, likePattern(strings.ToLower(filter.Search)))
	}
	return where, args
}

// ListLogEntries lists log entries with filters, newest first
func (s *PostgresStore) ListLogEntries(ctx context.Context, filter models.LogFilter, limit, offset int) ([]*models.LogEntry, int64, error) {
	where, args := logWhere(filter)

	var count int64
	if err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM log_entries"+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query, args := withPage(`
		SELECT id, created_at, log_type, level, category, message,
		       tenant_id, user_email, ip_address, details
		FROM log_entries`+where+` ORDER BY created_at DESC`, args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*models.LogEntry
	for rows.Next() {
		e := &models.LogEntry{}
		err := rows.Scan(
			&e.ID, &e.CreatedAt, &e.Type, &e.Level, &e.Category, &e.Message,
			&e.TenantID, &e.UserEmail, &e.IPAddress, &e.Details,
		)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, count, rows.Err()
}

// GetLogStats aggregates log entries; the 24h counters start at since
func (s *PostgresStore) GetLogStats(ctx context.Context, since time.Time) (*models.LogStats, error) {
	stats := &models.LogStats{
		ByType:  make(map[models.LogType]int64),
		ByLevel: make(map[models.LogLevel]int64),
	}

	err := s.getDB().QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $1),
		       COUNT(*) FILTER (WHERE created_at >= $1 AND level IN ('error', 'critical'))
		FROM log_entries`, since).Scan(&stats.Total, &stats.Last24h, &stats.Errors24h)
	if err != nil {
		return nil, err
	}

	rows, err := s.getDB().QueryContext(ctx,
		`SELECT log_type, level, COUNT(*) FROM log_entries GROUP BY log_type, level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t models.LogType
			l models.LogLevel
			n int64
		)
		if err := rows.Scan(&t, &l, &n); err != nil {
			return nil, err
		}
		stats.ByType[t] += n
		stats.ByLevel[l] += n
	}
	return stats, rows.Err()
}

// ========== Platform Settings ==========

// GetPlatformSettings returns the settings or ErrNotFound before the first save
func (s *PostgresStore) GetPlatformSettings(ctx context.Context) (*models.PlatformSettings, error) {
	ps := &models.PlatformSettings{}
	err := s.getDB().QueryRowContext(ctx, `
		SELECT maintenance_mode, maintenance_message, ai_globally_enabled, default_trial_days, updated_at
		FROM platform_settings WHERE id = 1`).Scan(
		&ps.MaintenanceMode, &ps.MaintenanceMessage, &ps.AIGloballyEnabled, &ps.DefaultTrialDays, &ps.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return ps, nil
}

// SavePlatformSettings stores the settings
func (s *PostgresStore) SavePlatformSettings(ctx context.Context, settings *models.PlatformSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	_, err := s.getDB().ExecContext(ctx, `
		INSERT INTO platform_settings (id, maintenance_mode, maintenance_message, ai_globally_enabled, default_trial_days, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			maintenance_mode = EXCLUDED.maintenance_mode,
			maintenance_message = EXCLUDED.maintenance_message,
			ai_globally_enabled = EXCLUDED.ai_globally_enabled,
			default_trial_days = EXCLUDED.default_trial_days,
			updated_at = EXCLUDED.updated_at`,
		settings.MaintenanceMode, settings.MaintenanceMessage, settings.AIGloballyEnabled,
		settings.DefaultTrialDays, settings.UpdatedAt)
	return err
}
