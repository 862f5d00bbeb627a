package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// ========== Plan Methods ==========

func sqlitePlan(r *sqliteRow) (*models.SubscriptionPlan, error) {
	p := &models.SubscriptionPlan{
		ID:           r.id(),
		CreatedAt:    r.time(),
		UpdatedAt:    r.time(),
		Name:         r.text(),
		Description:  r.text(),
		Price:        r.decimal(),
		DurationDays: r.integer(),
	}
	p.Limits.Locations = r.integer()
	p.Limits.Employees = r.integer()
	p.Limits.HasAI = r.flag()
	p.IsActive = r.flag()
	return p, r.err
}

// CreatePlan creates a subscription plan
func (s *SQLiteStore) CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	_, err := s.exec(ctx, `INSERT INTO subscription_plans (`+planColumns+`)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11)`,
		idArg(plan.ID), timeArg(plan.CreatedAt), timeArg(plan.UpdatedAt), plan.Name, plan.Description,
		decimalArg(plan.Price), int64(plan.DurationDays), int64(plan.Limits.Locations),
		int64(plan.Limits.Employees), boolArg(plan.Limits.HasAI), boolArg(plan.IsActive))
	return err
}

// GetPlan gets a plan by ID
func (s *SQLiteStore) GetPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	return sqliteOne(ctx, s, `SELECT `+planColumns+` FROM subscription_plans WHERE id = ?1`,
		[]any{idArg(id)}, sqlitePlan)
}

// GetPlanByName gets a plan by case-insensitive name
func (s *SQLiteStore) GetPlanByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	return sqliteOne(ctx, s, `SELECT `+planColumns+` FROM subscription_plans WHERE fold(name) = fold(?1)`,
		[]any{name}, sqlitePlan)
}

// UpdatePlan updates a plan
func (s *SQLiteStore) UpdatePlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	plan.UpdatedAt = time.Now().UTC()
	return s.execOne(ctx, `UPDATE subscription_plans SET
			updated_at = ?2, name = ?3, description = ?4, price = ?5, duration_days = ?6,
			max_locations = ?7, max_employees = ?8, has_ai = ?9, is_active = ?10
		WHERE id = ?1`,
		idArg(plan.ID), timeArg(plan.UpdatedAt), plan.Name, plan.Description, decimalArg(plan.Price),
		int64(plan.DurationDays), int64(plan.Limits.Locations), int64(plan.Limits.Employees),
		boolArg(plan.Limits.HasAI), boolArg(plan.IsActive))
}

// DeletePlan deletes a plan
func (s *SQLiteStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	return s.execOne(ctx, `DELETE FROM subscription_plans WHERE id = ?1`, idArg(id))
}

// ListPlans lists plans by ascending price
func (s *SQLiteStore) ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	return sqliteCollect(ctx, s, `SELECT `+planColumns+` FROM subscription_plans
		ORDER BY CAST(price AS REAL), name`, nil, sqlitePlan)
}

// ========== Payment Methods ==========

func sqlitePayment(r *sqliteRow) (*models.Payment, error) {
	p := &models.Payment{
		ID:        r.id(),
		CreatedAt: r.time(),
		TenantID:  r.id(),
		Plan:      r.text(),
		Amount:    r.decimal(),
		Status:    r.text(),
		Note:      r.text(),
	}
	return p, r.err
}

// CreatePayment records a payment
func (s *SQLiteStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `INSERT INTO payments (id, created_at, tenant_id, plan, amount, status, note)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)`,
		idArg(payment.ID), timeArg(payment.CreatedAt), idArg(payment.TenantID), payment.Plan,
		decimalArg(payment.Amount), payment.Status, payment.Note)
	return err
}

// ListPayments lists the payments of a tenant, newest first
func (s *SQLiteStore) ListPayments(ctx context.Context, tenantID uuid.UUID) ([]*models.Payment, error) {
	return sqliteCollect(ctx, s, `SELECT id, created_at, tenant_id, plan, amount, status, note
		FROM payments WHERE tenant_id = ?1 ORDER BY created_at DESC, id`, []any{idArg(tenantID)}, sqlitePayment)
}

// ========== Announcement Methods ==========

const announcementColumns = `id, created_at, title, message, type, is_active, expires_at`

func sqliteAnnouncement(r *sqliteRow) (*models.Announcement, error) {
	a := &models.Announcement{
		ID:        r.id(),
		CreatedAt: r.time(),
		Title:     r.text(),
		Message:   r.text(),
		Type:      models.AnnouncementType(r.text()),
		IsActive:  r.flag(),
		ExpiresAt: r.optTime(),
	}
	return a, r.err
}

// CreateAnnouncement creates an announcement
func (s *SQLiteStore) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `INSERT INTO announcements (`+announcementColumns+`) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)`,
		idArg(a.ID), timeArg(a.CreatedAt), a.Title, a.Message, string(a.Type), boolArg(a.IsActive),
		optTimeArg(a.ExpiresAt))
	return err
}

// GetAnnouncement gets an announcement by ID
func (s *SQLiteStore) GetAnnouncement(ctx context.Context, id uuid.UUID) (*models.Announcement, error) {
	return sqliteOne(ctx, s, `SELECT `+announcementColumns+` FROM announcements WHERE id = ?1`,
		[]any{idArg(id)}, sqliteAnnouncement)
}

// UpdateAnnouncement updates an announcement
func (s *SQLiteStore) UpdateAnnouncement(ctx context.Context, a *models.Announcement) error {
	return s.execOne(ctx, `UPDATE announcements SET title = ?2, message = ?3, type = ?4, is_active = ?5, expires_at = ?6
		WHERE id = ?1`,
		idArg(a.ID), a.Title, a.Message, string(a.Type), boolArg(a.IsActive), optTimeArg(a.ExpiresAt))
}

// DeleteAnnouncement deletes an announcement
func (s *SQLiteStore) DeleteAnnouncement(ctx context.Context, id uuid.UUID) error {
	return s.execOne(ctx, `DELETE FROM announcements WHERE id = ?1`, idArg(id))
}

// ListAnnouncements lists announcements, newest first
func (s *SQLiteStore) ListAnnouncements(ctx context.Context) ([]*models.Announcement, error) {
	return sqliteCollect(ctx, s, `SELECT `+announcementColumns+` FROM announcements ORDER BY created_at DESC, id`,
		nil, sqliteAnnouncement)
}

// ========== Log Methods ==========

const logColumns = `id, created_at, log_type, level, category, message, tenant_id, user_email, ip_address, details`

func sqliteLogEntry(r *sqliteRow) (*models.LogEntry, error) {
	e := &models.LogEntry{
		ID:        r.id(),
		CreatedAt: r.time(),
		Type:      models.LogType(r.text()),
		Level:     models.LogLevel(r.text()),
		Category:  r.text(),
		Message:   r.text(),
		TenantID:  r.optID(),
		UserEmail: r.text(),
		IPAddress: r.text(),
	}
	var raw any
	if !r.isNull() {
		raw = []byte(r.stmt.ColumnText(r.col))
	}
	r.col++
	if err := e.Details.Scan(raw); err != nil && r.err == nil {
		r.err = err
	}
	return e, r.err
}

// CreateLogEntry appends a log entry
func (s *SQLiteStore) CreateLogEntry(ctx context.Context, entry *models.LogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var details any
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		details = string(raw)
	}
	_, err := s.exec(ctx, `INSERT INTO log_entries (`+logColumns+`) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10)`,
		idArg(entry.ID), timeArg(entry.CreatedAt), string(entry.Type), string(entry.Level), entry.Category,
		entry.Message, optIDArg(entry.TenantID), entry.UserEmail, entry.IPAddress, details)
	return err
}

// sqliteLogWhere builds the WHERE clause of a log listing
func sqliteLogWhere(filter models.LogFilter) (string, []any) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where += fmt.Sprintf(" AND log_type = ?%d", len(args))
	}
	if filter.Level != "" {
		args = append(args, string(filter.Level))
		where += fmt.Sprintf(" AND level = ?%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += fmt.Sprintf(" AND category = ?%d", len(args))
	}
	if filter.TenantID != nil {
		args = append(args, idArg(*filter.TenantID))
		where += fmt.Sprintf(" AND tenant_id = ?%d", len(args))
	}
	if filter.StartTime != nil {
		args = append(args, timeArg(*filter.StartTime))
		where += fmt.Sprintf(" AND created_at >= ?%d", len(args))
	}
	if filter.EndTime != nil {
		args = append(args, timeArg(*filter.EndTime))
		where += fmt.Sprintf(" AND created_at <= ?%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, likePattern(strings.ToLower(filter.Search)))
		n := len(args)
		where += fmt.Sprintf(` AND (fold(message) LIKE ?%d ESCAPE '\' OR fold(user_email) LIKE ?%d ESCAPE '\')`, n, n)
	}
	return where, args
}

// ListLogEntries lists log entries with filters, newest first
func (s *SQLiteStore) ListLogEntries(ctx context.Context, filter models.LogFilter, limit, offset int) ([]*models.LogEntry, int64, error) {
	where, args := sqliteLogWhere(filter)

	var (
		entries []*models.LogEntry
		total   int64
	)
	err := s.withSavepoint(ctx, func(v *SQLiteStore) error {
		var err error
		if total, err = v.count(ctx, "SELECT COUNT(*) FROM log_entries"+where, args...); err != nil {
			return err
		}
		query, pageArgs := sqlitePage("SELECT "+logColumns+" FROM log_entries"+where+" ORDER BY created_at DESC, id",
			args, limit, offset)
		entries, err = sqliteCollect(ctx, v, query, pageArgs, sqliteLogEntry)
		return err
	})
	return entries, total, err
}

// GetLogStats aggregates log entries; the 24h counters start at since
func (s *SQLiteStore) GetLogStats(ctx context.Context, since time.Time) (*models.LogStats, error) {
	stats := &models.LogStats{
		ByType:  make(map[models.LogType]int64),
		ByLevel: make(map[models.LogLevel]int64),
	}

	err := s.withSavepoint(ctx, func(v *SQLiteStore) error {
		err := v.query(ctx, `
			SELECT COUNT(*),
			       COALESCE(SUM(CASE WHEN created_at >= ?1 THEN 1 ELSE 0 END), 0),
			       COALESCE(SUM(CASE WHEN created_at >= ?1 AND level IN ('error', 'critical') THEN 1 ELSE 0 END), 0)
			FROM log_entries`, []any{timeArg(since)}, func(r *sqliteRow) error {
			stats.Total = r.i64()
			stats.Last24h = r.i64()
			stats.Errors24h = r.i64()
			return nil
		})
		if err != nil {
			return err
		}
		return v.query(ctx, `SELECT log_type, level, COUNT(*) FROM log_entries GROUP BY log_type, level`, nil,
			func(r *sqliteRow) error {
				t, l, n := models.LogType(r.text()), models.LogLevel(r.text()), r.i64()
				stats.ByType[t] += n
				stats.ByLevel[l] += n
				return nil
			})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ========== Platform Settings ==========

// GetPlatformSettings returns the settings or ErrNotFound before the first save
func (s *SQLiteStore) GetPlatformSettings(ctx context.Context) (*models.PlatformSettings, error) {
	return sqliteOne(ctx, s, `SELECT maintenance_mode, maintenance_message, ai_globally_enabled, default_trial_days, updated_at
		FROM platform_settings WHERE id = 1`, nil, func(r *sqliteRow) (*models.PlatformSettings, error) {
		ps := &models.PlatformSettings{
			MaintenanceMode:    r.flag(),
			MaintenanceMessage: r.text(),
			AIGloballyEnabled:  r.flag(),
			DefaultTrialDays:   r.integer(),
			UpdatedAt:          r.time(),
		}
		return ps, r.err
	})
}

// SavePlatformSettings stores the settings
func (s *SQLiteStore) SavePlatformSettings(ctx context.Context, settings *models.PlatformSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	_, err := s.exec(ctx, `
		INSERT INTO platform_settings (id, maintenance_mode, maintenance_message, ai_globally_enabled, default_trial_days, updated_at)
		VALUES (1, ?1, ?2, ?3, ?4, ?5)
		ON CONFLICT (id) DO UPDATE SET
			maintenance_mode = excluded.maintenance_mode,
			maintenance_message = excluded.maintenance_message,
			ai_globally_enabled = excluded.ai_globally_enabled,
			default_trial_days = excluded.default_trial_days,
			updated_at = excluded.updated_at`,
		boolArg(settings.MaintenanceMode), settings.MaintenanceMessage, boolArg(settings.AIGloballyEnabled),
		int64(settings.DefaultTrialDays), timeArg(settings.UpdatedAt))
	return err
}

// ========== AI Config Methods ==========

// GetAIConfig gets the assistant configuration of a tenant
func (s *SQLiteStore) GetAIConfig(ctx context.Context, tenantID uuid.UUID) (*models.AIConfig, error) {
	return sqliteOne(ctx, s, `SELECT tenant_id, enabled, system_prompt, temperature, updated_at
		FROM ai_configs WHERE tenant_id = ?1`, []any{idArg(tenantID)}, func(r *sqliteRow) (*models.AIConfig, error) {
		c := &models.AIConfig{
			TenantID:     r.id(),
			Enabled:      r.flag(),
			SystemPrompt: r.text(),
			Temperature:  r.float(),
			UpdatedAt:    r.time(),
		}
		return c, r.err
	})
}

// SaveAIConfig creates or replaces the assistant configuration of a tenant
func (s *SQLiteStore) SaveAIConfig(ctx context.Context, cfg *models.AIConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.exec(ctx, `
		INSERT INTO ai_configs (tenant_id, enabled, system_prompt, temperature, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = excluded.enabled,
			system_prompt = excluded.system_prompt,
			temperature = excluded.temperature,
			updated_at = excluded.updated_at`,
		idArg(cfg.TenantID), boolArg(cfg.Enabled), cfg.SystemPrompt, cfg.Temperature, timeArg(cfg.UpdatedAt))
	return err
}

// ========== Conversation Methods ==========

const conversationColumns = `id, created_at, updated_at, tenant_id, user_id, title`

func sqliteConversationHead(r *sqliteRow) *models.Conversation {
	return &models.Conversation{
		ID:        r.id(),
		CreatedAt: r.time(),
		UpdatedAt: r.time(),
		TenantID:  r.id(),
		UserID:    r.id(),
		Title:     r.text(),
	}
}

func sqliteConversation(r *sqliteRow) (*models.Conversation, error) {
	c := sqliteConversationHead(r)
	if raw := r.text(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Messages); err != nil && r.err == nil {
			r.err = err
		}
	}
	return c, r.err
}

// CreateConversation creates a conversation
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	raw, err := marshalMessages(conv.Messages)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO conversations (`+conversationColumns+`, messages)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)`,
		idArg(conv.ID), timeArg(conv.CreatedAt), timeArg(conv.UpdatedAt), idArg(conv.TenantID),
		idArg(conv.UserID), conv.Title, string(raw))
	return err
}

// GetConversation gets a conversation of a tenant
func (s *SQLiteStore) GetConversation(ctx context.Context, tenantID, id uuid.UUID) (*models.Conversation, error) {
	return sqliteOne(ctx, s, `SELECT `+conversationColumns+`, messages FROM conversations WHERE id = ?1 AND tenant_id = ?2`,
		[]any{idArg(id), idArg(tenantID)}, sqliteConversation)
}

// UpdateConversation replaces the title and messages of a conversation
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	raw, err := marshalMessages(conv.Messages)
	if err != nil {
		return err
	}
	return s.execOne(ctx, `UPDATE conversations SET updated_at = ?3, title = ?4, messages = ?5
		WHERE id = ?1 AND tenant_id = ?2`,
		idArg(conv.ID), idArg(conv.TenantID), timeArg(conv.UpdatedAt), conv.Title, string(raw))
}

// DeleteConversation deletes a conversation
func (s *SQLiteStore) DeleteConversation(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.execOne(ctx, `DELETE FROM conversations WHERE id = ?1 AND tenant_id = ?2`, idArg(id), idArg(tenantID))
}

// ListConversations lists a user's conversations without messages, most
// recently updated first
func (s *SQLiteStore) ListConversations(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.Conversation, error) {
	return sqliteCollect(ctx, s, `SELECT `+conversationColumns+` FROM conversations
		WHERE tenant_id = ?1 AND user_id = ?2 ORDER BY updated_at DESC, id`,
		[]any{idArg(tenantID), idArg(userID)}, func(r *sqliteRow) (*models.Conversation, error) {
			c := sqliteConversationHead(r)
			return c, r.err
		})
}

// CountConversations counts conversations across tenants
func (s *SQLiteStore) CountConversations(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM conversations`)
}
