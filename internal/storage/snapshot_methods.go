package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// collect runs query and scans every row with scan
func collect[T any](ctx context.Context, s *PostgresStore, query string, scan func(rowScanner) (*T, error)) ([]*T, error) {
	rows, err := s.getDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ExportSnapshot reads every table except the logs. Run it inside a
// transaction for a consistent copy.
func (s *PostgresStore) ExportSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Version: SnapshotVersion, CreatedAt: time.Now().UTC()}
	var err error

	if snap.Tenants, err = collect(ctx, s, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`, scanTenant); err != nil {
		return nil, fmt.Errorf("export tenants: %w", err)
	}
	if snap.Users, err = collect(ctx, s, `SELECT `+userColumns+` FROM users ORDER BY created_at`, scanUser); err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}
	if snap.Admins, err = collect(ctx, s, `SELECT id, created_at, name, email, password_hash FROM admins`, scanAdmin); err != nil {
		return nil, fmt.Errorf("export admins: %w", err)
	}
	if snap.Roles, err = collect(ctx, s, `SELECT id, created_at, tenant_id, name, description, permissions FROM roles`, scanRole); err != nil {
		return nil, fmt.Errorf("export roles: %w", err)
	}
	if snap.Locations, err = collect(ctx, s, `SELECT id, created_at, tenant_id, name, address, phone FROM locations`, scanLocation); err != nil {
		return nil, fmt.Errorf("export locations: %w", err)
	}
	if snap.Statuses, err = collect(ctx, s, `SELECT `+statusColumns+` FROM custom_statuses`, scanStatus); err != nil {
		return nil, fmt.Errorf("export statuses: %w", err)
	}
	if snap.Clients, err = collect(ctx, s, `SELECT id, created_at, tenant_id, name, phone FROM clients`, scanClient); err != nil {
		return nil, fmt.Errorf("export clients: %w", err)
	}
	if snap.Tickets, err = collect(ctx, s, `SELECT `+ticketColumns+` FROM tickets`, scanTicket); err != nil {
		return nil, fmt.Errorf("export tickets: %w", err)
	}
	if snap.Plans, err = collect(ctx, s, `SELECT `+planColumns+` FROM subscription_plans`, scanPlan); err != nil {
		return nil, fmt.Errorf("export plans: %w", err)
	}
	snap.Payments, err = collect(ctx, s, `SELECT id, created_at, tenant_id, plan, amount, status, note FROM payments`,
		func(row rowScanner) (*models.Payment, error) {
			p := &models.Payment{}
			err := row.Scan(&p.ID, &p.CreatedAt, &p.TenantID, &p.Plan, &p.Amount, &p.Status, &p.Note)
			return p, err
		})
	if err != nil {
		return nil, fmt.Errorf("export payments: %w", err)
	}
	if snap.Announcements, err = collect(ctx, s, `SELECT id, created_at, title, message, type, is_active, expires_at FROM announcements`, scanAnnouncement); err != nil {
		return nil, fmt.Errorf("export announcements: %w", err)
	}
	snap.AIConfigs, err = collect(ctx, s, `SELECT tenant_id, enabled, system_prompt, temperature, updated_at FROM ai_configs`,
		func(row rowScanner) (*models.AIConfig, error) {
			c := &models.AIConfig{}
			err := row.Scan(&c.TenantID, &c.Enabled, &c.SystemPrompt, &c.Temperature, &c.UpdatedAt)
			return c, err
		})
	if err != nil {
		return nil, fmt.Errorf("export ai configs: %w", err)
	}
	if snap.Conversations, err = collect(ctx, s, `SELECT id, created_at, updated_at, tenant_id, user_id, title, messages FROM conversations`, scanConversation); err != nil {
		return nil, fmt.Errorf("export conversations: %w", err)
	}

	settings, err := s.GetPlatformSettings(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("export settings: %w", err)
	}
	snap.Settings = settings
	return snap, nil
}

// snapshotTables lists the tables a restore clears, children first
var snapshotTables = []string{
	"conversations", "ai_configs", "payments", "tickets", "clients", "custom_statuses",
	"roles", "users", "locations", "tenants", "admins", "subscription_plans",
	"announcements", "platform_settings",
}

// ImportSnapshot replaces all data except logs with the snapshot contents.
// Outside a transaction it opens its own.
func (s *PostgresStore) ImportSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Version != SnapshotVersion {
		return ErrInvalidData
	}
	if s.tx == nil {
		txStore, err := s.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer txStore.Rollback()
		if err := txStore.ImportSnapshot(ctx, snap); err != nil {
			return err
		}
		return txStore.Commit()
	}

	if _, err := s.tx.ExecContext(ctx, "TRUNCATE "+pq.QuoteIdentifier(snapshotTables[0])+tableList(snapshotTables[1:])); err != nil {
		return fmt.Errorf("clear tables: %w", err)
	}

	return restoreSnapshot(ctx, s, snap)
}

func tableList(tables []string) string {
	out := ""
	for _, t := range tables {
		out += ", " + pq.QuoteIdentifier(t)
	}
	return out
}

func each[T any](items []*T, fn func(*T) error) error {
	for _, v := range items {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
