package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// ExportSnapshot reads every table except the logs inside one savepoint
func (s *SQLiteStore) ExportSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Version: SnapshotVersion, CreatedAt: time.Now().UTC()}

	err := s.withSavepoint(ctx, func(v *SQLiteStore) error {
		var err error
		if snap.Tenants, err = sqliteCollect(ctx, v, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at, id`, nil, sqliteTenant); err != nil {
			return fmt.Errorf("export tenants: %w", err)
		}
		if snap.Users, err = sqliteCollect(ctx, v, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`, nil, sqliteUser); err != nil {
			return fmt.Errorf("export users: %w", err)
		}
		if snap.Admins, err = sqliteCollect(ctx, v, `SELECT `+adminColumns+` FROM admins`, nil, sqliteAdmin); err != nil {
			return fmt.Errorf("export admins: %w", err)
		}
		if snap.Roles, err = sqliteCollect(ctx, v, `SELECT `+roleColumns+` FROM roles`, nil, sqliteRole); err != nil {
			return fmt.Errorf("export roles: %w", err)
		}
		if snap.Locations, err = sqliteCollect(ctx, v, `SELECT `+locationColumns+` FROM locations`, nil, sqliteLocation); err != nil {
			return fmt.Errorf("export locations: %w", err)
		}
		if snap.Statuses, err = sqliteCollect(ctx, v, `SELECT `+statusColumns+` FROM custom_statuses`, nil, sqliteStatus); err != nil {
			return fmt.Errorf("export statuses: %w", err)
		}
		if snap.Clients, err = sqliteCollect(ctx, v, `SELECT `+clientColumns+` FROM clients`, nil, sqliteClient); err != nil {
			return fmt.Errorf("export clients: %w", err)
		}
		if snap.Tickets, err = sqliteCollect(ctx, v, `SELECT `+ticketColumns+` FROM tickets`, nil, sqliteTicket); err != nil {
			return fmt.Errorf("export tickets: %w", err)
		}
		if snap.Plans, err = sqliteCollect(ctx, v, `SELECT `+planColumns+` FROM subscription_plans`, nil, sqlitePlan); err != nil {
			return fmt.Errorf("export plans: %w", err)
		}
		if snap.Payments, err = sqliteCollect(ctx, v, `SELECT id, created_at, tenant_id, plan, amount, status, note FROM payments`, nil, sqlitePayment); err != nil {
			return fmt.Errorf("export payments: %w", err)
		}
		if snap.Announcements, err = sqliteCollect(ctx, v, `SELECT `+announcementColumns+` FROM announcements`, nil, sqliteAnnouncement); err != nil {
			return fmt.Errorf("export announcements: %w", err)
		}
		snap.AIConfigs, err = sqliteCollect(ctx, v, `SELECT tenant_id, enabled, system_prompt, temperature, updated_at FROM ai_configs`, nil,
			func(r *sqliteRow) (*models.AIConfig, error) {
				c := &models.AIConfig{
					TenantID:     r.id(),
					Enabled:      r.flag(),
					SystemPrompt: r.text(),
					Temperature:  r.float(),
					UpdatedAt:    r.time(),
				}
				return c, r.err
			})
		if err != nil {
			return fmt.Errorf("export ai configs: %w", err)
		}
		if snap.Conversations, err = sqliteCollect(ctx, v, `SELECT `+conversationColumns+`, messages FROM conversations`, nil, sqliteConversation); err != nil {
			return fmt.Errorf("export conversations: %w", err)
		}

		settings, err := v.GetPlatformSettings(ctx)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("export settings: %w", err)
		}
		snap.Settings = settings
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ImportSnapshot replaces all data except logs with the snapshot contents.
// Outside a transaction it opens its own.
func (s *SQLiteStore) ImportSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Version != SnapshotVersion {
		return ErrInvalidData
	}
	if s.conn == nil {
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

	for _, table := range snapshotTables {
		if _, err := s.exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return restoreSnapshot(ctx, s, snap)
}

// restoreSnapshot writes the snapshot rows through the Create methods of an
// emptied store
func restoreSnapshot(ctx context.Context, s Store, snap *Snapshot) error {
	steps := []func() error{
		func() error { return each(snap.Tenants, func(v *models.Tenant) error { return s.CreateTenant(ctx, v) }) },
		func() error { return each(snap.Locations, func(v *models.Location) error { return s.CreateLocation(ctx, v) }) },
		func() error { return each(snap.Users, func(v *models.User) error { return s.CreateUser(ctx, v) }) },
		func() error { return each(snap.Admins, func(v *models.Admin) error { return s.CreateAdmin(ctx, v) }) },
		func() error { return each(snap.Roles, func(v *models.Role) error { return s.CreateRole(ctx, v) }) },
		func() error { return each(snap.Statuses, func(v *models.CustomStatus) error { return s.CreateStatus(ctx, v) }) },
		func() error {
			return each(snap.Clients, func(v *models.Client) error {
				_, err := s.CreateClient(ctx, v)
				return err
			})
		},
		func() error { return each(snap.Tickets, func(v *models.Ticket) error { return s.CreateTicket(ctx, v) }) },
		func() error { return each(snap.Plans, func(v *models.SubscriptionPlan) error { return s.CreatePlan(ctx, v) }) },
		func() error { return each(snap.Payments, func(v *models.Payment) error { return s.CreatePayment(ctx, v) }) },
		func() error {
			return each(snap.Announcements, func(v *models.Announcement) error { return s.CreateAnnouncement(ctx, v) })
		},
		func() error { return each(snap.AIConfigs, func(v *models.AIConfig) error { return s.SaveAIConfig(ctx, v) }) },
		func() error {
			return each(snap.Conversations, func(v *models.Conversation) error { return s.CreateConversation(ctx, v) })
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	if snap.Settings != nil {
		if err := s.SavePlatformSettings(ctx, snap.Settings); err != nil {
			return fmt.Errorf("restore settings: %w", err)
		}
	}
	return nil
}
