package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/auth"
	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

func TestAuthorizeAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "alpha")

	require.NoError(t, f.svc.AuthorizeAdmin(ctx, admin))
	assertKind(t, f.svc.AuthorizeAdmin(ctx, owner), apperr.KindForbidden)

	ghost := Actor{UserID: uuid.New(), UserType: models.UserTypeAdmin}
	assertKind(t, f.svc.AuthorizeAdmin(ctx, ghost), apperr.KindUnauthorized)
}

func TestTenantOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alpha := f.register(t, "alpha")
	f.register(t, "beta")
	f.ticket(t, alpha)

	page, err := f.svc.ListTenants(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Tenants, 1)

	detail, err := f.svc.GetTenantDetail(ctx, alpha.TenantID)
	require.NoError(t, err)
	assert.Equal(t, "Service alpha", detail.ServiceName)
	assert.Len(t, detail.Locations, 1)
	assert.Empty(t, detail.Employees)
	assert.Empty(t, detail.Payments)
	assert.Equal(t, int64(1), detail.TicketsCount)

	_, err = f.svc.GetTenantDetail(ctx, uuid.New())
	assertKind(t, err, apperr.KindNotFound)
}

func TestPlatformStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	alpha := f.register(t, "alpha")
	beta := f.register(t, "beta")
	f.ticket(t, alpha)

	_, err := f.svc.ProcessPayment(ctx, alpha, ProcessPaymentRequest{Plan: "Pro"})
	require.NoError(t, err)
	_, err = f.svc.ExtendGrace(ctx, admin, beta.TenantID, ExtendGraceRequest{Days: 5})
	require.NoError(t, err)

	stats, err := f.svc.GetPlatformStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTenants)
	assert.Equal(t, 2, stats.ActiveTenants)
	assert.Equal(t, 1, stats.TrialTenants)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, int64(1), stats.TotalTickets)
	assert.Equal(t, int64(1), stats.TicketsLast30d)
	assert.Equal(t, map[string]int{"Pro": 1, "Trial": 1}, stats.TenantsByPlan)
	assert.True(t, decimal.NewFromInt(199).Equal(stats.TotalRevenue), stats.TotalRevenue.String())
	assert.True(t, decimal.NewFromInt(199).Equal(stats.MonthlyRecurring), stats.MonthlyRecurring.String())

	info := f.svc.GetServerInfo()
	assert.Equal(t, "local", info.EventBus)
	assert.Equal(t, config.StorageDriverSQLite, info.StorageDriver)
	assert.True(t, info.AIConfigured)
}

func TestToggleTenantStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "alpha")

	tenant, err := f.svc.ToggleTenantStatus(ctx, admin, owner.TenantID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionSuspended, tenant.SubscriptionStatus)
	assertKind(t, f.svc.CheckWritable(ctx, owner), apperr.KindSubscriptionSuspended)

	tenant, err = f.svc.ToggleTenantStatus(ctx, admin, owner.TenantID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, tenant.SubscriptionStatus)
	require.NoError(t, f.svc.CheckWritable(ctx, owner))

	stats, err := f.svc.GetPlatformStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.SuspendedTenants)
}

func TestExtendGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "alpha")
	f.updateTenant(t, owner.TenantID, func(tenant *models.Tenant) {
		tenant.SubscriptionEndDate = time.Now().Add(-48 * time.Hour)
	})
	assertKind(t, f.svc.CheckWritable(ctx, owner), apperr.KindSubscriptionExpired)

	status, err := f.svc.ExtendGrace(ctx, admin, owner.TenantID, ExtendGraceRequest{})
	require.NoError(t, err)
	assert.Equal(t, f.cfg.Subscription.GraceDays, status.DaysUntilExpiry)
	require.NoError(t, f.svc.CheckWritable(ctx, owner))

	payments, err := f.svc.PaymentHistory(ctx, owner)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, PaymentGrace, payments[0].Status)
	assert.True(t, payments[0].Amount.IsZero())
	assert.NotEmpty(t, f.published("plan.changed"))

	_, err = f.svc.ExtendGrace(ctx, admin, owner.TenantID, ExtendGraceRequest{Days: -3})
	assertKind(t, err, apperr.KindValidation)
}

func TestChangeTenantPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "alpha")

	status, err := f.svc.ChangeTenantPlan(ctx, admin, owner.TenantID, ChangePlanRequest{Plan: "Enterprise", Days: 90})
	require.NoError(t, err)
	assert.Equal(t, "Enterprise", status.SubscriptionPlan)
	assert.Equal(t, 90, status.DaysUntilExpiry)
	assert.False(t, status.IsTrial)
	assert.Equal(t, 10, status.PlanLimits.Locations)

	payments, err := f.svc.PaymentHistory(ctx, owner)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, PaymentManual, payments[0].Status)

	status, err = f.svc.ChangeTenantPlan(ctx, admin, owner.TenantID, ChangePlanRequest{Plan: "Trial"})
	require.NoError(t, err)
	assert.True(t, status.IsTrial)
	assert.Equal(t, 14, status.DaysUntilExpiry)

	_, err = f.svc.ChangeTenantPlan(ctx, admin, owner.TenantID, ChangePlanRequest{Plan: "Nope"})
	assertKind(t, err, apperr.KindNotFound)
}

func TestResetTenantPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "alpha")

	reset, err := f.svc.ResetTenantPassword(ctx, admin, owner.TenantID, "")
	require.NoError(t, err)
	assert.Equal(t, "alpha@fixgsm.test", reset.Email)
	assert.Len(t, reset.NewPassword, 10)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "alpha@fixgsm.test", Password: "secret123"}, "")
	assertKind(t, err, apperr.KindUnauthorized)
	_, err = f.svc.Login(ctx, LoginRequest{Email: "alpha@fixgsm.test", Password: reset.NewPassword}, "")
	require.NoError(t, err)

	reset, err = f.svc.ResetTenantPassword(ctx, admin, owner.TenantID, "chosen-password")
	require.NoError(t, err)
	assert.Equal(t, "chosen-password", reset.NewPassword)
}

func TestAdminEmployeeManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "alpha")
	emp, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Ana", Email: "ana@fixgsm.test", Password: "secret123", Role: models.RoleReceptie,
	})
	require.NoError(t, err)

	list, err := f.svc.ListTenantEmployees(ctx, owner.TenantID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	assertKind(t, f.svc.DeleteTenantEmployee(ctx, admin, owner.TenantID, owner.UserID), apperr.KindForbidden)
	require.NoError(t, f.svc.DeleteTenantEmployee(ctx, admin, owner.TenantID, emp.ID))

	_, err = f.svc.ListTenantEmployees(ctx, uuid.New())
	assertKind(t, err, apperr.KindNotFound)
}

func TestAIStatisticsAndTenantSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	alpha := f.register(t, "alpha")
	f.register(t, "beta")
	f.setPlan(t, alpha.TenantID, "Pro")

	stats, err := f.svc.GetAIStatistics(ctx)
	require.NoError(t, err)
	assert.True(t, stats.GloballyEnabled)
	assert.Equal(t, 1, stats.TenantsEntitled)
	assert.Equal(t, 2, stats.TenantsEnabled)

	tenant, err := f.svc.SetTenantAI(ctx, admin, alpha.TenantID, false)
	require.NoError(t, err)
	assert.False(t, tenant.AIEnabled)
	_, err = f.svc.Chat(ctx, alpha, ChatRequest{Message: "Salut"})
	assertKind(t, err, apperr.KindAIDisabled)

	stats, err = f.svc.GetAIStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TenantsEnabled)
}

func TestPlanCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "alpha")

	req := PlanRequest{
		Name:         "Starter",
		Price:        decimal.RequireFromString("49.99"),
		DurationDays: 30,
		Limits:       models.PlanLimits{Locations: 1, Employees: 1},
	}
	plan, err := f.svc.CreatePlan(ctx, admin, req)
	require.NoError(t, err)
	assert.True(t, plan.IsActive)

	_, err = f.svc.CreatePlan(ctx, admin, req)
	assertKind(t, err, apperr.KindConflict)

	bad := req
	bad.Name = "Zero"
	bad.Limits.Locations = 0
	_, err = f.svc.CreatePlan(ctx, admin, bad)
	assertKind(t, err, apperr.KindValidation)

	_, err = f.svc.ProcessPayment(ctx, owner, ProcessPaymentRequest{Plan: "Starter"})
	require.NoError(t, err)

	req.Name = "Starter Plus"
	_, err = f.svc.UpdatePlan(ctx, admin, plan.ID, req)
	require.NoError(t, err)
	tenant, err := f.store.GetTenant(ctx, owner.TenantID)
	require.NoError(t, err)
	assert.Equal(t, "Starter Plus", tenant.SubscriptionPlan)

	assertKind(t, f.svc.DeletePlan(ctx, admin, plan.ID), apperr.KindConflict)

	_, err = f.svc.ChangeTenantPlan(ctx, admin, owner.TenantID, ChangePlanRequest{Plan: "Basic"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeletePlan(ctx, admin, plan.ID))

	all, err := f.svc.ListAllPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(DefaultPlans()))
}

func TestAnnouncements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	past := time.Now().Add(-time.Hour)
	active, err := f.svc.CreateAnnouncement(ctx, admin, AnnouncementRequest{Title: "Noutăți", Message: "Versiune nouă"})
	require.NoError(t, err)
	assert.Equal(t, models.AnnouncementInfo, active.Type)
	assert.True(t, active.IsActive)

	_, err = f.svc.CreateAnnouncement(ctx, admin, AnnouncementRequest{Title: "Vechi", Message: "Expirat", ExpiresAt: &past})
	require.NoError(t, err)
	_, err = f.svc.CreateAnnouncement(ctx, admin, AnnouncementRequest{Title: "Greșit", Message: "x", Type: "party"})
	assertKind(t, err, apperr.KindValidation)

	visible, err := f.svc.ActiveAnnouncements(ctx)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, active.ID, visible[0].ID)

	off := false
	_, err = f.svc.UpdateAnnouncement(ctx, admin, active.ID, AnnouncementRequest{
		Title: "Noutăți", Message: "Versiune nouă", Type: models.AnnouncementWarning, IsActive: &off,
	})
	require.NoError(t, err)
	visible, err = f.svc.ActiveAnnouncements(ctx)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := f.svc.ListAnnouncements(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, f.svc.DeleteAnnouncement(ctx, admin, active.ID))
	assertKind(t, f.svc.DeleteAnnouncement(ctx, admin, active.ID), apperr.KindNotFound)
}

func TestMaintenanceMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	require.NoError(t, f.svc.CheckMaintenance(ctx))

	on := true
	msg := "Actualizare bază de date"
	settings, err := f.svc.UpdatePlatformSettings(ctx, admin, UpdatePlatformSettingsRequest{
		MaintenanceMode: &on, MaintenanceMessage: &msg,
	})
	require.NoError(t, err)
	assert.True(t, settings.MaintenanceMode)
	assert.True(t, settings.AIGloballyEnabled)

	err = f.svc.CheckMaintenance(ctx)
	assertKind(t, err, apperr.KindMaintenance)
	assert.Contains(t, detail(err), msg)

	status, err := f.svc.GetMaintenanceStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg, status.Message)

	zero := 0
	_, err = f.svc.UpdatePlatformSettings(ctx, admin, UpdatePlatformSettingsRequest{DefaultTrialDays: &zero})
	assertKind(t, err, apperr.KindValidation)
}

func TestLogsAndActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, level := range []models.LogLevel{models.LogLevelInfo, models.LogLevelWarning, models.LogLevelError} {
		require.NoError(t, f.store.CreateLogEntry(ctx, &models.LogEntry{
			Type:     models.LogTypeActivity,
			Level:    level,
			Category: "tickets",
			Message:  "intrare",
			Details:  models.Variables{"n": i},
		}))
	}
	require.NoError(t, f.store.CreateLogEntry(ctx, &models.LogEntry{
		Type: models.LogTypeSystem, Level: models.LogLevelCritical, Category: "backup", Message: "restore",
	}))

	recent, err := f.svc.RecentActivity(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	page, err := f.svc.ListLogs(ctx, models.LogFilter{Level: models.LogLevelCritical}, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 50, page.Limit)
	assert.Equal(t, 0, page.Offset)

	stats, err := f.svc.LogStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
}

func TestBackupLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	alpha := f.register(t, "alpha")
	ticket := f.ticket(t, alpha)

	b, err := f.svc.CreateBackup(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, "admin@fixgsm.test", b.CreatedBy)
	assert.NotEmpty(t, b.Checksum)
	assert.Len(t, f.published("backup.created"), 1)

	list, err := f.svc.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	rc, meta, err := f.svc.OpenBackup(ctx, b.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, b.Filename, meta.Filename)

	f.register(t, "beta")
	require.NoError(t, f.svc.DeleteTicket(ctx, alpha, ticket.ID))

	_, err = f.svc.RestoreBackup(ctx, admin, b.ID, RestoreBackupRequest{Confirm: "restore"})
	assertKind(t, err, apperr.KindValidation)
	_, err = f.svc.RestoreBackup(ctx, admin, uuid.New(), RestoreBackupRequest{Confirm: RestoreConfirmation})
	assertKind(t, err, apperr.KindNotFound)

	_, err = f.svc.RestoreBackup(ctx, admin, b.ID, RestoreBackupRequest{Confirm: RestoreConfirmation})
	require.NoError(t, err)

	_, err = f.store.GetUserByEmail(ctx, "beta@fixgsm.test")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	restored, err := f.svc.GetTicket(ctx, alpha, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.DeviceModel, restored.DeviceModel)
	require.NoError(t, f.svc.AuthorizeAdmin(ctx, admin))

	phases := f.published("backup.restored")
	require.Len(t, phases, 2)
	for _, e := range phases {
		assert.Equal(t, models.LogLevelCritical, e.Level)
	}
	assert.Equal(t, "start", phases[0].Data["phase"])
	assert.Equal(t, "done", phases[1].Data["phase"])

	require.NoError(t, f.svc.DeleteBackup(ctx, admin, b.ID))
	assertKind(t, f.svc.DeleteBackup(ctx, admin, b.ID), apperr.KindNotFound)
}

func TestBackupsUnavailableWithoutManager(t *testing.T) {
	cfg := config.Default()
	cfg.JWT.Secret = "service-test-secret-0123456789"
	svc := New(Options{Store: newTestStore(t), Config: cfg, JWT: auth.NewJWTManager(&cfg.JWT)})

	_, err := svc.ListBackups(context.Background())
	assertKind(t, err, apperr.KindUnavailable)
}
