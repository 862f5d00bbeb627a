package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{"exact days", now.Add(72 * time.Hour), 3},
		{"partial day rounds up", now.Add(25 * time.Hour), 2},
		{"same instant", now, 0},
		{"yesterday", now.Add(-24 * time.Hour), -1},
		{"few hours ago", now.Add(-3 * time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(tt.end, now))
		})
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status models.SubscriptionStatus
		end    time.Time
		want   models.SubscriptionStatus
	}{
		{"active", models.SubscriptionActive, now.Add(time.Hour), models.SubscriptionActive},
		{"active past end", models.SubscriptionActive, now.Add(-time.Hour), models.SubscriptionExpired},
		{"suspended past end", models.SubscriptionSuspended, now.Add(-time.Hour), models.SubscriptionSuspended},
		{"pending", models.SubscriptionPending, now.Add(-time.Hour), models.SubscriptionPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant := &models.Tenant{SubscriptionStatus: tt.status, SubscriptionEndDate: tt.end}
			assert.Equal(t, tt.want, EffectiveStatus(tenant, now))
		})
	}
}

func TestSubscriptionExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	status, err := f.svc.GetSubscriptionStatus(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, status.SubscriptionStatus)
	assert.Equal(t, 14, status.DaysUntilExpiry)
	require.NoError(t, f.svc.CheckWritable(ctx, owner))

	f.updateTenant(t, owner.TenantID, func(tenant *models.Tenant) {
		tenant.SubscriptionEndDate = time.Now().Add(-24 * time.Hour)
	})
	status, err = f.svc.GetSubscriptionStatus(ctx, owner)
	require.NoError(t, err)
	assert.LessOrEqual(t, status.DaysUntilExpiry, 0)
	assert.True(t, status.IsExpired)
	assert.Equal(t, models.SubscriptionExpired, status.SubscriptionStatus)

	err = f.svc.CheckWritable(ctx, owner)
	assertKind(t, err, apperr.KindSubscriptionExpired)
	assert.Contains(t, detail(err), "expirat")

	stored, err := f.store.GetTenant(ctx, owner.TenantID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, stored.SubscriptionStatus)
}

func TestCheckWritableSuspended(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	f.updateTenant(t, owner.TenantID, func(tenant *models.Tenant) {
		tenant.SubscriptionStatus = models.SubscriptionSuspended
	})
	err := f.svc.CheckWritable(ctx, owner)
	assertKind(t, err, apperr.KindSubscriptionSuspended)
	assert.Contains(t, detail(err), "suspendat")

	_, err = f.svc.ProcessPayment(ctx, owner, ProcessPaymentRequest{Plan: "Pro"})
	assertKind(t, err, apperr.KindSubscriptionSuspended)
}

func TestProcessPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	status, err := f.svc.ProcessPayment(ctx, owner, ProcessPaymentRequest{Plan: "Pro"})
	require.NoError(t, err)
	assert.Equal(t, "Pro", status.SubscriptionPlan)
	assert.Equal(t, 44, status.DaysUntilExpiry)
	assert.False(t, status.IsTrial)
	assert.True(t, status.PlanLimits.HasAI)
	assert.True(t, decimal.NewFromInt(199).Equal(status.SubscriptionPrice))

	payments, err := f.svc.PaymentHistory(ctx, owner)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "Pro", payments[0].Plan)
	assert.Equal(t, PaymentCompleted, payments[0].Status)
	assert.Len(t, f.published("payment.recorded"), 1)

	_, err = f.svc.ProcessPayment(ctx, owner, ProcessPaymentRequest{Plan: "Trial"})
	assertKind(t, err, apperr.KindValidation)
	_, err = f.svc.ProcessPayment(ctx, owner, ProcessPaymentRequest{Plan: "Platinum"})
	assertKind(t, err, apperr.KindNotFound)
}

func TestProcessPaymentAfterExpiryStartsFromNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	f.updateTenant(t, owner.TenantID, func(tenant *models.Tenant) {
		tenant.SubscriptionEndDate = time.Now().Add(-10 * 24 * time.Hour)
	})

	status, err := f.svc.ProcessPayment(ctx, owner, ProcessPaymentRequest{Plan: "Basic"})
	require.NoError(t, err)
	assert.Equal(t, 30, status.DaysUntilExpiry)
	assert.Equal(t, models.SubscriptionActive, status.SubscriptionStatus)
	require.NoError(t, f.svc.CheckWritable(ctx, owner))
}

func TestProcessPaymentOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	emp, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Manager", Email: "mgr@fixgsm.test", Password: "secret123", Role: models.RoleManager,
	})
	require.NoError(t, err)

	_, err = f.svc.ProcessPayment(ctx, employeeActor(owner, emp), ProcessPaymentRequest{Plan: "Pro"})
	assertKind(t, err, apperr.KindForbidden)
}

func TestTenantInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	f.ticket(t, owner)

	info, err := f.svc.GetTenantInfo(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Service alpha", info.ServiceName)
	assert.Equal(t, 1, info.LocationsCount)
	assert.Equal(t, 0, info.EmployeesCount)
	assert.Equal(t, int64(1), info.TicketsCount)
	assert.Equal(t, "Trial", info.Subscription.SubscriptionPlan)

	info, err = f.svc.UpdateTenantInfo(ctx, owner, UpdateTenantInfoRequest{ServiceName: strPtr("GSM Expert")})
	require.NoError(t, err)
	assert.Equal(t, "GSM Expert", info.ServiceName)

	_, err = f.svc.UpdateTenantInfo(ctx, owner, UpdateTenantInfoRequest{ServiceName: strPtr("X")})
	assertKind(t, err, apperr.KindValidation)
}

func TestListSubscriptionPlansHidesInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	plans, err := f.svc.ListSubscriptionPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, len(DefaultPlans()))

	basic, err := f.store.GetPlanByName(ctx, "Basic")
	require.NoError(t, err)
	inactive := false
	_, err = f.svc.UpdatePlan(ctx, admin, basic.ID, PlanRequest{
		Name: basic.Name, Price: basic.Price, DurationDays: basic.DurationDays,
		Limits: basic.Limits, IsActive: &inactive,
	})
	require.NoError(t, err)

	plans, err = f.svc.ListSubscriptionPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, len(DefaultPlans())-1)
	for _, p := range plans {
		assert.NotEqual(t, "Basic", p.Name)
	}
}
