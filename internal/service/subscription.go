package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

// Payment statuses
const (
	PaymentCompleted = "completed"
	PaymentGrace     = "grace"
	PaymentManual    = "manual"
)

// SubscriptionStatus is the billing view of a tenant
type SubscriptionStatus struct {
	SubscriptionPlan    string                    `json:"subscription_plan"`
	SubscriptionStatus  models.SubscriptionStatus `json:"subscription_status"`
	SubscriptionPrice   decimal.Decimal           `json:"subscription_price"`
	SubscriptionEndDate time.Time                 `json:"subscription_end_date"`
	DaysUntilExpiry     int                       `json:"days_until_expiry"`
	IsExpired           bool                      `json:"is_expired"`
	IsTrial             bool                      `json:"is_trial"`
	PlanLimits          models.PlanLimits         `json:"plan_limits"`
}

// DaysUntil returns ceil((end - now) / 24h)
func DaysUntil(end, now time.Time) int {
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

// EffectiveStatus reports expired for an active subscription whose end
// date has passed
func EffectiveStatus(t *models.Tenant, now time.Time) models.SubscriptionStatus {
	if t.SubscriptionStatus == models.SubscriptionActive && !t.SubscriptionEndDate.After(now) {
		return models.SubscriptionExpired
	}
	return t.SubscriptionStatus
}

// DefaultPlans is the catalog seeded on first start
func DefaultPlans() []*models.SubscriptionPlan {
	return []*models.SubscriptionPlan{
		{
			Name:         "Trial",
			Description:  "Perioadă de probă gratuită",
			Price:        decimal.Zero,
			DurationDays: 14,
			Limits:       models.PlanLimits{Locations: 1, Employees: 2, HasAI: false},
			IsActive:     true,
		},
		{
			Name:         "Basic",
			Description:  "Pentru un service cu o singură locație",
			Price:        decimal.NewFromInt(99),
			DurationDays: 30,
			Limits:       models.PlanLimits{Locations: 1, Employees: 3, HasAI: false},
			IsActive:     true,
		},
		{
			Name:         "Pro",
			Description:  "Mai multe locații și asistent AI",
			Price:        decimal.NewFromInt(199),
			DurationDays: 30,
			Limits:       models.PlanLimits{Locations: 3, Employees: 10, HasAI: true},
			IsActive:     true,
		},
		{
			Name:         "Enterprise",
			Description:  "Rețele de service-uri",
			Price:        decimal.NewFromInt(399),
			DurationDays: 30,
			Limits:       models.PlanLimits{Locations: 10, Employees: 50, HasAI: true},
			IsActive:     true,
		},
	}
}

// planFor resolves the plan a tenant is on. Plans missing from the catalog
// fall back to the seeded defaults, then to the most restrictive limits.
func planFor(ctx context.Context, store storage.Store, name string) (*models.SubscriptionPlan, error) {
	plan, err := store.GetPlanByName(ctx, name)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, storeErr(err, "Planul")
	}
	for _, p := range DefaultPlans() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return &models.SubscriptionPlan{Name: name, Limits: models.PlanLimits{Locations: 1, Employees: 1}}, nil
}

func (s *Service) tenant(ctx context.Context, store storage.Store, id uuid.UUID) (*models.Tenant, error) {
	t, err := store.GetTenant(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Service-ul")
	}
	return t, nil
}

// lockTenant loads the tenant inside tx and holds its row lock until tx
// ends, so concurrent limit checks of one tenant run one after another
func (s *Service) lockTenant(ctx context.Context, tx storage.Store, id uuid.UUID) (*models.Tenant, error) {
	t, err := tx.GetTenantForUpdate(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Service-ul")
	}
	return t, nil
}

// GetSubscriptionStatus returns plan, dates and limits of the tenant
func (s *Service) GetSubscriptionStatus(ctx context.Context, actor Actor) (*SubscriptionStatus, error) {
	t, err := s.tenant(ctx, s.store, actor.TenantID)
	if err != nil {
		return nil, err
	}
	plan, err := planFor(ctx, s.store, t.SubscriptionPlan)
	if err != nil {
		return nil, err
	}
	return s.subscriptionStatus(t, plan), nil
}

func (s *Service) subscriptionStatus(t *models.Tenant, plan *models.SubscriptionPlan) *SubscriptionStatus {
	now := s.now()
	return &SubscriptionStatus{
		SubscriptionPlan:    t.SubscriptionPlan,
		SubscriptionStatus:  EffectiveStatus(t, now),
		SubscriptionPrice:   t.SubscriptionPrice,
		SubscriptionEndDate: t.SubscriptionEndDate,
		DaysUntilExpiry:     DaysUntil(t.SubscriptionEndDate, now),
		IsExpired:           !t.SubscriptionEndDate.After(now),
		IsTrial:             t.IsTrial,
		PlanLimits:          plan.Limits,
	}
}

// CheckWritable refuses mutations by suspended or expired tenants
func (s *Service) CheckWritable(ctx context.Context, actor Actor) error {
	t, err := s.tenant(ctx, s.store, actor.TenantID)
	if err != nil {
		return err
	}
	switch EffectiveStatus(t, s.now()) {
	case models.SubscriptionSuspended:
		s.metrics.GateRejectionsTotal.WithLabelValues("suspended").Inc()
		return apperr.SubscriptionSuspended()
	case models.SubscriptionExpired:
		s.metrics.GateRejectionsTotal.WithLabelValues("expired").Inc()
		return apperr.SubscriptionExpired()
	}
	return nil
}

// checkLimit fails once count has reached the plan cap for resource
func (s *Service) checkLimit(t *models.Tenant, limit, count int, resource string) error {
	if count >= limit {
		s.metrics.LimitRejectionsTotal.WithLabelValues(resource, t.SubscriptionPlan).Inc()
		return apperr.LimitExceeded(limit, resource, t.SubscriptionPlan)
	}
	return nil
}

// ListSubscriptionPlans returns the plans a tenant can buy
func (s *Service) ListSubscriptionPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, storeErr(err, "Planul")
	}
	active := make([]*models.SubscriptionPlan, 0, len(plans))
	for _, p := range plans {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active, nil
}

// PaymentHistory returns the tenant's payments, newest first
func (s *Service) PaymentHistory(ctx context.Context, actor Actor) ([]*models.Payment, error) {
	payments, err := s.store.ListPayments(ctx, actor.TenantID)
	if err != nil {
		return nil, storeErr(err, "Plata")
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return payments, nil
}

// ProcessPaymentRequest buys a plan
type ProcessPaymentRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// ProcessPayment records a completed payment and moves the tenant onto
// the plan. Days left on the current period are kept.
func (s *Service) ProcessPayment(ctx context.Context, actor Actor, req ProcessPaymentRequest) (*SubscriptionStatus, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	var tenant *models.Tenant
	var plan *models.SubscriptionPlan
	err := s.inTx(ctx, func(tx storage.Store) error {
		var err error
		plan, err = s.findPlan(ctx, tx, req.Plan)
		if err != nil {
			return err
		}
		if !plan.IsActive {
			return apperr.Validation("Planul %s nu mai este disponibil", plan.Name)
		}
		if plan.Price.IsZero() {
			return apperr.Validation("Planul %s nu poate fi cumpărat", plan.Name)
		}

		if tenant, err = s.tenant(ctx, tx, actor.TenantID); err != nil {
			return err
		}
		if tenant.SubscriptionStatus == models.SubscriptionSuspended {
			return apperr.SubscriptionSuspended()
		}

		payment := &models.Payment{
			TenantID: tenant.ID,
			Plan:     plan.Name,
			Amount:   plan.Price,
			Status:   PaymentCompleted,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return storeErr(err, "Plata")
		}

		tenant.SubscriptionPlan = plan.Name
		tenant.SubscriptionPrice = plan.Price
		tenant.SubscriptionStatus = models.SubscriptionActive
		tenant.SubscriptionEndDate = extend(tenant.SubscriptionEndDate, s.now(), plan.DurationDays)
		tenant.IsTrial = false
		return storeErr(tx.UpdateTenant(ctx, tenant), "Service-ul")
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.PaymentRecorded,
		Category: "billing",
		Message:  fmt.Sprintf("Plată %s RON pentru planul %s", plan.Price.StringFixed(2), plan.Name),
		Data:     models.Variables{"plan": plan.Name, "amount": plan.Price.String()},
	})
	return s.subscriptionStatus(tenant, plan), nil
}

// findPlan resolves a plan by id or by name
func (s *Service) findPlan(ctx context.Context, store storage.Store, ref string) (*models.SubscriptionPlan, error) {
	ref = strings.TrimSpace(ref)
	var plan *models.SubscriptionPlan
	var err error
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		plan, err = store.GetPlan(ctx, id)
	} else {
		plan, err = store.GetPlanByName(ctx, ref)
	}
	if err != nil {
		return nil, storeErr(err, "Planul")
	}
	return plan, nil
}

// extend adds days to the later of end and now
func extend(end, now time.Time, days int) time.Time {
	if end.Before(now) {
		end = now
	}
	return end.AddDate(0, 0, days)
}

// TenantInfo is the account summary shown in the tenant settings
type TenantInfo struct {
	*models.Tenant
	Subscription   *SubscriptionStatus `json:"subscription"`
	LocationsCount int                 `json:"locations_count"`
	EmployeesCount int                 `json:"employees_count"`
	TicketsCount   int64               `json:"tickets_count"`
}

// GetTenantInfo returns the tenant with its usage counters
func (s *Service) GetTenantInfo(ctx context.Context, actor Actor) (*TenantInfo, error) {
	t, err := s.tenant(ctx, s.store, actor.TenantID)
	if err != nil {
		return nil, err
	}
	return s.tenantInfo(ctx, t)
}

func (s *Service) tenantInfo(ctx context.Context, t *models.Tenant) (*TenantInfo, error) {
	plan, err := planFor(ctx, s.store, t.SubscriptionPlan)
	if err != nil {
		return nil, err
	}
	locations, err := s.store.CountLocations(ctx, t.ID)
	if err != nil {
		return nil, storeErr(err, "Locația")
	}
	employees, err := s.countEmployees(ctx, s.store, t.ID)
	if err != nil {
		return nil, err
	}
	tenantID := t.ID
	tickets, err := s.store.CountTickets(ctx, storage.TicketCountFilter{TenantID: &tenantID})
	if err != nil {
		return nil, storeErr(err, "Fișa")
	}
	return &TenantInfo{
		Tenant:         t,
		Subscription:   s.subscriptionStatus(t, plan),
		LocationsCount: locations,
		EmployeesCount: employees,
		TicketsCount:   tickets,
	}, nil
}

// UpdateTenantInfoRequest edits the shop profile
type UpdateTenantInfoRequest struct {
	ServiceName *string `json:"service_name" validate:"min=2,max=100"`
	OwnerName   *string `json:"owner_name" validate:"min=2,max=100"`
	Phone       *string `json:"phone" validate:"max=30"`
}

// UpdateTenantInfo changes the shop profile
func (s *Service) UpdateTenantInfo(ctx context.Context, actor Actor, req UpdateTenantInfoRequest) (*TenantInfo, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	t, err := s.tenant(ctx, s.store, actor.TenantID)
	if err != nil {
		return nil, err
	}
	if req.ServiceName != nil {
		t.ServiceName = strings.TrimSpace(*req.ServiceName)
	}
	if req.OwnerName != nil {
		t.OwnerName = strings.TrimSpace(*req.OwnerName)
	}
	if req.Phone != nil {
		t.Phone = strings.TrimSpace(*req.Phone)
	}
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, storeErr(err, "Service-ul")
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.TenantUpdated,
		Category: "tenant",
		Message:  "Profil service actualizat",
	})
	return s.tenantInfo(ctx, t)
}
