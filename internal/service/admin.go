package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
	"github.com/fixgsm/fixgsm-server/pkg/crypto"
)

// AuthorizeAdmin re-checks on every call that the admin behind a token
// still exists
func (s *Service) AuthorizeAdmin(ctx context.Context, actor Actor) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden("Acces permis doar administratorilor platformei")
	}
	if _, err := s.store.GetAdmin(ctx, actor.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.Unauthorized("Sesiunea de administrator nu mai este validă")
		}
		return storeErr(err, "Administratorul")
	}
	return nil
}

// TenantPage is one page of the tenant list
type TenantPage struct {
	Tenants []*TenantInfo `json:"tenants"`
	Total   int64         `json:"total"`
}

// ListTenants returns every tenant with its usage counters
func (s *Service) ListTenants(ctx context.Context, limit, offset int) (*TenantPage, error) {
	tenants, total, err := s.store.ListTenants(ctx, limit, offset)
	if err != nil {
		return nil, storeErr(err, "Service-ul")
	}
	page := &TenantPage{Tenants: make([]*TenantInfo, 0, len(tenants)), Total: total}
	for _, t := range tenants {
		info, err := s.tenantInfo(ctx, t)
		if err != nil {
			return nil, err
		}
		page.Tenants = append(page.Tenants, info)
	}
	return page, nil
}

// TenantDetail is the admin view of one tenant
type TenantDetail struct {
	*TenantInfo
	Locations []*models.Location `json:"locations"`
	Employees []*models.User     `json:"employees"`
	Payments  []*models.Payment  `json:"payments"`
}

// GetTenantDetail returns a tenant with its locations, team and payments
func (s *Service) GetTenantDetail(ctx context.Context, id uuid.UUID) (*TenantDetail, error) {
	t, err := s.tenant(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	info, err := s.tenantInfo(ctx, t)
	if err != nil {
		return nil, err
	}
	detail := &TenantDetail{TenantInfo: info}
	if detail.Locations, err = s.ListLocations(ctx, Actor{TenantID: id}); err != nil {
		return nil, err
	}
	if detail.Employees, err = s.employees(ctx, s.store, id); err != nil {
		return nil, err
	}
	if detail.Payments, err = s.PaymentHistory(ctx, Actor{TenantID: id}); err != nil {
		return nil, err
	}
	return detail, nil
}

// PlatformStatistics summarizes the whole platform
type PlatformStatistics struct {
	TotalTenants     int             `json:"total_tenants"`
	ActiveTenants    int             `json:"active_tenants"`
	TrialTenants     int             `json:"trial_tenants"`
	SuspendedTenants int             `json:"suspended_tenants"`
	ExpiredTenants   int             `json:"expired_tenants"`
	TenantsByPlan    map[string]int  `json:"tenants_by_plan"`
	TotalUsers       int             `json:"total_users"`
	TotalTickets     int64           `json:"total_tickets"`
	TicketsLast30d   int64           `json:"tickets_last_30_days"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	MonthlyRecurring decimal.Decimal `json:"monthly_recurring_revenue"`
	Conversations    int64           `json:"ai_conversations"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// GetPlatformStatistics aggregates tenant, ticket and revenue counters
func (s *Service) GetPlatformStatistics(ctx context.Context) (*PlatformStatistics, error) {
	now := s.now()
	tenants, _, err := s.store.ListTenants(ctx, 0, 0)
	if err != nil {
		return nil, storeErr(err, "Service-ul")
	}

	stats := &PlatformStatistics{
		TotalTenants:     len(tenants),
		TenantsByPlan:    make(map[string]int),
		TotalRevenue:     decimal.Zero,
		MonthlyRecurring: decimal.Zero,
		GeneratedAt:      now,
	}
	for _, t := range tenants {
		stats.TenantsByPlan[t.SubscriptionPlan]++
		if t.IsTrial {
			stats.TrialTenants++
		}
		switch EffectiveStatus(t, now) {
		case models.SubscriptionActive:
			stats.ActiveTenants++
			if !t.IsTrial {
				stats.MonthlyRecurring = stats.MonthlyRecurring.Add(t.SubscriptionPrice)
			}
		case models.SubscriptionSuspended:
			stats.SuspendedTenants++
		case models.SubscriptionExpired:
			stats.ExpiredTenants++
		}

		users, err := s.store.CountUsers(ctx, t.ID)
		if err != nil {
			return nil, storeErr(err, "Utilizatorul")
		}
		stats.TotalUsers += users

		payments, err := s.store.ListPayments(ctx, t.ID)
		if err != nil {
			return nil, storeErr(err, "Plata")
		}
		for _, p := range payments {
			if p.Status != PaymentGrace {
				stats.TotalRevenue = stats.TotalRevenue.Add(p.Amount)
			}
		}
	}

	if stats.TotalTickets, err = s.store.CountTickets(ctx, storage.TicketCountFilter{}); err != nil {
		return nil, storeErr(err, "Fișa")
	}
	since := now.AddDate(0, 0, -30)
	if stats.TicketsLast30d, err = s.store.CountTickets(ctx, storage.TicketCountFilter{Since: &since}); err != nil {
		return nil, storeErr(err, "Fișa")
	}
	if stats.Conversations, err = s.store.CountConversations(ctx); err != nil {
		return nil, storeErr(err, "Conversația")
	}
	return stats, nil
}

// RecentActivity returns the latest activity log entries
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]*models.LogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	entries, _, err := s.store.ListLogEntries(ctx, models.LogFilter{Type: models.LogTypeActivity}, limit, 0)
	if err != nil {
		return nil, storeErr(err, "Jurnalul")
	}
	if entries == nil {
		entries = []*models.LogEntry{}
	}
	return entries, nil
}

// ServerInfo describes the running process
type ServerInfo struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	GoVersion     string    `json:"go_version"`
	OS            string    `json:"os"`
	Arch          string    `json:"arch"`
	CPUs          int       `json:"cpus"`
	Goroutines    int       `json:"goroutines"`
	MemoryAllocMB float64   `json:"memory_alloc_mb"`
	MemorySysMB   float64   `json:"memory_sys_mb"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	StorageDriver string    `json:"storage_driver"`
	EventBus      string    `json:"event_bus"`
	WorkflowMode  string    `json:"workflow_mode"`
	AIConfigured  bool      `json:"ai_configured"`
}

// GetServerInfo reports runtime figures of the process
func (s *Service) GetServerInfo() *ServerInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	bus := "local"
	if _, ok := s.bus.(*events.NATSBus); ok {
		bus = "nats"
	}
	return &ServerInfo{
		Name:          s.cfg.Server.Name,
		Version:       s.cfg.Server.Version,
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		CPUs:          runtime.NumCPU(),
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(mem.Alloc) / (1 << 20),
		MemorySysMB:   float64(mem.Sys) / (1 << 20),
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(s.now().Sub(s.startedAt).Seconds()),
		StorageDriver: s.cfg.Storage.Driver,
		EventBus:      bus,
		WorkflowMode:  s.cfg.Workflow.Mode,
		AIConfigured:  s.cfg.AI.BaseURL != "",
	}
}

// LogPage is one page of log entries
type LogPage struct {
	Logs   []*models.LogEntry `json:"logs"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// ListLogs filters and pages the platform log
func (s *Service) ListLogs(ctx context.Context, filter models.LogFilter, limit, offset int) (*LogPage, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	entries, total, err := s.store.ListLogEntries(ctx, filter, limit, offset)
	if err != nil {
		return nil, storeErr(err, "Jurnalul")
	}
	if entries == nil {
		entries = []*models.LogEntry{}
	}
	return &LogPage{Logs: entries, Total: total, Limit: limit, Offset: offset}, nil
}

// LogStats returns log counters with a 24h window
func (s *Service) LogStats(ctx context.Context) (*models.LogStats, error) {
	stats, err := s.store.GetLogStats(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		return nil, storeErr(err, "Jurnalul")
	}
	return stats, nil
}

// owner returns the owner account of a tenant
func (s *Service) owner(ctx context.Context, store storage.Store, tenantID uuid.UUID) (*models.User, error) {
	users, err := store.ListUsers(ctx, tenantID)
	if err != nil {
		return nil, storeErr(err, "Utilizatorul")
	}
	for _, u := range users {
		if u.IsOwner {
			return u, nil
		}
	}
	return nil, apperr.NotFound("Proprietarul")
}

// PasswordReset is returned once to the admin who reset a password
type PasswordReset struct {
	Email       string `json:"email"`
	NewPassword string `json:"new_password"`
}

// ResetTenantPassword sets a new owner password. An empty password is
// replaced by a random one.
func (s *Service) ResetTenantPassword(ctx context.Context, actor Actor, tenantID uuid.UUID, password string) (*PasswordReset, error) {
	owner, err := s.owner(ctx, s.store, tenantID)
	if err != nil {
		return nil, err
	}
	if password == "" {
		if password, err = crypto.RandomHex(5); err != nil {
			return nil, apperr.Internal(err)
		}
	}
	if owner.PasswordHash, err = crypto.HashPassword(password); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err := s.store.UpdateUser(ctx, owner); err != nil {
		return nil, storeErr(err, "Utilizatorul")
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.TenantUpdated,
		LogType:  models.LogTypeSystem,
		Level:    models.LogLevelWarning,
		Category: "admin",
		Message:  "Parolă resetată pentru " + owner.Email,
		TenantID: &tenantID,
	})
	return &PasswordReset{Email: owner.Email, NewPassword: password}, nil
}

// ToggleTenantStatus suspends an active tenant or reactivates a
// suspended or pending one
func (s *Service) ToggleTenantStatus(ctx context.Context, actor Actor, tenantID uuid.UUID) (*models.Tenant, error) {
	t, err := s.tenant(ctx, s.store, tenantID)
	if err != nil {
		return nil, err
	}
	if t.SubscriptionStatus == models.SubscriptionActive {
		t.SubscriptionStatus = models.SubscriptionSuspended
	} else {
		t.SubscriptionStatus = models.SubscriptionActive
	}
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, storeErr(err, "Service-ul")
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.TenantUpdated,
		LogType:  models.LogTypeSystem,
		Level:    models.LogLevelWarning,
		Category: "admin",
		Message:  fmt.Sprintf("Status service %s: %s", t.ServiceName, t.SubscriptionStatus),
		TenantID: &tenantID,
		Data:     models.Variables{"subscription_status": string(t.SubscriptionStatus)},
	})
	return t, nil
}

// ExtendGraceRequest adds free days to a subscription
type ExtendGraceRequest struct {
	Days int `json:"days" validate:"gte=1"`
}

// ExtendGrace pushes the end date by req.Days and records a zero payment
func (s *Service) ExtendGrace(ctx context.Context, actor Actor, tenantID uuid.UUID, req ExtendGraceRequest) (*SubscriptionStatus, error) {
	if req.Days == 0 {
		req.Days = s.cfg.Subscription.GraceDays
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	return s.adminBilling(ctx, actor, tenantID, "", func(t *models.Tenant, _ *models.SubscriptionPlan) *models.Payment {
		t.SubscriptionEndDate = extend(t.SubscriptionEndDate, s.now(), req.Days)
		if t.SubscriptionStatus != models.SubscriptionSuspended {
			t.SubscriptionStatus = models.SubscriptionActive
		}
		return &models.Payment{
			Plan:   t.SubscriptionPlan,
			Amount: decimal.Zero,
			Status: PaymentGrace,
			Note:   fmt.Sprintf("Perioadă de grație: %d zile", req.Days),
		}
	})
}

// ChangePlanRequest moves a tenant onto another plan
type ChangePlanRequest struct {
	Plan string `json:"plan" validate:"required"`
	Days int    `json:"days" validate:"gte=0"`
}

// ChangeTenantPlan switches the plan, restarts the period and records a
// manual payment
func (s *Service) ChangeTenantPlan(ctx context.Context, actor Actor, tenantID uuid.UUID, req ChangePlanRequest) (*SubscriptionStatus, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	return s.adminBilling(ctx, actor, tenantID, req.Plan, func(t *models.Tenant, plan *models.SubscriptionPlan) *models.Payment {
		days := req.Days
		if days == 0 {
			days = plan.DurationDays
		}
		t.SubscriptionPlan = plan.Name
		t.SubscriptionPrice = plan.Price
		t.SubscriptionEndDate = s.now().AddDate(0, 0, days)
		t.SubscriptionStatus = models.SubscriptionActive
		t.IsTrial = plan.Price.IsZero()
		return &models.Payment{
			Plan:   plan.Name,
			Amount: plan.Price,
			Status: PaymentManual,
			Note:   fmt.Sprintf("Plan schimbat de %s", actor.Email),
		}
	})
}

func (s *Service) adminBilling(ctx context.Context, actor Actor, tenantID uuid.UUID, planRef string,
	apply func(t *models.Tenant, plan *models.SubscriptionPlan) *models.Payment) (*SubscriptionStatus, error) {
	var tenant *models.Tenant
	var plan *models.SubscriptionPlan
	var payment *models.Payment
	err := s.inTx(ctx, func(tx storage.Store) error {
		var err error
		if tenant, err = s.tenant(ctx, tx, tenantID); err != nil {
			return err
		}
		if planRef != "" {
			plan, err = s.findPlan(ctx, tx, planRef)
		} else {
			plan, err = planFor(ctx, tx, tenant.SubscriptionPlan)
		}
		if err != nil {
			return err
		}

		payment = apply(tenant, plan)
		payment.TenantID = tenant.ID
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return storeErr(err, "Plata")
		}
		return storeErr(tx.UpdateTenant(ctx, tenant), "Service-ul")
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.PlanChanged,
		LogType:  models.LogTypeSystem,
		Category: "billing",
		Message:  fmt.Sprintf("%s: %s (%s)", tenant.ServiceName, payment.Note, payment.Status),
		TenantID: &tenantID,
		Data: models.Variables{
			"plan":     tenant.SubscriptionPlan,
			"status":   payment.Status,
			"end_date": tenant.SubscriptionEndDate.Format(time.RFC3339),
		},
	})
	return s.subscriptionStatus(tenant, plan), nil
}

// ListTenantEmployees lists a tenant's team for the admin console
func (s *Service) ListTenantEmployees(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	if _, err := s.tenant(ctx, s.store, tenantID); err != nil {
		return nil, err
	}
	return s.employees(ctx, s.store, tenantID)
}

// DeleteTenantEmployee removes an employee of any tenant
func (s *Service) DeleteTenantEmployee(ctx context.Context, actor Actor, tenantID, userID uuid.UUID) error {
	return s.deleteEmployee(ctx, actor, tenantID, userID)
}

// SetTenantAI switches the assistant on or off for one tenant
func (s *Service) SetTenantAI(ctx context.Context, actor Actor, tenantID uuid.UUID, enabled bool) (*models.Tenant, error) {
	t, err := s.tenant(ctx, s.store, tenantID)
	if err != nil {
		return nil, err
	}
	t.AIEnabled = enabled
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, storeErr(err, "Service-ul")
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.SettingsChanged,
		LogType:  models.LogTypeSystem,
		Category: "ai",
		Message:  fmt.Sprintf("Asistent AI pentru %s: %t", t.ServiceName, enabled),
		TenantID: &tenantID,
	})
	return t, nil
}

// AIStatistics summarizes assistant usage across tenants
type AIStatistics struct {
	GloballyEnabled bool  `json:"ai_globally_enabled"`
	ProviderReady   bool  `json:"provider_configured"`
	TenantsEnabled  int   `json:"tenants_enabled"`
	TenantsEntitled int   `json:"tenants_with_ai_plan"`
	Conversations   int64 `json:"total_conversations"`
}

// GetAIStatistics counts entitled and enabled tenants and conversations
func (s *Service) GetAIStatistics(ctx context.Context) (*AIStatistics, error) {
	settings, err := s.platformSettings(ctx, s.store)
	if err != nil {
		return nil, err
	}
	tenants, _, err := s.store.ListTenants(ctx, 0, 0)
	if err != nil {
		return nil, storeErr(err, "Service-ul")
	}

	stats := &AIStatistics{
		GloballyEnabled: settings.AIGloballyEnabled,
		ProviderReady:   s.cfg.AI.BaseURL != "",
	}
	for _, t := range tenants {
		plan, err := planFor(ctx, s.store, t.SubscriptionPlan)
		if err != nil {
			return nil, err
		}
		if plan.Limits.HasAI {
			stats.TenantsEntitled++
		}
		if t.AIEnabled {
			stats.TenantsEnabled++
		}
	}
	if stats.Conversations, err = s.store.CountConversations(ctx); err != nil {
		return nil, storeErr(err, "Conversația")
	}
	return stats, nil
}

// GetPlatformSettings returns the platform-wide switches
func (s *Service) GetPlatformSettings(ctx context.Context) (*models.PlatformSettings, error) {
	return s.platformSettings(ctx, s.store)
}

// UpdatePlatformSettingsRequest changes platform-wide switches
type UpdatePlatformSettingsRequest struct {
	MaintenanceMode    *bool   `json:"maintenance_mode"`
	MaintenanceMessage *string `json:"maintenance_message" validate:"max=500"`
	AIGloballyEnabled  *bool   `json:"ai_globally_enabled"`
	DefaultTrialDays   *int    `json:"default_trial_days" validate:"gte=1"`
}

// UpdatePlatformSettings applies the given switches
func (s *Service) UpdatePlatformSettings(ctx context.Context, actor Actor, req UpdatePlatformSettingsRequest) (*models.PlatformSettings, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	settings, err := s.platformSettings(ctx, s.store)
	if err != nil {
		return nil, err
	}
	if req.MaintenanceMode != nil {
		settings.MaintenanceMode = *req.MaintenanceMode
	}
	if req.MaintenanceMessage != nil {
		settings.MaintenanceMessage = strings.TrimSpace(*req.MaintenanceMessage)
	}
	if req.AIGloballyEnabled != nil {
		settings.AIGloballyEnabled = *req.AIGloballyEnabled
	}
	if req.DefaultTrialDays != nil {
		settings.DefaultTrialDays = *req.DefaultTrialDays
	}
	if err := s.store.SavePlatformSettings(ctx, settings); err != nil {
		return nil, storeErr(err, "Setările")
	}

	level := models.LogLevelInfo
	if req.MaintenanceMode != nil {
		level = models.LogLevelWarning
	}
	s.publish(ctx, actor, events.Event{
		Type:     events.SettingsChanged,
		LogType:  models.LogTypeSystem,
		Level:    level,
		Category: "settings",
		Message:  fmt.Sprintf("Setări platformă actualizate (mentenanță: %t, AI: %t)", settings.MaintenanceMode, settings.AIGloballyEnabled),
	})
	return settings, nil
}

// MaintenanceStatus is the public maintenance flag
type MaintenanceStatus struct {
	MaintenanceMode bool   `json:"maintenance_mode"`
	Message         string `json:"message"`
}

// GetMaintenanceStatus reports whether tenant traffic is paused
func (s *Service) GetMaintenanceStatus(ctx context.Context) (*MaintenanceStatus, error) {
	settings, err := s.platformSettings(ctx, s.store)
	if err != nil {
		return nil, err
	}
	return &MaintenanceStatus{MaintenanceMode: settings.MaintenanceMode, Message: settings.MaintenanceMessage}, nil
}

// CheckMaintenance fails with a maintenance error while the mode is on
func (s *Service) CheckMaintenance(ctx context.Context) error {
	status, err := s.GetMaintenanceStatus(ctx)
	if err != nil {
		return err
	}
	if status.MaintenanceMode {
		return apperr.Maintenance(status.Message)
	}
	return nil
}
