package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface. Every tenant-scoped method takes the
// tenant id and never returns rows of another tenant.
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Tenant methods
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	// GetTenantForUpdate reads a tenant and locks its row until the
	// transaction ends. Plan limit checks read the tenant through it.
	GetTenantForUpdate(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *models.Tenant) error
	ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error)

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, tenantID, id uuid.UUID) error
	ListUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error)
	CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error)

	// Admin methods
	CreateAdmin(ctx context.Context, admin *models.Admin) error
	GetAdmin(ctx context.Context, id uuid.UUID) (*models.Admin, error)
	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)

	// Role methods
	CreateRole(ctx context.Context, role *models.Role) error
	GetRole(ctx context.Context, tenantID, id uuid.UUID) (*models.Role, error)
	UpdateRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, tenantID, id uuid.UUID) error
	ListRoles(ctx context.Context, tenantID uuid.UUID) ([]*models.Role, error)

	// Location methods
	CreateLocation(ctx context.Context, location *models.Location) error
	GetLocation(ctx context.Context, tenantID, id uuid.UUID) (*models.Location, error)
	UpdateLocation(ctx context.Context, location *models.Location) error
	DeleteLocation(ctx context.Context, tenantID, id uuid.UUID) error
	ListLocations(ctx context.Context, tenantID uuid.UUID) ([]*models.Location, error)
	CountLocations(ctx context.Context, tenantID uuid.UUID) (int, error)

	// Custom status methods
	CreateStatus(ctx context.Context, status *models.CustomStatus) error
	GetStatus(ctx context.Context, tenantID, id uuid.UUID) (*models.CustomStatus, error)
	UpdateStatus(ctx context.Context, status *models.CustomStatus) error
	DeleteStatus(ctx context.Context, tenantID, id uuid.UUID) error
	ListStatuses(ctx context.Context, tenantID uuid.UUID) ([]*models.CustomStatus, error)

	// Client methods
	// CreateClient is idempotent on (tenant, name, phone): an existing
	// client is loaded into client and created is false
	CreateClient(ctx context.Context, client *models.Client) (created bool, err error)
	FindClient(ctx context.Context, tenantID uuid.UUID, name, phone string) (*models.Client, error)
	SearchClients(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]*models.Client, error)
	ListClients(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error)

	// Ticket methods
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicket(ctx context.Context, tenantID uuid.UUID, id string) (*models.Ticket, error)
	FindTicket(ctx context.Context, id string) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *models.Ticket) error
	DeleteTicket(ctx context.Context, tenantID uuid.UUID, id string) error
	ListTickets(ctx context.Context, tenantID uuid.UUID, filter models.TicketFilter) ([]*models.Ticket, int64, error)
	CountTickets(ctx context.Context, filter TicketCountFilter) (int64, error)
	RelabelTickets(ctx context.Context, tenantID uuid.UUID, oldLabel, newLabel string) (int64, error)

	// Subscription plan and payment methods
	CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	GetPlanByName(ctx context.Context, name string) (*models.SubscriptionPlan, error)
	UpdatePlan(ctx context.Context, plan *models.SubscriptionPlan) error
	DeletePlan(ctx context.Context, id uuid.UUID) error
	ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	ListPayments(ctx context.Context, tenantID uuid.UUID) ([]*models.Payment, error)

	// Announcement methods
	CreateAnnouncement(ctx context.Context, a *models.Announcement) error
	GetAnnouncement(ctx context.Context, id uuid.UUID) (*models.Announcement, error)
	UpdateAnnouncement(ctx context.Context, a *models.Announcement) error
	DeleteAnnouncement(ctx context.Context, id uuid.UUID) error
	ListAnnouncements(ctx context.Context) ([]*models.Announcement, error)

	// Log methods
	CreateLogEntry(ctx context.Context, entry *models.LogEntry) error
	ListLogEntries(ctx context.Context, filter models.LogFilter, limit, offset int) ([]*models.LogEntry, int64, error)
	GetLogStats(ctx context.Context, since time.Time) (*models.LogStats, error)

	// Platform settings
	GetPlatformSettings(ctx context.Context) (*models.PlatformSettings, error)
	SavePlatformSettings(ctx context.Context, settings *models.PlatformSettings) error

	// AI methods
	GetAIConfig(ctx context.Context, tenantID uuid.UUID) (*models.AIConfig, error)
	SaveAIConfig(ctx context.Context, cfg *models.AIConfig) error
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, tenantID, id uuid.UUID) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	DeleteConversation(ctx context.Context, tenantID, id uuid.UUID) error
	ListConversations(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.Conversation, error)
	CountConversations(ctx context.Context) (int64, error)

	// Snapshot methods used by backup and restore
	ExportSnapshot(ctx context.Context) (*Snapshot, error)
	ImportSnapshot(ctx context.Context, snap *Snapshot) error

	// Close the store
	Close() error
}

// TicketCountFilter narrows a ticket count. Zero values do not filter.
type TicketCountFilter struct {
	TenantID   *uuid.UUID
	LocationID *uuid.UUID
	Status     string
	Since      *time.Time
}

// Snapshot is the full persisted state of the platform. It carries fields
// that are hidden from JSON, so archives encode it with encoding/gob.
type Snapshot struct {
	Version       int
	CreatedAt     time.Time
	Tenants       []*models.Tenant
	Users         []*models.User
	Admins        []*models.Admin
	Roles         []*models.Role
	Locations     []*models.Location
	Statuses      []*models.CustomStatus
	Clients       []*models.Client
	Tickets       []*models.Ticket
	Plans         []*models.SubscriptionPlan
	Payments      []*models.Payment
	Announcements []*models.Announcement
	AIConfigs     []*models.AIConfig
	Conversations []*models.Conversation
	Settings      *models.PlatformSettings
}

// SnapshotVersion is the current snapshot format version
const SnapshotVersion = 1

// Records returns the number of rows held by the snapshot
func (s *Snapshot) Records() int {
	return len(s.Tenants) + len(s.Users) + len(s.Admins) + len(s.Roles) +
		len(s.Locations) + len(s.Statuses) + len(s.Clients) + len(s.Tickets) +
		len(s.Plans) + len(s.Payments) + len(s.Announcements) +
		len(s.AIConfigs) + len(s.Conversations)
}
