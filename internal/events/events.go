// Package events carries domain events from the services to their
// consumers. Publishing never blocks a request on a consumer.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// Event types
const (
	TenantRegistered   = "tenant.registered"
	TenantUpdated      = "tenant.updated"
	UserLoggedIn       = "auth.login"
	LoginFailed        = "auth.login_failed"
	TicketCreated      = "ticket.created"
	TicketUpdated      = "ticket.updated"
	TicketDeleted      = "ticket.deleted"
	StatusCreated      = "status.created"
	StatusUpdated      = "status.updated"
	StatusDeleted      = "status.deleted"
	LocationChanged    = "location.changed"
	EmployeeChanged    = "employee.changed"
	RoleChanged        = "role.changed"
	PaymentRecorded    = "payment.recorded"
	PlanChanged        = "plan.changed"
	AnnouncementChange = "announcement.changed"
	SettingsChanged    = "settings.changed"
	BackupCreated      = "backup.created"
	BackupRestored     = "backup.restored"
	BackupDeleted      = "backup.deleted"
	AIRequest          = "ai.request"
)

// Event is something that happened in the domain
type Event struct {
	ID         uuid.UUID        `json:"id"`
	Type       string           `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	LogType    models.LogType   `json:"log_type"`
	Level      models.LogLevel  `json:"level"`
	Category   string           `json:"category"`
	Message    string           `json:"message"`
	TenantID   *uuid.UUID       `json:"tenant_id,omitempty"`
	ActorEmail string           `json:"actor_email,omitempty"`
	IPAddress  string           `json:"ip_address,omitempty"`
	Data       models.Variables `json:"data,omitempty"`
}

// Handler consumes events
type Handler func(ctx context.Context, e Event)

// Bus publishes events and fans them out to subscribers. Subscribers that
// share a non-empty group form a queue: each event is handled by one of
// them, across every process connected to the bus. An empty group receives
// every event.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(group string, h Handler) (unsubscribe func(), err error)
	Close() error
}

// Normalize fills the id, time and severity defaults of e
func Normalize(e Event) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.LogType == "" {
		e.LogType = models.LogTypeActivity
	}
	if e.Level == "" {
		e.Level = models.LogLevelInfo
	}
	return e
}

// LogEntry converts the event into an audit record
func (e Event) LogEntry() *models.LogEntry {
	return &models.LogEntry{
		ID:        e.ID,
		CreatedAt: e.OccurredAt,
		Type:      e.LogType,
		Level:     e.Level,
		Category:  e.Category,
		Message:   e.Message,
		TenantID:  e.TenantID,
		UserEmail: e.ActorEmail,
		IPAddress: e.IPAddress,
		Details:   e.Data,
	}
}
