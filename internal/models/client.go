package models

import (
	"time"

	"github.com/google/uuid"
)

// Client is a repair shop customer, created implicitly at ticket intake
type Client struct {
	ID          uuid.UUID `json:"client_id" db:"id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	TenantID    uuid.UUID `json:"-" db:"tenant_id"`
	Name        string    `json:"name" db:"name"`
	Phone       string    `json:"phone" db:"phone"`
	TicketCount int       `json:"ticket_count,omitempty" db:"-"`
}
