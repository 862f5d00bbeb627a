package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ticket is a repair order
type Ticket struct {
	ID        string    `json:"ticket_id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	TenantID  uuid.UUID `json:"-" db:"tenant_id"`

	ClientName        string          `json:"client_name" db:"client_name"`
	ClientPhone       string          `json:"client_phone" db:"client_phone"`
	DeviceModel       string          `json:"device_model" db:"device_model"`
	IMEI              string          `json:"imei" db:"imei"`
	VisualAspect      string          `json:"visual_aspect" db:"visual_aspect"`
	ReportedIssue     string          `json:"reported_issue" db:"reported_issue"`
	ServiceOperations string          `json:"service_operations" db:"service_operations"`
	AccessCode        string          `json:"access_code" db:"access_code"`
	Colors            string          `json:"colors" db:"colors"`
	DefectCause       string          `json:"defect_cause" db:"defect_cause"`
	Observations      string          `json:"observations" db:"observations"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost" db:"estimated_cost"`
	Urgent            bool            `json:"urgent" db:"urgent"`
	LocationID        uuid.UUID       `json:"location_id" db:"location_id"`
	Status            string          `json:"status" db:"status"`
	StatusNote        string          `json:"status_note,omitempty" db:"status_note"`
	CreatedBy         *uuid.UUID      `json:"created_by,omitempty" db:"created_by"`
}

// TicketFilter narrows a ticket listing
type TicketFilter struct {
	LocationID *uuid.UUID
	Status     string
	Search     string
	Limit      int
	Offset     int
}

// Matches applies the ticket search rules: case-insensitive substring on
// ticket id, client name and device model, raw substring on client phone.
func (t *Ticket) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(t.ID), q) ||
		strings.Contains(strings.ToLower(t.ClientName), q) ||
		strings.Contains(strings.ToLower(t.DeviceModel), q) ||
		strings.Contains(t.ClientPhone, query)
}
