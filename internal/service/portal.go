package service

import (
	"context"
	"strings"
	"time"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

// CheckStatusRequest is the public ticket lookup
type CheckStatusRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Phone    string `json:"phone"`
}

// PortalStatus is what a client sees about their repair
type PortalStatus struct {
	TicketID    string                `json:"ticket_id"`
	ServiceName string                `json:"service_name,omitempty"`
	DeviceModel string                `json:"device_model,omitempty"`
	Status      string                `json:"status"`
	Category    models.StatusCategory `json:"category,omitempty"`
	Color       string                `json:"color,omitempty"`
	IsFinal     bool                  `json:"is_final"`
	CreatedAt   *time.Time            `json:"created_at,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// CheckStatus looks a ticket up by number. Without a phone only the
// repair progress is returned; with one, the phone must match the client's
// and the device and shop are included. A wrong phone reads the same as a
// missing ticket.
func (s *Service) CheckStatus(ctx context.Context, req CheckStatusRequest) (*PortalStatus, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	ticket, err := s.store.FindTicket(ctx, normalizeTicketID(req.TicketID))
	if err != nil {
		return nil, storeErr(err, "Fișa")
	}
	out := &PortalStatus{
		TicketID:  ticket.ID,
		Status:    ticket.Status,
		UpdatedAt: ticket.UpdatedAt,
	}

	if req.Phone != "" {
		given := digits(req.Phone)
		if given == "" || given != digits(ticket.ClientPhone) {
			return nil, apperr.NotFound("Fișa")
		}
		t, err := s.tenant(ctx, s.store, ticket.TenantID)
		if err != nil {
			return nil, err
		}
		created := ticket.CreatedAt
		out.ServiceName = t.ServiceName
		out.DeviceModel = ticket.DeviceModel
		out.CreatedAt = &created
	}

	statuses, err := s.store.ListStatuses(ctx, ticket.TenantID)
	if err != nil {
		return nil, storeErr(err, "Statusul")
	}
	if st := findStatus(statuses, ticket.Status); st != nil {
		out.Category = st.Category
		out.Color = st.Color
		out.IsFinal = st.IsFinal
	}
	return out, nil
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
