package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
	"github.com/fixgsm/fixgsm-server/pkg/crypto"
)

// TicketIDPrefix starts every ticket number
const TicketIDPrefix = "FX-"

// maxTicketIDAttempts bounds the search for an unused ticket number
const maxTicketIDAttempts = 8

// CreateTicketRequest is the intake form
type CreateTicketRequest struct {
	ClientName        string          `json:"client_name" validate:"required,max=100"`
	ClientPhone       string          `json:"client_phone" validate:"required,max=30"`
	DeviceModel       string          `json:"device_model" validate:"required,max=100"`
	IMEI              string          `json:"imei" validate:"max=20"`
	VisualAspect      string          `json:"visual_aspect"`
	ReportedIssue     string          `json:"reported_issue" validate:"required"`
	ServiceOperations string          `json:"service_operations"`
	AccessCode        string          `json:"access_code" validate:"max=50"`
	Colors            string          `json:"colors"`
	DefectCause       string          `json:"defect_cause"`
	Observations      string          `json:"observations"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost" validate:"gte=0"`
	Urgent            bool            `json:"urgent"`
	LocationID        string          `json:"location_id" validate:"required"`
	Status            string          `json:"status"`
	StatusNote        string          `json:"status_note"`
}

// UpdateTicketRequest is a partial ticket update
type UpdateTicketRequest struct {
	ClientName        *string          `json:"client_name" validate:"min=1,max=100"`
	ClientPhone       *string          `json:"client_phone" validate:"min=1,max=30"`
	DeviceModel       *string          `json:"device_model" validate:"min=1,max=100"`
	IMEI              *string          `json:"imei" validate:"max=20"`
	VisualAspect      *string          `json:"visual_aspect"`
	ReportedIssue     *string          `json:"reported_issue" validate:"min=1"`
	ServiceOperations *string          `json:"service_operations"`
	AccessCode        *string          `json:"access_code" validate:"max=50"`
	Colors            *string          `json:"colors"`
	DefectCause       *string          `json:"defect_cause"`
	Observations      *string          `json:"observations"`
	EstimatedCost     *decimal.Decimal `json:"estimated_cost" validate:"gte=0"`
	Urgent            *bool            `json:"urgent"`
	LocationID        *string          `json:"location_id" validate:"min=1"`
	Status            *string          `json:"status" validate:"min=1"`
	StatusNote        *string          `json:"status_note"`
}

// TicketQuery narrows a ticket listing
type TicketQuery struct {
	LocationID string
	Status     string
	Search     string
	Limit      int
	Offset     int
}

// ListTickets returns the tenant's tickets, newest first
func (s *Service) ListTickets(ctx context.Context, actor Actor, q TicketQuery) ([]*models.Ticket, int64, error) {
	if err := s.requirePermission(ctx, actor, PermTicketsView); err != nil {
		return nil, 0, err
	}

	filter := models.TicketFilter{
		Status: q.Status,
		Search: strings.TrimSpace(q.Search),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.LocationID != "" {
		id, err := uuid.Parse(q.LocationID)
		if err != nil {
			return nil, 0, apperr.Validation("location_id invalid: %q", q.LocationID)
		}
		filter.LocationID = &id
	}

	tickets, total, err := s.store.ListTickets(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, 0, storeErr(err, "Fișa")
	}
	if tickets == nil {
		tickets = []*models.Ticket{}
	}
	return tickets, total, nil
}

// GetTicket returns one ticket of the tenant
func (s *Service) GetTicket(ctx context.Context, actor Actor, id string) (*models.Ticket, error) {
	if err := s.requirePermission(ctx, actor, PermTicketsView); err != nil {
		return nil, err
	}
	t, err := s.store.GetTicket(ctx, actor.TenantID, normalizeTicketID(id))
	if err != nil {
		return nil, storeErr(err, "Fișa")
	}
	return t, nil
}

// CreateTicket registers a repair order. The client is added to the
// directory in the same transaction when it is new.
func (s *Service) CreateTicket(ctx context.Context, actor Actor, req CreateTicketRequest) (*models.Ticket, error) {
	if err := s.requirePermission(ctx, actor, PermTicketsCreate); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	locationID, err := uuid.Parse(strings.TrimSpace(req.LocationID))
	if err != nil {
		return nil, apperr.Validation("location_id invalid: %q", req.LocationID)
	}

	ticket := &models.Ticket{
		TenantID:          actor.TenantID,
		ClientName:        strings.TrimSpace(req.ClientName),
		ClientPhone:       strings.TrimSpace(req.ClientPhone),
		DeviceModel:       strings.TrimSpace(req.DeviceModel),
		IMEI:              strings.TrimSpace(req.IMEI),
		VisualAspect:      req.VisualAspect,
		ReportedIssue:     strings.TrimSpace(req.ReportedIssue),
		ServiceOperations: req.ServiceOperations,
		AccessCode:        req.AccessCode,
		Colors:            req.Colors,
		DefectCause:       req.DefectCause,
		Observations:      req.Observations,
		EstimatedCost:     req.EstimatedCost,
		Urgent:            req.Urgent,
		LocationID:        locationID,
		StatusNote:        strings.TrimSpace(req.StatusNote),
	}
	if actor.UserID != uuid.Nil {
		createdBy := actor.UserID
		ticket.CreatedBy = &createdBy
	}

	var clientCreated bool
	err = s.inTx(ctx, func(tx storage.Store) error {
		if _, err := tx.GetLocation(ctx, actor.TenantID, locationID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.Validation("Locația selectată nu aparține acestui service")
			}
			return storeErr(err, "Locația")
		}

		statuses, err := tx.ListStatuses(ctx, actor.TenantID)
		if err != nil {
			return storeErr(err, "Statusul")
		}
		var status *models.CustomStatus
		if label := strings.TrimSpace(req.Status); label != "" {
			if status = findStatus(statuses, label); status == nil {
				return apperr.Validation("Statusul %q nu există în catalogul service-ului", label)
			}
		} else if status = defaultStatus(statuses); status == nil {
			return apperr.Validation("Service-ul nu are niciun status definit")
		}
		if status.RequiresNote && ticket.StatusNote == "" {
			return apperr.Validation("Statusul %q necesită o notă", status.Label)
		}
		ticket.Status = status.Label

		if clientCreated, err = ensureClient(ctx, tx, actor.TenantID, ticket.ClientName, ticket.ClientPhone); err != nil {
			return err
		}

		if ticket.ID, err = newTicketID(ctx, tx); err != nil {
			return err
		}
		if err := tx.CreateTicket(ctx, ticket); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return apperr.Conflict("Numărul de fișă %s este deja folosit, reîncercați", ticket.ID)
			}
			return storeErr(err, "Fișa")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.TicketOperationsTotal.WithLabelValues("create").Inc()
	s.publish(ctx, actor, events.Event{
		Type:     events.TicketCreated,
		Category: "tickets",
		Message:  fmt.Sprintf("Fișă nouă %s: %s (%s)", ticket.ID, ticket.DeviceModel, ticket.ClientName),
		Data: models.Variables{
			"ticket_id":      ticket.ID,
			"status":         ticket.Status,
			"client_created": clientCreated,
		},
	})
	return ticket, nil
}

// UpdateTicket applies a partial update. A status change must name a
// current label, carry a note when the status requires one and pass the
// workflow policy.
func (s *Service) UpdateTicket(ctx context.Context, actor Actor, id string, req UpdateTicketRequest) (*models.Ticket, error) {
	if err := s.requirePermission(ctx, actor, PermTicketsUpdate); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	var ticket *models.Ticket
	var fromStatus string
	err := s.inTx(ctx, func(tx storage.Store) error {
		var err error
		ticket, err = tx.GetTicket(ctx, actor.TenantID, normalizeTicketID(id))
		if err != nil {
			return storeErr(err, "Fișa")
		}
		fromStatus = ticket.Status
		clientChanged := false

		setString := func(dst *string, src *string) {
			if src != nil {
				*dst = strings.TrimSpace(*src)
			}
		}
		if req.ClientName != nil || req.ClientPhone != nil {
			clientChanged = true
		}
		setString(&ticket.ClientName, req.ClientName)
		setString(&ticket.ClientPhone, req.ClientPhone)
		setString(&ticket.DeviceModel, req.DeviceModel)
		setString(&ticket.IMEI, req.IMEI)
		setString(&ticket.ReportedIssue, req.ReportedIssue)
		if req.VisualAspect != nil {
			ticket.VisualAspect = *req.VisualAspect
		}
		if req.ServiceOperations != nil {
			ticket.ServiceOperations = *req.ServiceOperations
		}
		if req.AccessCode != nil {
			ticket.AccessCode = *req.AccessCode
		}
		if req.Colors != nil {
			ticket.Colors = *req.Colors
		}
		if req.DefectCause != nil {
			ticket.DefectCause = *req.DefectCause
		}
		if req.Observations != nil {
			ticket.Observations = *req.Observations
		}
		if req.EstimatedCost != nil {
			ticket.EstimatedCost = *req.EstimatedCost
		}
		if req.Urgent != nil {
			ticket.Urgent = *req.Urgent
		}

		if req.LocationID != nil {
			locationID, err := uuid.Parse(strings.TrimSpace(*req.LocationID))
			if err != nil {
				return apperr.Validation("location_id invalid: %q", *req.LocationID)
			}
			if _, err := tx.GetLocation(ctx, actor.TenantID, locationID); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return apperr.Validation("Locația selectată nu aparține acestui service")
				}
				return storeErr(err, "Locația")
			}
			ticket.LocationID = locationID
		}

		if req.Status != nil {
			if err := s.applyStatus(ctx, tx, actor, ticket, strings.TrimSpace(*req.Status), req.StatusNote); err != nil {
				return err
			}
		} else if req.StatusNote != nil {
			ticket.StatusNote = strings.TrimSpace(*req.StatusNote)
		}

		if clientChanged {
			if _, err := ensureClient(ctx, tx, actor.TenantID, ticket.ClientName, ticket.ClientPhone); err != nil {
				return err
			}
		}

		return storeErr(tx.UpdateTicket(ctx, ticket), "Fișa")
	})
	if err != nil {
		return nil, err
	}

	data := models.Variables{"ticket_id": ticket.ID}
	message := "Fișă actualizată " + ticket.ID
	if ticket.Status != fromStatus {
		data["from_status"] = fromStatus
		data["to_status"] = ticket.Status
		message = fmt.Sprintf("Fișa %s: %s → %s", ticket.ID, fromStatus, ticket.Status)
		s.metrics.TicketOperationsTotal.WithLabelValues("status_change").Inc()
	}
	s.metrics.TicketOperationsTotal.WithLabelValues("update").Inc()
	s.publish(ctx, actor, events.Event{
		Type:     events.TicketUpdated,
		Category: "tickets",
		Message:  message,
		Data:     data,
	})
	return ticket, nil
}

// applyStatus moves ticket to the status labelled label
func (s *Service) applyStatus(ctx context.Context, tx storage.Store, actor Actor, ticket *models.Ticket, label string, note *string) error {
	statuses, err := tx.ListStatuses(ctx, actor.TenantID)
	if err != nil {
		return storeErr(err, "Statusul")
	}
	target := findStatus(statuses, label)
	if target == nil {
		return apperr.Validation("Statusul %q nu există în catalogul service-ului", label)
	}

	// a ticket whose label vanished from the catalog may move anywhere
	if current := findStatus(statuses, ticket.Status); current != nil {
		if !s.workflow.Allow(current.Category, target.Category, actor.Role) {
			return apperr.Validation("Tranziția din %s în %s nu este permisă", current.Category, target.Category)
		}
	}

	newNote := ""
	if note != nil {
		newNote = strings.TrimSpace(*note)
	} else if target.Label == ticket.Status {
		newNote = ticket.StatusNote
	}
	if target.RequiresNote && newNote == "" {
		return apperr.Validation("Statusul %q necesită o notă", target.Label)
	}

	ticket.Status = target.Label
	ticket.StatusNote = newNote
	return nil
}

// DeleteTicket removes a ticket
func (s *Service) DeleteTicket(ctx context.Context, actor Actor, id string) error {
	if err := s.requirePermission(ctx, actor, PermTicketsDelete); err != nil {
		return err
	}
	id = normalizeTicketID(id)
	if err := s.store.DeleteTicket(ctx, actor.TenantID, id); err != nil {
		return storeErr(err, "Fișa")
	}

	s.metrics.TicketOperationsTotal.WithLabelValues("delete").Inc()
	s.publish(ctx, actor, events.Event{
		Type:     events.TicketDeleted,
		Category: "tickets",
		Level:    models.LogLevelWarning,
		Message:  "Fișă ștearsă " + id,
		Data:     models.Variables{"ticket_id": id},
	})
	return nil
}

// ensureClient creates the (name, phone) client when missing and reports
// whether it did
func ensureClient(ctx context.Context, tx storage.Store, tenantID uuid.UUID, name, phone string) (bool, error) {
	created, err := tx.CreateClient(ctx, &models.Client{TenantID: tenantID, Name: name, Phone: phone})
	if err != nil {
		return false, storeErr(err, "Clientul")
	}
	return created, nil
}

// newTicketID finds an unused ticket number. Ticket numbers are unique
// across the platform so the public portal can look them up.
func newTicketID(ctx context.Context, tx storage.Store) (string, error) {
	for i := 0; i < maxTicketIDAttempts; i++ {
		suffix, err := crypto.RandomHex(4)
		if err != nil {
			return "", apperr.Internal(err)
		}
		id := TicketIDPrefix + suffix
		_, err = tx.FindTicket(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", storeErr(err, "Fișa")
		}
	}
	return "", apperr.Internal(fmt.Errorf("no free ticket number after %d attempts", maxTicketIDAttempts))
}

func normalizeTicketID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
