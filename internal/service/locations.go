package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

// LocationRequest creates or edits a location
type LocationRequest struct {
	Name    string `json:"location_name" validate:"required,min=2,max=100"`
	Address string `json:"address" validate:"max=255"`
	Phone   string `json:"phone" validate:"max=30"`
}

// ListLocations returns the tenant's shops
func (s *Service) ListLocations(ctx context.Context, actor Actor) ([]*models.Location, error) {
	locations, err := s.store.ListLocations(ctx, actor.TenantID)
	if err != nil {
		return nil, storeErr(err, "Locația")
	}
	if locations == nil {
		locations = []*models.Location{}
	}
	return locations, nil
}

// CreateLocation adds a shop unless the plan cap is reached
func (s *Service) CreateLocation(ctx context.Context, actor Actor, req LocationRequest) (*models.Location, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	location := &models.Location{
		TenantID: actor.TenantID,
		Name:     strings.TrimSpace(req.Name),
		Address:  strings.TrimSpace(req.Address),
		Phone:    strings.TrimSpace(req.Phone),
	}
	err := s.inTx(ctx, func(tx storage.Store) error {
		t, err := s.lockTenant(ctx, tx, actor.TenantID)
		if err != nil {
			return err
		}
		plan, err := planFor(ctx, tx, t.SubscriptionPlan)
		if err != nil {
			return err
		}
		count, err := tx.CountLocations(ctx, actor.TenantID)
		if err != nil {
			return storeErr(err, "Locația")
		}
		if err := s.checkLimit(t, plan.Limits.Locations, count, "locații"); err != nil {
			return err
		}
		return storeErr(tx.CreateLocation(ctx, location), "Locația")
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.LocationChanged,
		Category: "locations",
		Message:  "Locație adăugată: " + location.Name,
		Data:     models.Variables{"location_id": location.ID.String(), "action": "create"},
	})
	return location, nil
}

// UpdateLocation edits a shop
func (s *Service) UpdateLocation(ctx context.Context, actor Actor, id uuid.UUID, req LocationRequest) (*models.Location, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	location, err := s.store.GetLocation(ctx, actor.TenantID, id)
	if err != nil {
		return nil, storeErr(err, "Locația")
	}
	location.Name = strings.TrimSpace(req.Name)
	location.Address = strings.TrimSpace(req.Address)
	location.Phone = strings.TrimSpace(req.Phone)
	if err := s.store.UpdateLocation(ctx, location); err != nil {
		return nil, storeErr(err, "Locația")
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.LocationChanged,
		Category: "locations",
		Message:  "Locație actualizată: " + location.Name,
		Data:     models.Variables{"location_id": location.ID.String(), "action": "update"},
	})
	return location, nil
}

// DeleteLocation removes a shop without tickets. Employees assigned to it
// lose their assignment.
func (s *Service) DeleteLocation(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := requireOwner(actor); err != nil {
		return err
	}

	var name string
	err := s.inTx(ctx, func(tx storage.Store) error {
		location, err := tx.GetLocation(ctx, actor.TenantID, id)
		if err != nil {
			return storeErr(err, "Locația")
		}
		name = location.Name

		tenantID := actor.TenantID
		tickets, err := tx.CountTickets(ctx, storage.TicketCountFilter{TenantID: &tenantID, LocationID: &id})
		if err != nil {
			return storeErr(err, "Locația")
		}
		if tickets > 0 {
			return apperr.Conflict("Locația %s are %d fișe și nu poate fi ștearsă", name, tickets)
		}

		users, err := tx.ListUsers(ctx, actor.TenantID)
		if err != nil {
			return storeErr(err, "Angajatul")
		}
		for _, u := range users {
			if u.LocationID != nil && *u.LocationID == id {
				u.LocationID = nil
				if err := tx.UpdateUser(ctx, u); err != nil {
					return storeErr(err, "Angajatul")
				}
			}
		}
		return storeErr(tx.DeleteLocation(ctx, actor.TenantID, id), "Locația")
	})
	if err != nil {
		return err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.LocationChanged,
		Category: "locations",
		Level:    models.LogLevelWarning,
		Message:  "Locație ștearsă: " + name,
		Data:     models.Variables{"location_id": id.String(), "action": "delete"},
	})
	return nil
}
