package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

// PlanRequest creates or replaces a subscription plan
type PlanRequest struct {
	Name         string            `json:"name" validate:"required,min=2,max=50"`
	Description  string            `json:"description" validate:"max=255"`
	Price        decimal.Decimal   `json:"price" validate:"gte=0"`
	DurationDays int               `json:"duration_days" validate:"gte=1"`
	Limits       models.PlanLimits `json:"plan_limits"`
	IsActive     *bool             `json:"is_active"`
}

func (req *PlanRequest) check() error {
	if req.Limits.Locations < 1 || req.Limits.Employees < 0 {
		return apperr.Validation("plan_limits: locations trebuie să fie cel puțin 1")
	}
	return nil
}

func (req *PlanRequest) apply(plan *models.SubscriptionPlan) {
	plan.Name = strings.TrimSpace(req.Name)
	plan.Description = strings.TrimSpace(req.Description)
	plan.Price = req.Price
	plan.DurationDays = req.DurationDays
	plan.Limits = req.Limits
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
}

// ListAllPlans returns every plan, inactive ones included
func (s *Service) ListAllPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, storeErr(err, "Planul")
	}
	if plans == nil {
		plans = []*models.SubscriptionPlan{}
	}
	return plans, nil
}

// CreatePlan adds a plan to the catalog
func (s *Service) CreatePlan(ctx context.Context, actor Actor, req PlanRequest) (*models.SubscriptionPlan, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if err := req.check(); err != nil {
		return nil, err
	}

	plan := &models.SubscriptionPlan{IsActive: true}
	req.apply(plan)
	if err := s.store.CreatePlan(ctx, plan); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, apperr.Conflict("Planul %s există deja", plan.Name)
		}
		return nil, storeErr(err, "Planul")
	}

	s.publishPlan(ctx, actor, plan, "create")
	return plan, nil
}

// UpdatePlan replaces a plan. Tenants already on it keep their price until
// the next payment.
func (s *Service) UpdatePlan(ctx context.Context, actor Actor, id uuid.UUID, req PlanRequest) (*models.SubscriptionPlan, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if err := req.check(); err != nil {
		return nil, err
	}

	var plan *models.SubscriptionPlan
	err := s.inTx(ctx, func(tx storage.Store) error {
		var err error
		if plan, err = tx.GetPlan(ctx, id); err != nil {
			return storeErr(err, "Planul")
		}
		oldName := plan.Name
		req.apply(plan)
		if err := tx.UpdatePlan(ctx, plan); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return apperr.Conflict("Planul %s există deja", plan.Name)
			}
			return storeErr(err, "Planul")
		}
		if oldName == plan.Name {
			return nil
		}

		tenants, _, err := tx.ListTenants(ctx, 0, 0)
		if err != nil {
			return storeErr(err, "Service-ul")
		}
		for _, t := range tenants {
			if t.SubscriptionPlan == oldName {
				t.SubscriptionPlan = plan.Name
				if err := tx.UpdateTenant(ctx, t); err != nil {
					return storeErr(err, "Service-ul")
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishPlan(ctx, actor, plan, "update")
	return plan, nil
}

// DeletePlan removes a plan no tenant is on
func (s *Service) DeletePlan(ctx context.Context, actor Actor, id uuid.UUID) error {
	var plan *models.SubscriptionPlan
	err := s.inTx(ctx, func(tx storage.Store) error {
		var err error
		if plan, err = tx.GetPlan(ctx, id); err != nil {
			return storeErr(err, "Planul")
		}
		tenants, _, err := tx.ListTenants(ctx, 0, 0)
		if err != nil {
			return storeErr(err, "Service-ul")
		}
		inUse := 0
		for _, t := range tenants {
			if t.SubscriptionPlan == plan.Name {
				inUse++
			}
		}
		if inUse > 0 {
			return apperr.Conflict("Planul %s este folosit de %d service-uri", plan.Name, inUse)
		}
		return storeErr(tx.DeletePlan(ctx, id), "Planul")
	})
	if err != nil {
		return err
	}

	s.publishPlan(ctx, actor, plan, "delete")
	return nil
}

func (s *Service) publishPlan(ctx context.Context, actor Actor, plan *models.SubscriptionPlan, action string) {
	s.publish(ctx, actor, events.Event{
		Type:     events.PlanChanged,
		LogType:  models.LogTypeSystem,
		Category: "plans",
		Message:  "Plan " + plan.Name + ": " + action,
		Data:     models.Variables{"plan_id": plan.ID.String(), "action": action},
	})
}
