package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
	"github.com/fixgsm/fixgsm-server/pkg/crypto"
)

// CreateEmployeeRequest adds a team member
type CreateEmployeeRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	Role       string `json:"role" validate:"required"`
	LocationID string `json:"location_id"`
}

// UpdateEmployeeRequest edits a team member
type UpdateEmployeeRequest struct {
	Name       *string `json:"name" validate:"min=2,max=100"`
	Password   *string `json:"password" validate:"min=6"`
	Role       *string `json:"role" validate:"min=1"`
	LocationID *string `json:"location_id"`
	IsActive   *bool   `json:"is_active"`
}

// ListEmployees returns the tenant's users except the owner
func (s *Service) ListEmployees(ctx context.Context, actor Actor) ([]*models.User, error) {
	if err := s.requirePermission(ctx, actor, PermEmployeesView); err != nil {
		return nil, err
	}
	return s.employees(ctx, s.store, actor.TenantID)
}

func (s *Service) employees(ctx context.Context, store storage.Store, tenantID uuid.UUID) ([]*models.User, error) {
	users, err := store.ListUsers(ctx, tenantID)
	if err != nil {
		return nil, storeErr(err, "Angajatul")
	}
	out := make([]*models.User, 0, len(users))
	for _, u := range users {
		if !u.IsOwner {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Service) countEmployees(ctx context.Context, store storage.Store, tenantID uuid.UUID) (int, error) {
	employees, err := s.employees(ctx, store, tenantID)
	return len(employees), err
}

// emailTaken reports whether any principal already uses email
func emailTaken(ctx context.Context, store storage.Store, email string) (bool, error) {
	if _, err := store.GetUserByEmail(ctx, email); err == nil {
		return true, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, storeErr(err, "Utilizatorul")
	}
	if _, err := store.GetAdminByEmail(ctx, email); err == nil {
		return true, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, storeErr(err, "Utilizatorul")
	}
	return false, nil
}

// resolveRole checks that name is a system role or a custom role of the
// tenant and returns its canonical spelling
func resolveRole(ctx context.Context, store storage.Store, tenantID uuid.UUID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == models.RoleOwner {
		return "", apperr.Validation("Rolul %s nu poate fi atribuit angajaților", name)
	}
	if models.IsSystemRole(name) {
		return name, nil
	}
	roles, err := store.ListRoles(ctx, tenantID)
	if err != nil {
		return "", storeErr(err, "Rolul")
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, name) {
			return r.Name, nil
		}
	}
	return "", apperr.Validation("Rolul %q nu există", name)
}

func resolveLocation(ctx context.Context, store storage.Store, tenantID uuid.UUID, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("location_id invalid: %q", raw)
	}
	if _, err := store.GetLocation(ctx, tenantID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Validation("Locația selectată nu aparține acestui service")
		}
		return nil, storeErr(err, "Locația")
	}
	return &id, nil
}

// CreateEmployee adds a team member unless the plan cap is reached
func (s *Service) CreateEmployee(ctx context.Context, actor Actor, req CreateEmployeeRequest) (*models.User, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	user := &models.User{
		TenantID:     actor.TenantID,
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		IsActive:     true,
	}
	err = s.inTx(ctx, func(tx storage.Store) error {
		t, err := s.lockTenant(ctx, tx, actor.TenantID)
		if err != nil {
			return err
		}
		plan, err := planFor(ctx, tx, t.SubscriptionPlan)
		if err != nil {
			return err
		}
		count, err := s.countEmployees(ctx, tx, actor.TenantID)
		if err != nil {
			return err
		}
		if err := s.checkLimit(t, plan.Limits.Employees, count, "angajați"); err != nil {
			return err
		}

		if user.Role, err = resolveRole(ctx, tx, actor.TenantID, req.Role); err != nil {
			return err
		}
		if user.LocationID, err = resolveLocation(ctx, tx, actor.TenantID, req.LocationID); err != nil {
			return err
		}
		taken, err := emailTaken(ctx, tx, user.Email)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("Email-ul %s este deja folosit", user.Email)
		}

		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return apperr.Conflict("Email-ul %s este deja folosit", user.Email)
			}
			return storeErr(err, "Angajatul")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.EmployeeChanged,
		Category: "employees",
		Message:  "Angajat adăugat: " + user.Email,
		Data:     models.Variables{"user_id": user.ID.String(), "role": user.Role, "action": "create"},
	})
	return user, nil
}

// UpdateEmployee edits a team member
func (s *Service) UpdateEmployee(ctx context.Context, actor Actor, id uuid.UUID, req UpdateEmployeeRequest) (*models.User, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.inTx(ctx, func(tx storage.Store) error {
		var err error
		user, err = tx.GetUser(ctx, actor.TenantID, id)
		if err != nil {
			return storeErr(err, "Angajatul")
		}
		if user.IsOwner && (req.Role != nil || (req.IsActive != nil && !*req.IsActive)) {
			return apperr.Forbidden("Rolul proprietarului nu poate fi modificat")
		}

		if req.Name != nil {
			user.Name = strings.TrimSpace(*req.Name)
		}
		if req.Password != nil {
			if user.PasswordHash, err = crypto.HashPassword(*req.Password); err != nil {
				return apperr.Validation("%s", err.Error())
			}
		}
		if req.Role != nil {
			if user.Role, err = resolveRole(ctx, tx, actor.TenantID, *req.Role); err != nil {
				return err
			}
		}
		if req.LocationID != nil {
			if user.LocationID, err = resolveLocation(ctx, tx, actor.TenantID, *req.LocationID); err != nil {
				return err
			}
		}
		if req.IsActive != nil {
			user.IsActive = *req.IsActive
		}
		return storeErr(tx.UpdateUser(ctx, user), "Angajatul")
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.EmployeeChanged,
		Category: "employees",
		Message:  "Angajat actualizat: " + user.Email,
		Data:     models.Variables{"user_id": user.ID.String(), "action": "update"},
	})
	return user, nil
}

// DeleteEmployee removes a team member. The owner cannot be removed.
func (s *Service) DeleteEmployee(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := requireOwner(actor); err != nil {
		return err
	}
	return s.deleteEmployee(ctx, actor, actor.TenantID, id)
}

func (s *Service) deleteEmployee(ctx context.Context, actor Actor, tenantID, id uuid.UUID) error {
	user, err := s.store.GetUser(ctx, tenantID, id)
	if err != nil {
		return storeErr(err, "Angajatul")
	}
	if user.IsOwner {
		return apperr.Forbidden("Proprietarul service-ului nu poate fi șters")
	}
	if err := s.store.DeleteUser(ctx, tenantID, id); err != nil {
		return storeErr(err, "Angajatul")
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.EmployeeChanged,
		Category: "employees",
		Level:    models.LogLevelWarning,
		Message:  "Angajat șters: " + user.Email,
		TenantID: &tenantID,
		Data:     models.Variables{"user_id": id.String(), "action": "delete"},
	})
	return nil
}
