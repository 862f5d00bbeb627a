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
)

// RoleRequest creates or edits a custom role
type RoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=50"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions"`
}

// ListRoles returns the system roles followed by the tenant's custom roles,
// each with the number of users holding it
func (s *Service) ListRoles(ctx context.Context, actor Actor) ([]models.Role, error) {
	users, err := s.store.ListUsers(ctx, actor.TenantID)
	if err != nil {
		return nil, storeErr(err, "Angajatul")
	}
	counts := make(map[string]int, len(users))
	for _, u := range users {
		if !u.IsOwner {
			counts[strings.ToLower(u.Role)]++
		}
	}

	custom, err := s.store.ListRoles(ctx, actor.TenantID)
	if err != nil {
		return nil, storeErr(err, "Rolul")
	}
	roles := make([]models.Role, 0, len(models.SystemRoles)+len(custom))
	for _, r := range models.SystemRoles {
		r.UsersCount = counts[strings.ToLower(r.Name)]
		roles = append(roles, r)
	}
	for _, r := range custom {
		role := *r
		role.UsersCount = counts[strings.ToLower(r.Name)]
		roles = append(roles, role)
	}
	return roles, nil
}

func (req *RoleRequest) normalize() error {
	req.Name = strings.TrimSpace(req.Name)
	seen := make(map[string]bool, len(req.Permissions))
	perms := make([]string, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		p = strings.TrimSpace(p)
		if !validPermission(p) {
			return apperr.Validation("Permisiune necunoscută: %q", p)
		}
		if !seen[p] {
			seen[p] = true
			perms = append(perms, p)
		}
	}
	req.Permissions = perms
	return nil
}

// checkRoleName refuses names taken by a system role or another custom role
func checkRoleName(ctx context.Context, store storage.Store, tenantID uuid.UUID, name string, self uuid.UUID) error {
	for _, system := range append([]string{models.RoleOwner}, systemRoleNames()...) {
		if strings.EqualFold(system, name) {
			return apperr.Conflict("Rolul %s este rezervat", system)
		}
	}
	roles, err := store.ListRoles(ctx, tenantID)
	if err != nil {
		return storeErr(err, "Rolul")
	}
	for _, r := range roles {
		if r.ID != self && strings.EqualFold(r.Name, name) {
			return apperr.Conflict("Rolul %q există deja", name)
		}
	}
	return nil
}

func systemRoleNames() []string {
	names := make([]string, 0, len(models.SystemRoles))
	for _, r := range models.SystemRoles {
		names = append(names, r.Name)
	}
	return names
}

// RoleID resolves a role path parameter. System role names resolve to the
// nil id, which update and delete refuse.
func RoleID(raw string) (uuid.UUID, error) {
	if models.IsSystemRole(raw) {
		return uuid.Nil, nil
	}
	return parseID(raw, "Rolul")
}

// CreateRole adds a custom role
func (s *Service) CreateRole(ctx context.Context, actor Actor, req RoleRequest) (*models.Role, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}

	role := &models.Role{
		TenantID:    actor.TenantID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Permissions: req.Permissions,
	}
	err := s.inTx(ctx, func(tx storage.Store) error {
		if err := checkRoleName(ctx, tx, actor.TenantID, role.Name, uuid.Nil); err != nil {
			return err
		}
		if err := tx.CreateRole(ctx, role); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return apperr.Conflict("Rolul %q există deja", role.Name)
			}
			return storeErr(err, "Rolul")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.RoleChanged,
		Category: "roles",
		Message:  "Rol creat: " + role.Name,
		Data:     models.Variables{"role_id": role.ID.String(), "action": "create"},
	})
	return role, nil
}

// UpdateRole edits a custom role. A rename is applied to every user
// holding the role.
func (s *Service) UpdateRole(ctx context.Context, actor Actor, id uuid.UUID, req RoleRequest) (*models.Role, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}

	if id == uuid.Nil {
		return nil, apperr.Forbidden("Rolurile de sistem nu pot fi modificate")
	}

	var role *models.Role
	err := s.inTx(ctx, func(tx storage.Store) error {
		var err error
		role, err = tx.GetRole(ctx, actor.TenantID, id)
		if err != nil {
			return storeErr(err, "Rolul")
		}
		if role.IsSystem {
			return apperr.Forbidden("Rolurile de sistem nu pot fi modificate")
		}
		if err := checkRoleName(ctx, tx, actor.TenantID, req.Name, role.ID); err != nil {
			return err
		}

		oldName := role.Name
		role.Name = req.Name
		role.Description = strings.TrimSpace(req.Description)
		role.Permissions = req.Permissions
		if err := tx.UpdateRole(ctx, role); err != nil {
			return storeErr(err, "Rolul")
		}
		if oldName == role.Name {
			return nil
		}

		users, err := tx.ListUsers(ctx, actor.TenantID)
		if err != nil {
			return storeErr(err, "Angajatul")
		}
		for _, u := range users {
			if strings.EqualFold(u.Role, oldName) {
				u.Role = role.Name
				if err := tx.UpdateUser(ctx, u); err != nil {
					return storeErr(err, "Angajatul")
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.RoleChanged,
		Category: "roles",
		Message:  "Rol actualizat: " + role.Name,
		Data:     models.Variables{"role_id": role.ID.String(), "action": "update"},
	})
	return role, nil
}

// DeleteRole removes a custom role no user holds
func (s *Service) DeleteRole(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := requireOwner(actor); err != nil {
		return err
	}

	if id == uuid.Nil {
		return apperr.Forbidden("Rolurile de sistem nu pot fi șterse")
	}

	var name string
	err := s.inTx(ctx, func(tx storage.Store) error {
		role, err := tx.GetRole(ctx, actor.TenantID, id)
		if err != nil {
			return storeErr(err, "Rolul")
		}
		if role.IsSystem {
			return apperr.Forbidden("Rolurile de sistem nu pot fi șterse")
		}
		name = role.Name

		users, err := tx.ListUsers(ctx, actor.TenantID)
		if err != nil {
			return storeErr(err, "Angajatul")
		}
		inUse := 0
		for _, u := range users {
			if strings.EqualFold(u.Role, role.Name) {
				inUse++
			}
		}
		if inUse > 0 {
			return apperr.Conflict("Rolul %s este atribuit la %d angajați", role.Name, inUse)
		}
		return storeErr(tx.DeleteRole(ctx, actor.TenantID, id), "Rolul")
	})
	if err != nil {
		return err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.RoleChanged,
		Category: "roles",
		Level:    models.LogLevelWarning,
		Message:  "Rol șters: " + name,
		Data:     models.Variables{"role_id": id.String(), "action": "delete"},
	})
	return nil
}
