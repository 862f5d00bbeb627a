package service

import (
	"context"
	"strings"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

// Permissions checked by the service
const (
	PermTicketsView    = "tickets.view"
	PermTicketsCreate  = "tickets.create"
	PermTicketsUpdate  = "tickets.update"
	PermTicketsDelete  = "tickets.delete"
	PermClientsView    = "clients.view"
	PermStatusesManage = "statuses.manage"
	PermEmployeesView  = "employees.view"
)

// AllPermissions lists what a custom role may grant
var AllPermissions = []string{
	PermTicketsView,
	PermTicketsCreate,
	PermTicketsUpdate,
	PermTicketsDelete,
	PermClientsView,
	PermStatusesManage,
	PermEmployeesView,
}

func validPermission(p string) bool {
	for _, known := range AllPermissions {
		if known == p {
			return true
		}
	}
	return false
}

// permissions resolves the permission set of the actor's role. Owners hold
// every permission.
func (s *Service) permissions(ctx context.Context, actor Actor) ([]string, error) {
	if actor.IsOwner() || actor.Role == models.RoleOwner {
		return AllPermissions, nil
	}
	for _, r := range models.SystemRoles {
		if r.Name == actor.Role {
			return r.Permissions, nil
		}
	}
	roles, err := s.store.ListRoles(ctx, actor.TenantID)
	if err != nil {
		return nil, storeErr(err, "Rolul")
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, actor.Role) {
			return r.Permissions, nil
		}
	}
	return nil, nil
}

// requirePermission fails with Forbidden unless the actor's role grants perm
func (s *Service) requirePermission(ctx context.Context, actor Actor, perm string) error {
	perms, err := s.permissions(ctx, actor)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if p == perm {
			return nil
		}
	}
	return apperr.Forbidden("Rolul %s nu are permisiunea %s", actor.Role, perm)
}

// requireOwner restricts account-level settings to the tenant owner
func requireOwner(actor Actor) error {
	if !actor.IsOwner() {
		return apperr.Forbidden("Doar proprietarul service-ului poate efectua această operație")
	}
	return nil
}
