package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

func TestLocationLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	_, err := f.svc.CreateLocation(ctx, owner, LocationRequest{Name: "Filiala 2"})
	assertKind(t, err, apperr.KindLimitExceeded)
	assert.Contains(t, detail(err), "Limita")
	assert.Contains(t, detail(err), "Trial")

	locations, err := f.svc.ListLocations(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, locations, 1)

	f.setPlan(t, owner.TenantID, "Pro")
	second, err := f.svc.CreateLocation(ctx, owner, LocationRequest{Name: "Filiala 2", Address: "Str. Lungă 2"})
	require.NoError(t, err)
	assert.Equal(t, "Str. Lungă 2", second.Address)

	updated, err := f.svc.UpdateLocation(ctx, owner, second.ID, LocationRequest{Name: "Filiala Centru"})
	require.NoError(t, err)
	assert.Equal(t, "Filiala Centru", updated.Name)
}

func TestDeleteLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	f.setPlan(t, owner.TenantID, "Pro")
	first := f.location(t, owner)
	f.ticket(t, owner)

	err := f.svc.DeleteLocation(ctx, owner, first)
	assertKind(t, err, apperr.KindConflict)

	second, err := f.svc.CreateLocation(ctx, owner, LocationRequest{Name: "Filiala 2"})
	require.NoError(t, err)
	emp, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Ana", Email: "ana@fixgsm.test", Password: "secret123",
		Role: models.RoleReceptie, LocationID: second.ID.String(),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteLocation(ctx, owner, second.ID))
	got, err := f.store.GetUser(ctx, owner.TenantID, emp.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LocationID)

	assertKind(t, f.svc.DeleteLocation(ctx, owner, second.ID), apperr.KindNotFound)
}

func TestLocationsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	f.setPlan(t, owner.TenantID, "Pro")
	mgr, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Manager", Email: "mgr@fixgsm.test", Password: "secret123", Role: models.RoleManager,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateLocation(ctx, employeeActor(owner, mgr), LocationRequest{Name: "Filiala"})
	assertKind(t, err, apperr.KindForbidden)
}

func TestEmployeeLimitAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	other := f.register(t, "beta")

	for i, email := range []string{"e1@fixgsm.test", "e2@fixgsm.test"} {
		emp, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
			Name: "Angajat", Email: email, Password: "secret123", Role: models.RoleTechnician,
		})
		require.NoError(t, err, "employee %d", i)
		assert.True(t, emp.IsActive)
		assert.NotEqual(t, "secret123", emp.PasswordHash)
	}

	_, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Al treilea", Email: "e3@fixgsm.test", Password: "secret123", Role: models.RoleTechnician,
	})
	assertKind(t, err, apperr.KindLimitExceeded)
	assert.Contains(t, detail(err), "Limita de 2 angajați")

	f.setPlan(t, owner.TenantID, "Pro")
	tests := []struct {
		name string
		req  CreateEmployeeRequest
		kind apperr.Kind
	}{
		{"email of another tenant", CreateEmployeeRequest{Name: "Dup", Email: "beta@fixgsm.test", Password: "secret123", Role: models.RoleTechnician}, apperr.KindConflict},
		{"email of an admin", CreateEmployeeRequest{Name: "Dup", Email: "admin@fixgsm.test", Password: "secret123", Role: models.RoleTechnician}, apperr.KindConflict},
		{"owner role", CreateEmployeeRequest{Name: "Boss", Email: "boss@fixgsm.test", Password: "secret123", Role: models.RoleOwner}, apperr.KindValidation},
		{"unknown role", CreateEmployeeRequest{Name: "Who", Email: "who@fixgsm.test", Password: "secret123", Role: "Paznic"}, apperr.KindValidation},
		{"foreign location", CreateEmployeeRequest{Name: "Far", Email: "far@fixgsm.test", Password: "secret123", Role: models.RoleTechnician, LocationID: f.location(t, other).String()}, apperr.KindValidation},
		{"short password", CreateEmployeeRequest{Name: "Pwd", Email: "pwd@fixgsm.test", Password: "123", Role: models.RoleTechnician}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateEmployee(ctx, owner, tt.req)
			assertKind(t, err, tt.kind)
		})
	}
}

func TestEmployeeListAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	emp, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Manager", Email: "mgr@fixgsm.test", Password: "secret123", Role: models.RoleManager,
	})
	require.NoError(t, err)
	manager := employeeActor(owner, emp)

	list, err := f.svc.ListEmployees(ctx, manager)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, emp.ID, list[0].ID)

	tech, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Tehnician", Email: "tech@fixgsm.test", Password: "secret123", Role: models.RoleTechnician,
	})
	require.NoError(t, err)
	_, err = f.svc.ListEmployees(ctx, employeeActor(owner, tech))
	assertKind(t, err, apperr.KindForbidden)

	assertKind(t, f.svc.DeleteEmployee(ctx, owner, owner.UserID), apperr.KindForbidden)
	assertKind(t, f.svc.DeleteEmployee(ctx, manager, tech.ID), apperr.KindForbidden)
	require.NoError(t, f.svc.DeleteEmployee(ctx, owner, tech.ID))
	assertKind(t, f.svc.DeleteEmployee(ctx, owner, tech.ID), apperr.KindNotFound)
}

func TestUpdateEmployee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	emp, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Ana", Email: "ana@fixgsm.test", Password: "secret123", Role: models.RoleTechnician,
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateEmployee(ctx, owner, emp.ID, UpdateEmployeeRequest{
		Name:     strPtr("Ana Maria"),
		Role:     strPtr(models.RoleReceptie),
		Password: strPtr("new-secret"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)
	assert.Equal(t, models.RoleReceptie, updated.Role)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "ana@fixgsm.test", Password: "new-secret"}, "")
	require.NoError(t, err)

	_, err = f.svc.UpdateEmployee(ctx, owner, owner.UserID, UpdateEmployeeRequest{Role: strPtr(models.RoleManager)})
	assertKind(t, err, apperr.KindForbidden)
}

func TestCustomRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	_, err := f.svc.CreateRole(ctx, owner, RoleRequest{Name: "Vânzări", Permissions: []string{"tickets.fly"}})
	assertKind(t, err, apperr.KindValidation)
	_, err = f.svc.CreateRole(ctx, owner, RoleRequest{Name: "manager", Permissions: []string{PermTicketsView}})
	assertKind(t, err, apperr.KindConflict)

	role, err := f.svc.CreateRole(ctx, owner, RoleRequest{
		Name:        "Vânzări",
		Description: "Doar vizualizare",
		Permissions: []string{PermTicketsView, PermClientsView, PermTicketsView},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{PermTicketsView, PermClientsView}, role.Permissions)

	_, err = f.svc.CreateRole(ctx, owner, RoleRequest{Name: "VÂNZĂRI"})
	assertKind(t, err, apperr.KindConflict)

	emp, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Vlad", Email: "vlad@fixgsm.test", Password: "secret123", Role: "vânzări",
	})
	require.NoError(t, err)
	assert.Equal(t, "Vânzări", emp.Role)

	seller := employeeActor(owner, emp)
	f.ticket(t, owner)
	_, _, err = f.svc.ListTickets(ctx, seller, TicketQuery{})
	require.NoError(t, err)
	_, err = f.svc.CreateTicket(ctx, seller, CreateTicketRequest{
		ClientName: "X", ClientPhone: "1", DeviceModel: "Y", ReportedIssue: "Z", LocationID: f.location(t, owner).String(),
	})
	assertKind(t, err, apperr.KindForbidden)

	roles, err := f.svc.ListRoles(ctx, owner)
	require.NoError(t, err)
	require.Len(t, roles, len(models.SystemRoles)+1)
	assert.True(t, roles[0].IsSystem)
	custom := roles[len(roles)-1]
	assert.Equal(t, "Vânzări", custom.Name)
	assert.Equal(t, 1, custom.UsersCount)

	assertKind(t, f.svc.DeleteRole(ctx, owner, role.ID), apperr.KindConflict)

	_, err = f.svc.UpdateRole(ctx, owner, role.ID, RoleRequest{Name: "Consultanți", Permissions: []string{PermTicketsView}})
	require.NoError(t, err)
	got, err := f.store.GetUser(ctx, owner.TenantID, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Consultanți", got.Role)

	require.NoError(t, f.svc.DeleteEmployee(ctx, owner, emp.ID))
	require.NoError(t, f.svc.DeleteRole(ctx, owner, role.ID))
	assertKind(t, f.svc.DeleteRole(ctx, owner, role.ID), apperr.KindNotFound)
}

func TestSystemRolesAreImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	id, err := RoleID(models.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)

	_, err = f.svc.UpdateRole(ctx, owner, id, RoleRequest{Name: "Șef"})
	assertKind(t, err, apperr.KindForbidden)
	assertKind(t, f.svc.DeleteRole(ctx, owner, id), apperr.KindForbidden)

	_, err = RoleID("not-a-uuid")
	assertKind(t, err, apperr.KindNotFound)
}

func TestConcurrentLocationsRespectPlanCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	f.setPlan(t, owner.TenantID, "Pro")

	var (
		wg       sync.WaitGroup
		created  atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateLocation(ctx, owner, LocationRequest{Name: fmt.Sprintf("Filiala %d", i)})
			switch {
			case err == nil:
				created.Add(1)
			case apperr.Is(err, apperr.KindLimitExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 2, created.Load())
	assert.EqualValues(t, 6, rejected.Load())
	locations, err := f.svc.ListLocations(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, locations, 3)
}
