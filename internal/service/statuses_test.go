package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

func TestStatusesAreTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alpha := f.register(t, "alpha")
	beta := f.register(t, "beta")

	created, err := f.svc.CreateStatus(ctx, alpha, CreateStatusRequest{
		Category: "inlucru",
		Label:    "Lipire placă",
		Color:    "#ff8800",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryInWork, created.Category)

	list, err := f.svc.ListStatuses(ctx, alpha)
	require.NoError(t, err)
	found := findStatus(list, "Lipire placă")
	require.NotNil(t, found)
	assert.Equal(t, models.CategoryInWork, found.Category)
	assert.Equal(t, "#ff8800", found.Color)

	other, err := f.svc.ListStatuses(ctx, beta)
	require.NoError(t, err)
	assert.Nil(t, findStatus(other, "Lipire placă"))
	for _, st := range other {
		assert.Equal(t, beta.TenantID, st.TenantID)
	}

	_, err = f.svc.UpdateStatus(ctx, beta, created.ID, UpdateStatusRequest{Color: strPtr("#000000")})
	assertKind(t, err, apperr.KindNotFound)
}

func TestCreateStatusValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	tests := []struct {
		name string
		req  CreateStatusRequest
		kind apperr.Kind
	}{
		{"missing category", CreateStatusRequest{Label: "X"}, apperr.KindValidation},
		{"unknown category", CreateStatusRequest{Category: "ALTCEVA", Label: "X"}, apperr.KindValidation},
		{"missing label", CreateStatusRequest{Category: "NOU"}, apperr.KindValidation},
		{"bad color", CreateStatusRequest{Category: "NOU", Label: "X", Color: "red"}, apperr.KindValidation},
		{"duplicate label", CreateStatusRequest{Category: "NOU", Label: "Nou"}, apperr.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateStatus(ctx, owner, tt.req)
			assertKind(t, err, tt.kind)
		})
	}

	st, err := f.svc.CreateStatus(ctx, owner, CreateStatusRequest{Category: "CURIER", Label: "Retur"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultStatusColor, st.Color)
}

func TestUpdateStatusColorRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	st, err := f.svc.CreateStatus(ctx, owner, CreateStatusRequest{Category: "NOU", Label: "Preluat", Color: "#111111"})
	require.NoError(t, err)
	before, err := f.svc.ListStatuses(ctx, owner)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, owner, st.ID, UpdateStatusRequest{Color: strPtr("#abc")})
	require.NoError(t, err)

	after, err := f.svc.ListStatuses(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	count := 0
	for _, s := range after {
		if s.ID == st.ID {
			count++
			assert.Equal(t, "#abc", s.Color)
			assert.Equal(t, "Preluat", s.Label)
		}
	}
	assert.Equal(t, 1, count)
}

func TestRelabelCascadesToTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	ticket := f.ticket(t, owner)

	statuses, err := f.svc.ListStatuses(ctx, owner)
	require.NoError(t, err)
	nou := findStatus(statuses, "Nou")
	require.NotNil(t, nou)

	_, err = f.svc.UpdateStatus(ctx, owner, nou.ID, UpdateStatusRequest{Label: strPtr("Diagnosticare")})
	assertKind(t, err, apperr.KindConflict)

	_, err = f.svc.UpdateStatus(ctx, owner, nou.ID, UpdateStatusRequest{Label: strPtr("Recepționat")})
	require.NoError(t, err)

	got, err := f.svc.GetTicket(ctx, owner, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Recepționat", got.Status)
}

func TestDeleteStatusInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	f.ticket(t, owner)

	statuses, err := f.svc.ListStatuses(ctx, owner)
	require.NoError(t, err)
	nou := findStatus(statuses, "Nou")
	require.NotNil(t, nou)

	err = f.svc.DeleteStatus(ctx, owner, nou.ID)
	assertKind(t, err, apperr.KindConflict)

	courier := findStatus(statuses, "Trimis prin curier")
	require.NotNil(t, courier)
	require.NoError(t, f.svc.DeleteStatus(ctx, owner, courier.ID))
	assertKind(t, f.svc.DeleteStatus(ctx, owner, courier.ID), apperr.KindNotFound)
}

func TestGroupedStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")

	groups, err := f.svc.GroupedStatuses(ctx, owner)
	require.NoError(t, err)
	require.Len(t, groups, len(models.StatusCategories))
	for i, g := range groups {
		assert.Equal(t, models.StatusCategories[i], g.Category)
		assert.Equal(t, g.Category.Label(), g.Label)
	}
	assert.Equal(t, "📥 NOU", groups[0].Label)
}

func TestStatusesRequirePermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "alpha")
	rec, err := f.svc.CreateEmployee(ctx, owner, CreateEmployeeRequest{
		Name: "Recepție", Email: "rec@fixgsm.test", Password: "secret123", Role: models.RoleReceptie,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateStatus(ctx, employeeActor(owner, rec), CreateStatusRequest{Category: "NOU", Label: "Nou 2"})
	assertKind(t, err, apperr.KindForbidden)
	_, err = f.svc.ListStatuses(ctx, employeeActor(owner, rec))
	require.NoError(t, err)
}
