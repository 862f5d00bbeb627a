package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// runStoreSuite exercises behaviour every Store implementation must share
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, newStore(t)) })
	t.Run("StatusLabelsUniquePerTenant", func(t *testing.T) { testStatusLabels(t, newStore(t)) })
	t.Run("ClientSearch", func(t *testing.T) { testClientSearch(t, newStore(t)) })
	t.Run("CreateClientIdempotent", func(t *testing.T) { testCreateClientIdempotent(t, newStore(t)) })
	t.Run("TenantLockSerializesLimitChecks", func(t *testing.T) { testTenantLock(t, newStore(t)) })
	t.Run("TicketListing", func(t *testing.T) { testTicketListing(t, newStore(t)) })
	t.Run("Relabel", func(t *testing.T) { testRelabel(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("Logs", func(t *testing.T) { testLogs(t, newStore(t)) })
	t.Run("Snapshot", func(t *testing.T) { testSnapshot(t, newStore(t)) })
}

func seedTenant(t *testing.T, s Store, name string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		ServiceName:         name,
		Email:               fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		SubscriptionStatus:  models.SubscriptionActive,
		SubscriptionPlan:    "Trial",
		SubscriptionEndDate: time.Now().Add(14 * 24 * time.Hour).UTC(),
		IsTrial:             true,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func seedLocation(t *testing.T, s Store, tenantID uuid.UUID) *models.Location {
	t.Helper()
	loc := &models.Location{TenantID: tenantID, Name: "Centru"}
	require.NoError(t, s.CreateLocation(context.Background(), loc))
	return loc
}

func newTicket(tenantID, locationID uuid.UUID, id, client, phone, model, status string) *models.Ticket {
	return &models.Ticket{
		ID:            id,
		TenantID:      tenantID,
		LocationID:    locationID,
		ClientName:    client,
		ClientPhone:   phone,
		DeviceModel:   model,
		ReportedIssue: "nu pornește",
		Status:        status,
		EstimatedCost: decimal.NewFromInt(150),
	}
}

func testTenantIsolation(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")
	b := seedTenant(t, s, "beta")
	locA := seedLocation(t, s, a.ID)

	tk := newTicket(a.ID, locA.ID, "FX-ISO00001", "Ion Pop", "0722000111", "iPhone 12", "Nou")
	require.NoError(t, s.CreateTicket(ctx, tk))

	_, err := s.GetTicket(ctx, b.ID, tk.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetTicket(ctx, a.ID, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ion Pop", got.ClientName)
	assert.True(t, decimal.NewFromInt(150).Equal(got.EstimatedCost))

	tickets, total, err := s.ListTickets(ctx, b.ID, models.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Zero(t, total)

	assert.ErrorIs(t, s.DeleteTicket(ctx, b.ID, tk.ID), ErrNotFound)
	_, err = s.GetLocation(ctx, b.ID, locA.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testStatusLabels(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")
	b := seedTenant(t, s, "beta")

	st := &models.CustomStatus{TenantID: a.ID, Category: models.CategoryNew, Label: "Nou", Color: "#3b82f6"}
	require.NoError(t, s.CreateStatus(ctx, st))

	dup := &models.CustomStatus{TenantID: a.ID, Category: models.CategoryInWork, Label: "Nou", Color: "#3b82f6"}
	assert.ErrorIs(t, s.CreateStatus(ctx, dup), ErrDuplicateKey)

	other := &models.CustomStatus{TenantID: b.ID, Category: models.CategoryNew, Label: "Nou", Color: "#3b82f6"}
	require.NoError(t, s.CreateStatus(ctx, other))

	later := &models.CustomStatus{TenantID: a.ID, Category: models.CategoryLost, Label: "Refuzat", Color: "#ef4444"}
	first := &models.CustomStatus{TenantID: a.ID, Category: models.CategoryInWork, Label: "Diagnosticare", Color: "#f59e0b"}
	require.NoError(t, s.CreateStatus(ctx, later))
	require.NoError(t, s.CreateStatus(ctx, first))

	list, err := s.ListStatuses(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Nou", "Diagnosticare", "Refuzat"}, []string{list[0].Label, list[1].Label, list[2].Label})
}

func testClientSearch(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")

	for i, c := range []struct{ name, phone string }{
		{"Maria Ionescu", "0744111222"},
		{"Mihai Popa", "0755333444"},
		{"Ana Maria", "0766555666"},
	} {
		cl := &models.Client{TenantID: a.ID, Name: c.name, Phone: c.phone,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute)}
		created, err := s.CreateClient(ctx, cl)
		require.NoError(t, err)
		require.True(t, created)
	}

	found, err := s.SearchClients(ctx, a.ID, "MARIA", 20)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Ana Maria", found[0].Name, "newest first")

	found, err = s.SearchClients(ctx, a.ID, "0755", 20)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Mihai Popa", found[0].Name)

	found, err = s.SearchClients(ctx, a.ID, "a", 1)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	c, err := s.FindClient(ctx, a.ID, "Mihai Popa", "0755333444")
	require.NoError(t, err)
	assert.Equal(t, "Mihai Popa", c.Name)
}

func testCreateClientIdempotent(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")
	b := seedTenant(t, s, "beta")

	first := &models.Client{TenantID: a.ID, Name: "Mihai Popa", Phone: "0755333444"}
	created, err := s.CreateClient(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	again := &models.Client{TenantID: a.ID, Name: "Mihai Popa", Phone: "0755333444"}
	created, err = s.CreateClient(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID, "the stored client is loaded")

	other := &models.Client{TenantID: b.ID, Name: "Mihai Popa", Phone: "0755333444"}
	created, err = s.CreateClient(ctx, other)
	require.NoError(t, err)
	assert.True(t, created, "clients are scoped to a tenant")

	var (
		wg    sync.WaitGroup
		added atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.BeginTx(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer tx.Rollback()
			created, err := tx.CreateClient(ctx, &models.Client{TenantID: a.ID, Name: "Elena Dan", Phone: "0733000222"})
			if !assert.NoError(t, err) {
				return
			}
			if assert.NoError(t, tx.Commit()) && created {
				added.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, added.Load())

	clients, err := s.ListClients(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, clients, 2)
}

// testTenantLock runs the location cap check of several concurrent
// transactions behind GetTenantForUpdate; the cap must hold
func testTenantLock(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")
	const limit = 3

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := s.BeginTx(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer tx.Rollback()

			_, err = tx.GetTenantForUpdate(ctx, a.ID)
			if !assert.NoError(t, err) {
				return
			}
			n, err := tx.CountLocations(ctx, a.ID)
			if !assert.NoError(t, err) || n >= limit {
				return
			}
			loc := &models.Location{TenantID: a.ID, Name: fmt.Sprintf("Punct %d", i)}
			if assert.NoError(t, tx.CreateLocation(ctx, loc)) {
				assert.NoError(t, tx.Commit())
			}
		}(i)
	}
	wg.Wait()

	n, err := s.CountLocations(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, limit, n)

	_, err = s.GetTenantForUpdate(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testTicketListing(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")
	loc1 := seedLocation(t, s, a.ID)
	loc2 := seedLocation(t, s, a.ID)

	base := time.Now().UTC().Add(-time.Hour)
	specs := []struct {
		id, client, phone, model, status string
		loc                              uuid.UUID
	}{
		{"FX-LST00001", "Ion Pop", "0722000111", "iPhone 12", "Nou", loc1.ID},
		{"FX-LST00002", "Elena Dan", "0733000222", "Galaxy S21", "În lucru", loc1.ID},
		{"FX-LST00003", "Ion Vasile", "0744000333", "Pixel 7", "Nou", loc2.ID},
	}
	for i, sp := range specs {
		tk := newTicket(a.ID, sp.loc, sp.id, sp.client, sp.phone, sp.model, sp.status)
		tk.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateTicket(ctx, tk))
	}

	dup := newTicket(a.ID, loc1.ID, "FX-LST00001", "X", "1", "Y", "Nou")
	assert.ErrorIs(t, s.CreateTicket(ctx, dup), ErrDuplicateKey)

	all, total, err := s.ListTickets(ctx, a.ID, models.TicketFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, "FX-LST00003", all[0].ID)

	byLoc, total, err := s.ListTickets(ctx, a.ID, models.TicketFilter{LocationID: &loc1.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, byLoc, 2)

	byStatus, _, err := s.ListTickets(ctx, a.ID, models.TicketFilter{Status: "Nou"})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	search, _, err := s.ListTickets(ctx, a.ID, models.TicketFilter{Search: "galaxy"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "FX-LST00002", search[0].ID)

	search, _, err = s.ListTickets(ctx, a.ID, models.TicketFilter{Search: "0744"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "FX-LST00003", search[0].ID)

	paged, total, err := s.ListTickets(ctx, a.ID, models.TicketFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, paged, 1)
	assert.Equal(t, "FX-LST00002", paged[0].ID)

	n, err := s.CountTickets(ctx, TicketCountFilter{TenantID: &a.ID, Status: "Nou"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func testRelabel(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")
	b := seedTenant(t, s, "beta")
	locA := seedLocation(t, s, a.ID)
	locB := seedLocation(t, s, b.ID)

	require.NoError(t, s.CreateTicket(ctx, newTicket(a.ID, locA.ID, "FX-REL00001", "A", "1", "M", "Nou")))
	require.NoError(t, s.CreateTicket(ctx, newTicket(a.ID, locA.ID, "FX-REL00002", "B", "2", "M", "Nou")))
	require.NoError(t, s.CreateTicket(ctx, newTicket(b.ID, locB.ID, "FX-REL00003", "C", "3", "M", "Nou")))

	n, err := s.RelabelTickets(ctx, a.ID, "Nou", "Primit")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	other, err := s.GetTicket(ctx, b.ID, "FX-REL00003")
	require.NoError(t, err)
	assert.Equal(t, "Nou", other.Status)
}

func testRollback(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.CreateClient(ctx, &models.Client{TenantID: a.ID, Name: "Temp", Phone: "000"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = s.FindClient(ctx, a.ID, "Temp", "000")
	assert.ErrorIs(t, err, ErrNotFound)

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.CreateClient(ctx, &models.Client{TenantID: a.ID, Name: "Kept", Phone: "111"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = s.FindClient(ctx, a.ID, "Kept", "111")
	assert.NoError(t, err)
}

func testLogs(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")
	old := time.Now().UTC().Add(-48 * time.Hour)

	entries := []*models.LogEntry{
		{Type: models.LogTypeActivity, Level: models.LogLevelInfo, Category: "auth", Message: "Login reușit", TenantID: &a.ID, UserEmail: "owner@alpha.ro"},
		{Type: models.LogTypeSystem, Level: models.LogLevelError, Category: "database", Message: "connection reset"},
		{Type: models.LogTypeSystem, Level: models.LogLevelCritical, Category: "database", Message: "disk full", CreatedAt: old},
	}
	for _, e := range entries {
		require.NoError(t, s.CreateLogEntry(ctx, e))
	}

	list, total, err := s.ListLogEntries(ctx, models.LogFilter{Type: models.LogTypeSystem}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "connection reset", list[0].Message)

	list, _, err = s.ListLogEntries(ctx, models.LogFilter{Search: "ALPHA"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "auth", list[0].Category)

	stats, err := s.GetLogStats(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.Last24h)
	assert.EqualValues(t, 1, stats.Errors24h)
	assert.EqualValues(t, 2, stats.ByType[models.LogTypeSystem])
}

func testSnapshot(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedTenant(t, s, "alpha")
	loc := seedLocation(t, s, a.ID)
	require.NoError(t, s.CreateUser(ctx, &models.User{
		TenantID: a.ID, Name: "Owner", Email: "owner@alpha.ro", PasswordHash: "hash", Role: models.RoleOwner, IsOwner: true, IsActive: true,
	}))
	require.NoError(t, s.CreateTicket(ctx, newTicket(a.ID, loc.ID, "FX-SNP00001", "Ion", "1", "M", "Nou")))
	require.NoError(t, s.CreateLogEntry(ctx, &models.LogEntry{Type: models.LogTypeSystem, Level: models.LogLevelInfo, Category: "backup", Message: "before"}))

	snap, err := s.ExportSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Len(t, snap.Tickets, 1)

	require.NoError(t, s.CreateTicket(ctx, newTicket(a.ID, loc.ID, "FX-SNP00002", "Dan", "2", "M", "Nou")))
	require.NoError(t, s.CreateLogEntry(ctx, &models.LogEntry{Type: models.LogTypeSystem, Level: models.LogLevelInfo, Category: "backup", Message: "after"}))

	require.NoError(t, s.ImportSnapshot(ctx, snap))

	_, err = s.GetTicket(ctx, a.ID, "FX-SNP00002")
	assert.ErrorIs(t, err, ErrNotFound)
	u, err := s.GetUserByEmail(ctx, "OWNER@alpha.ro")
	require.NoError(t, err)
	assert.Equal(t, "hash", u.PasswordHash)

	_, total, err := s.ListLogEntries(ctx, models.LogFilter{Category: "backup"}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total, "logs survive a restore")

	assert.ErrorIs(t, s.ImportSnapshot(ctx, &Snapshot{Version: 99}), ErrInvalidData)
}
