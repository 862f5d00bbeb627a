package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

func TestNormalize(t *testing.T) {
	e := Normalize(Event{Type: TicketCreated})
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.OccurredAt.IsZero())
	assert.Equal(t, models.LogTypeActivity, e.LogType)
	assert.Equal(t, models.LogLevelInfo, e.Level)

	id := uuid.New()
	kept := Normalize(Event{ID: id, LogType: models.LogTypeSystem, Level: models.LogLevelCritical})
	assert.Equal(t, id, kept.ID)
	assert.Equal(t, models.LogTypeSystem, kept.LogType)
	assert.Equal(t, models.LogLevelCritical, kept.Level)
}

func TestEventLogEntry(t *testing.T) {
	tenantID := uuid.New()
	e := Normalize(Event{
		Type:       TicketCreated,
		Category:   "tickets",
		Message:    "Fișă creată FX-0A1B2C3D",
		TenantID:   &tenantID,
		ActorEmail: "owner@shop.ro",
		IPAddress:  "10.0.0.1",
		Data:       models.Variables{"ticket_id": "FX-0A1B2C3D"},
	})

	entry := e.LogEntry()
	assert.Equal(t, e.ID, entry.ID)
	assert.Equal(t, "tickets", entry.Category)
	assert.Equal(t, &tenantID, entry.TenantID)
	assert.Equal(t, "owner@shop.ro", entry.UserEmail)
	assert.Equal(t, "FX-0A1B2C3D", entry.Details["ticket_id"])
}

func TestLocalBus(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	var got []string
	unsubA, err := bus.Subscribe("", func(_ context.Context, e Event) { got = append(got, "a:"+e.Type) })
	require.NoError(t, err)
	_, err = bus.Subscribe("", func(_ context.Context, e Event) { got = append(got, "b:"+e.Type) })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Type: TicketCreated}))
	assert.Equal(t, []string{"a:" + TicketCreated, "b:" + TicketCreated}, got)

	unsubA()
	got = nil
	require.NoError(t, bus.Publish(ctx, Event{Type: TicketDeleted}))
	assert.Equal(t, []string{"b:" + TicketDeleted}, got)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(ctx, Event{Type: TicketCreated}), ErrClosed)
	_, err = bus.Subscribe("", func(context.Context, Event) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLocalBusGroups(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	var broadcast int
	perMember := make([]int, 2)
	_, err := bus.Subscribe("", func(context.Context, Event) { broadcast++ })
	require.NoError(t, err)
	for i := range perMember {
		i := i
		_, err := bus.Subscribe("activity-recorder", func(context.Context, Event) { perMember[i]++ })
		require.NoError(t, err)
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(ctx, Event{Type: TicketCreated}))
	}
	assert.Equal(t, 10, broadcast)
	assert.Equal(t, 10, perMember[0]+perMember[1], "each event reaches one group member")
	assert.Equal(t, []int{5, 5}, perMember)
}

func TestNATSSubject(t *testing.T) {
	bus := NewNATSBus(nil, "fixgsm")
	assert.Equal(t, "fixgsm.events.tickets.ticket_created",
		bus.Subject(Event{Category: "tickets", Type: TicketCreated}))
	assert.Equal(t, "fixgsm.events.general.auth_login",
		bus.Subject(Event{Type: UserLoggedIn}))
}
