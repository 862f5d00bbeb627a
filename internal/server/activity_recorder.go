package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

// ActivityGroup is the bus group shared by recorders of all replicas
const ActivityGroup = "activity-recorder"

// ActivityRecorder turns domain events into log entries
type ActivityRecorder struct {
	bus   events.Bus
	store storage.Store

	unsubscribe func()
}

// NewActivityRecorder creates an activity recorder
func NewActivityRecorder(bus events.Bus, store storage.Store) *ActivityRecorder {
	return &ActivityRecorder{
		bus:   bus,
		store: store,
	}
}

// Subscribe registers the recorder on the bus. Events published after it
// returns are recorded.
func (r *ActivityRecorder) Subscribe() error {
	unsubscribe, err := r.bus.Subscribe(ActivityGroup, r.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	r.unsubscribe = unsubscribe

	log.Info().Str("group", ActivityGroup).Msg("Activity recorder started")
	return nil
}

// Run blocks until ctx is done, then leaves the bus
func (r *ActivityRecorder) Run(ctx context.Context) error {
	<-ctx.Done()
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	return ctx.Err()
}

// handleEvent persists one event
func (r *ActivityRecorder) handleEvent(ctx context.Context, e events.Event) {
	entry := e.LogEntry()
	if err := r.store.CreateLogEntry(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("type", e.Type).
			Str("event_id", e.ID.String()).
			Msg("Failed to create log entry")
		return
	}

	log.Debug().
		Str("type", e.Type).
		Str("category", e.Category).
		Str("level", string(e.Level)).
		Msg("Activity recorded")
}
