package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by a bus after Close
var ErrClosed = errors.New("event bus closed")

// NATSBus publishes events as JSON on subjects
// <prefix>.events.<category>.<type>
type NATSBus struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSBus wraps an established connection
func NewNATSBus(nc *nats.Conn, prefix string) *NATSBus {
	return &NATSBus{nc: nc, prefix: prefix}
}

// Subject returns the subject an event is published on
func (b *NATSBus) Subject(e Event) string {
	category := e.Category
	if category == "" {
		category = "general"
	}
	return fmt.Sprintf("%s.events.%s.%s", b.prefix, token(category), token(e.Type))
}

// token makes s safe as a single subject token
func token(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}

// Publish sends e on its subject
func (b *NATSBus) Publish(ctx context.Context, e Event) error {
	if b.nc.IsClosed() {
		return ErrClosed
	}
	e = Normalize(e)
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.nc.Publish(b.Subject(e), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe delivers events under the prefix to h. With a group the
// subscription joins the NATS queue group of that name, so replicas split
// the events between them.
func (b *NATSBus) Subscribe(group string, h Handler) (func(), error) {
	subject := b.prefix + ".events.>"
	cb := func(msg *nats.Msg) {
		log.Debug().
			Str("subject", msg.Subject).
			Int("size", len(msg.Data)).
			Msg("Received event")

		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to unmarshal event")
			return
		}
		h(context.Background(), e)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group == "" {
		sub, err = b.nc.Subscribe(subject, cb)
	} else {
		sub, err = b.nc.QueueSubscribe(subject, group, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe events: %w", err)
	}
	log.Debug().Str("subject", subject).Str("group", group).Msg("Subscribed to events")
	return func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			log.Warn().Err(err).Msg("Failed to unsubscribe from events")
		}
	}, nil
}

// Close drains the connection
func (b *NATSBus) Close() error {
	if b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}
