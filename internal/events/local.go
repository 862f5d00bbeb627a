package events

import (
	"context"
	"sort"
	"sync"
)

type localSub struct {
	group string
	h     Handler
}

// LocalBus delivers events in process. Handlers run synchronously in
// Publish, in subscription order. Subscribers sharing a group take turns:
// each event reaches one member of the group.
type LocalBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]localSub
	turn   map[string]int
	closed bool
}

// NewLocalBus creates an in-process bus
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]localSub), turn: make(map[string]int)}
}

// Publish delivers e to every broadcast subscriber and to one member of
// every group
func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	e = Normalize(e)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	members := make(map[string][]int)
	for _, id := range ids {
		if g := b.subs[id].group; g != "" {
			members[g] = append(members[g], id)
		}
	}
	chosen := make(map[int]bool, len(members))
	for g, m := range members {
		chosen[m[b.turn[g]%len(m)]] = true
		b.turn[g]++
	}

	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		sub := b.subs[id]
		if sub.group == "" || chosen[id] {
			handlers = append(handlers, sub.h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ctx, e)
	}
	return nil
}

// Subscribe registers h in group; an empty group receives every event
func (b *LocalBus) Subscribe(group string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = localSub{group: group, h: h}
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}, nil
}

// Close drops all subscribers
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int]localSub)
	return nil
}
