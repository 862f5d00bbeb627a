//go:build container
// +build container

package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startNATS(t *testing.T, ctx context.Context) string {
	t.Helper()

	req := tc.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := c.MappedPort(ctx, "4222")
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

// TestNATSBusQueueGroup runs two buses as two replicas would: grouped
// subscribers split the events, broadcast subscribers each see all of them
func TestNATSBusQueueGroup(t *testing.T) {
	ctx := context.Background()
	url := startNATS(t, ctx)

	var (
		grouped   atomic.Int32
		broadcast atomic.Int32
	)
	buses := make([]*NATSBus, 2)
	for i := range buses {
		nc, err := nats.Connect(url)
		require.NoError(t, err)
		bus := NewNATSBus(nc, "fixgsm")
		t.Cleanup(func() { bus.Close() })
		buses[i] = bus

		_, err = bus.Subscribe("activity-recorder", func(context.Context, Event) { grouped.Add(1) })
		require.NoError(t, err)
		_, err = bus.Subscribe("", func(context.Context, Event) { broadcast.Add(1) })
		require.NoError(t, err)
		require.NoError(t, nc.Flush())
	}

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, buses[0].Publish(ctx, Event{Category: "tickets", Type: TicketCreated}))
	}

	require.Eventually(t, func() bool {
		return broadcast.Load() == 2*n && grouped.Load() >= n
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, n, grouped.Load(), "each event is handled once per group")
}
