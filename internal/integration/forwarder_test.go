package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

func testConfig(endpoint string) config.IntegrationConfig {
	cfg := config.Default().Integration
	cfg.HTTP.Enabled = true
	cfg.HTTP.Endpoint = endpoint
	cfg.HTTP.Secret = "webhook-secret"
	cfg.HTTP.RetryBackoff = time.Millisecond
	cfg.HTTP.Headers = map[string]string{"X-Api-Key": "k1"}
	return cfg
}

func ticketEvent() events.Event {
	tenant := uuid.New()
	return events.Normalize(events.Event{
		Type:       events.TicketUpdated,
		Category:   "ticket",
		Message:    "Fișa A1B2C3 a fost actualizată",
		TenantID:   &tenant,
		ActorEmail: "owner@fixgsm.test",
		IPAddress:  "10.0.0.1",
		Data:       models.Variables{"ticket_id": "A1B2C3", "status": "Finalizat"},
	})
}

func TestForwardToHTTP(t *testing.T) {
	var (
		mu      sync.Mutex
		headers http.Header
		body    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := NewForwarder(testConfig(srv.URL), events.NewLocalBus())
	require.True(t, f.Enabled())

	e := ticketEvent()
	f.handleEvent(context.Background(), e)
	f.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, body)
	assert.Equal(t, events.TicketUpdated, headers.Get(HeaderEvent))
	assert.Equal(t, "k1", headers.Get("X-Api-Key"))
	assert.Equal(t, Sign("webhook-secret", body), headers.Get(HeaderSignature))

	var p Payload
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, e.ID.String(), p.ID)
	assert.Equal(t, e.TenantID.String(), p.TenantID)
	assert.Equal(t, "Finalizat", p.Data["status"])
	assert.NotContains(t, string(body), "owner@fixgsm.test")
	assert.NotContains(t, string(body), "10.0.0.1")
}

func TestForwardRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		status    int
		wantCalls int32
	}{
		{"recovers after server errors", 2, http.StatusBadGateway, 3},
		{"gives up after max retries", 10, http.StatusInternalServerError, 4},
		{"client errors are final", 10, http.StatusBadRequest, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			f := NewForwarder(testConfig(srv.URL), events.NewLocalBus())
			f.handleEvent(context.Background(), ticketEvent())
			f.wg.Wait()

			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestMatches(t *testing.T) {
	f := NewForwarder(config.IntegrationConfig{Events: []string{"ticket.", "payment.recorded"}}, events.NewLocalBus())

	assert.True(t, f.Matches(events.TicketCreated))
	assert.True(t, f.Matches(events.PaymentRecorded))
	assert.False(t, f.Matches(events.UserLoggedIn))
	assert.False(t, f.Matches("ticketing.other"))

	all := NewForwarder(config.IntegrationConfig{}, events.NewLocalBus())
	assert.True(t, all.Matches(events.UserLoggedIn))
	assert.False(t, all.Enabled())
}

func TestTopic(t *testing.T) {
	cfg := config.Default().Integration
	f := NewForwarder(cfg, events.NewLocalBus())

	e := ticketEvent()
	assert.Equal(t, "fixgsm/"+e.TenantID.String()+"/ticket/ticket/updated", f.Topic(e))

	platform := events.Event{Type: events.SettingsChanged}
	assert.Equal(t, "fixgsm/platform/general/settings/changed", f.Topic(platform))
}

func TestSign(t *testing.T) {
	a := Sign("secret", []byte("body"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Sign("secret", []byte("body")))
	assert.NotEqual(t, a, Sign("other", []byte("body")))
	assert.NotEqual(t, a, Sign("secret", []byte("body2")))
}

func TestRunStopsWithContext(t *testing.T) {
	f := NewForwarder(config.IntegrationConfig{}, events.NewLocalBus())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.Subscribe(ctx))
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not stop")
	}
}

func TestSubscribeDeliversFirstEvent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := events.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// replicas share the group, so one webhook call per event
	for i := 0; i < 2; i++ {
		require.NoError(t, NewForwarder(testConfig(srv.URL), bus).Subscribe(ctx))
	}
	require.NoError(t, bus.Publish(ctx, ticketEvent()))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestStopWhileEventsArrive(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewForwarder(testConfig(srv.URL), events.NewLocalBus())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				f.handleEvent(ctx, ticketEvent())
			}
		}()
	}
	f.stop()
	stopped := calls.Load()
	wg.Wait()

	// nothing is delivered once stop returned
	assert.False(t, f.deliver(func() {}))
	assert.Equal(t, stopped, calls.Load())
}
