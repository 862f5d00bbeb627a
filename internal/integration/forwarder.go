// Package integration forwards domain events to systems outside the
// platform: an HTTP webhook and an MQTT broker.
package integration

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"

	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/events"
)

// Header names set on webhook requests
const (
	HeaderEvent     = "X-FixGSM-Event"
	HeaderSignature = "X-FixGSM-Signature"
)

const signatureContext = "fixgsm webhook signature v1"

// ForwarderGroup is the bus group shared by forwarders of all replicas
const ForwarderGroup = "integration-forwarder"

// Payload is what external systems receive. Actor email and IP stay
// inside the platform.
type Payload struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Category   string                 `json:"category"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Forwarder subscribes to the event bus and forwards matching events
type Forwarder struct {
	cfg        config.IntegrationConfig
	bus        events.Bus
	httpClient *http.Client

	unsubscribe func()

	// clientMu also guards closed and wg.Add
	mqttClient mqtt.Client
	closed     bool
	clientMu   sync.Mutex

	wg sync.WaitGroup
}

// NewForwarder creates a forwarder
func NewForwarder(cfg config.IntegrationConfig, bus events.Bus) *Forwarder {
	return &Forwarder{
		cfg: cfg,
		bus: bus,
		httpClient: &http.Client{
			Timeout: cfg.HTTP.Timeout,
		},
	}
}

// Enabled reports whether any target is configured
func (f *Forwarder) Enabled() bool {
	return (f.cfg.HTTP.Enabled && f.cfg.HTTP.Endpoint != "") ||
		(f.cfg.MQTT.Enabled && f.cfg.MQTT.BrokerURL != "")
}

// Subscribe registers the forwarder on the bus. Deliveries run under ctx.
func (f *Forwarder) Subscribe(ctx context.Context) error {
	unsubscribe, err := f.bus.Subscribe(ForwarderGroup, func(_ context.Context, e events.Event) {
		f.handleEvent(ctx, e)
	})
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	f.unsubscribe = unsubscribe

	log.Info().
		Bool("http", f.cfg.HTTP.Enabled).
		Bool("mqtt", f.cfg.MQTT.Enabled).
		Str("group", ForwarderGroup).
		Msg("Integration forwarder started")
	return nil
}

// Run blocks until ctx is done, then waits for pending deliveries
func (f *Forwarder) Run(ctx context.Context) {
	<-ctx.Done()
	f.stop()
}

// stop leaves the bus and drains deliveries. No delivery starts after the
// closed flag is set, so wg.Wait never races wg.Add.
func (f *Forwarder) stop() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}

	f.clientMu.Lock()
	f.closed = true
	f.clientMu.Unlock()

	f.wg.Wait()
	f.closeMQTT()
}

// Matches reports whether an event type is selected. An empty selection
// forwards everything; entries ending in "." select a whole family.
func (f *Forwarder) Matches(eventType string) bool {
	if len(f.cfg.Events) == 0 {
		return true
	}
	for _, sel := range f.cfg.Events {
		if sel == eventType || (strings.HasSuffix(sel, ".") && strings.HasPrefix(eventType, sel)) {
			return true
		}
	}
	return false
}

// Topic expands the configured MQTT topic pattern for e
func (f *Forwarder) Topic(e events.Event) string {
	tenant := "platform"
	if e.TenantID != nil {
		tenant = e.TenantID.String()
	}
	category := e.Category
	if category == "" {
		category = "general"
	}
	return strings.NewReplacer(
		"{tenant_id}", tenant,
		"{category}", category,
		"{type}", strings.ReplaceAll(e.Type, ".", "/"),
	).Replace(f.cfg.MQTT.TopicPattern)
}

// Sign returns the hex signature of body under the configured secret
func Sign(secret string, body []byte) string {
	key := make([]byte, 32)
	blake3.DeriveKey(signatureContext, []byte(secret), key)
	h, err := blake3.NewKeyed(key)
	if err != nil {
		// key is always 32 bytes
		panic(err)
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// NewPayload converts an event into its external form
func NewPayload(e events.Event) Payload {
	p := Payload{
		ID:         e.ID.String(),
		Type:       e.Type,
		OccurredAt: e.OccurredAt,
		Category:   e.Category,
		Level:      string(e.Level),
		Message:    e.Message,
		Data:       e.Data,
	}
	if e.TenantID != nil {
		p.TenantID = e.TenantID.String()
	}
	return p
}

// handleEvent runs on the publisher's goroutine, so delivery is async
func (f *Forwarder) handleEvent(ctx context.Context, e events.Event) {
	if !f.Matches(e.Type) {
		return
	}

	body, err := json.Marshal(NewPayload(e))
	if err != nil {
		log.Error().Err(err).Str("type", e.Type).Msg("Failed to marshal forward data")
		return
	}

	if f.cfg.HTTP.Enabled && f.cfg.HTTP.Endpoint != "" {
		f.deliver(func() { f.forwardToHTTP(ctx, e.Type, body) })
	}

	if f.cfg.MQTT.Enabled && f.cfg.MQTT.BrokerURL != "" {
		topic := f.Topic(e)
		f.deliver(func() { f.forwardToMQTT(topic, body) })
	}
}

// deliver runs fn on a tracked goroutine; it drops fn once stop began
func (f *Forwarder) deliver(fn func()) bool {
	f.clientMu.Lock()
	defer f.clientMu.Unlock()
	if f.closed {
		return false
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		fn()
	}()
	return true
}

// forwardToHTTP posts body to the webhook, retrying network errors and
// 5xx responses
func (f *Forwarder) forwardToHTTP(ctx context.Context, eventType string, body []byte) {
	cfg := f.cfg.HTTP
	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.RetryBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		retry, err := f.postOnce(ctx, eventType, body)
		if err == nil {
			log.Debug().
				Str("type", eventType).
				Str("endpoint", cfg.Endpoint).
				Msg("Event forwarded to HTTP")
			return
		}
		if !retry || attempt == attempts {
			log.Error().
				Err(err).
				Str("type", eventType).
				Str("endpoint", cfg.Endpoint).
				Int("attempt", attempt).
				Msg("HTTP forward failed")
			return
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return
		}
	}
}

// postOnce sends one request and reports whether a failure is retryable
func (f *Forwarder) postOnce(ctx context.Context, eventType string, body []byte) (bool, error) {
	// Delivery outlives the caller's request
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.HTTP.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, f.cfg.HTTP.Endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, eventType)
	for k, v := range f.cfg.HTTP.Headers {
		req.Header.Set(k, v)
	}
	if f.cfg.HTTP.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(f.cfg.HTTP.Secret, body))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return false, nil
}

// forwardToMQTT publishes body on topic
func (f *Forwarder) forwardToMQTT(topic string, body []byte) {
	client := f.getMQTTClient()
	if client == nil {
		return
	}

	token := client.Publish(topic, f.cfg.MQTT.QoS, false, body)
	if !token.WaitTimeout(5 * time.Second) {
		log.Error().Str("topic", topic).Msg("MQTT publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish to MQTT")
		return
	}
	log.Debug().Str("topic", topic).Msg("Event forwarded to MQTT")
}

// getMQTTClient returns the connected client, connecting on first use
func (f *Forwarder) getMQTTClient() mqtt.Client {
	f.clientMu.Lock()
	defer f.clientMu.Unlock()

	if f.mqttClient != nil {
		return f.mqttClient
	}

	cfg := f.cfg.MQTT
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.BrokerURL).Msg("MQTT client connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Error().Err(err).Str("broker", cfg.BrokerURL).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		log.Error().
			Err(token.Error()).
			Str("broker", cfg.BrokerURL).
			Msg("Failed to connect MQTT client")
		return nil
	}

	f.mqttClient = client
	return client
}

func (f *Forwarder) closeMQTT() {
	f.clientMu.Lock()
	defer f.clientMu.Unlock()

	if f.mqttClient != nil && f.mqttClient.IsConnected() {
		f.mqttClient.Disconnect(250)
		log.Info().Msg("MQTT client disconnected")
	}
	f.mqttClient = nil
}
