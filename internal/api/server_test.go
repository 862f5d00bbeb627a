package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixgsm/fixgsm-server/internal/auth"
	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/metrics"
	"github.com/fixgsm/fixgsm-server/internal/service"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

type testServer struct {
	t     *testing.T
	rest  *RESTServer
	store *storage.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = config.StorageDriverSQLite
	cfg.JWT.Secret = "api-test-secret-0123456789"
	cfg.Subscription.SeedPlans = true
	cfg.Metrics.Enabled = true
	cfg.Bootstrap.AdminEmail = "admin@fixgsm.test"
	cfg.Bootstrap.AdminPassword = "admin-password"

	store, err := storage.NewSQLiteStore(context.Background(), storage.SQLiteOptions{
		Path: filepath.Join(t.TempDir(), "fixgsm.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	jwt := auth.NewJWTManager(&cfg.JWT)
	m := metrics.New(cfg.Metrics.Namespace, nil)
	svc := service.New(service.Options{Store: store, Config: cfg, JWT: jwt, Metrics: m})
	require.NoError(t, svc.Bootstrap(context.Background()))

	return &testServer{t: t, rest: NewRESTServer(cfg, svc, jwt, m), store: store}
}

func (ts *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.rest.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func (ts *testServer) register(name string) service.LoginResponse {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/auth/register-service", "", map[string]string{
		"service_name": "Service " + name,
		"owner_name":   "Owner " + name,
		"email":        name + "@fixgsm.test",
		"phone":        "0700000000",
		"password":     "secret123",
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp service.LoginResponse
	decodeBody(ts.t, rec, &resp)
	require.NotEmpty(ts.t, resp.Token)
	require.NotNil(ts.t, resp.TenantID)
	return resp
}

func (ts *testServer) adminToken() string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "admin@fixgsm.test",
		"password": "admin-password",
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp service.LoginResponse
	decodeBody(ts.t, rec, &resp)
	return resp.Token
}

func (ts *testServer) createTicket(token string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodGet, "/api/tenant/locations", token, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	var locations []struct {
		ID string `json:"location_id"`
	}
	decodeBody(ts.t, rec, &locations)
	require.NotEmpty(ts.t, locations)

	rec = ts.do(http.MethodPost, "/api/tickets", token, map[string]interface{}{
		"client_name":    "Ion Popescu",
		"client_phone":   "0722 123 456",
		"device_model":   "iPhone 12",
		"reported_issue": "Ecran spart",
		"estimated_cost": "250",
		"location_id":    locations[0].ID,
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	var ticket struct {
		ID string `json:"ticket_id"`
	}
	decodeBody(ts.t, rec, &ticket)
	return ticket.ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginAndMe(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register("alpha")

	rec := ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alpha@fixgsm.test",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/auth/me", owner.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "alpha@fixgsm.test")

	rec = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alpha@fixgsm.test",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, "unauthorized", body.Code)
	assert.NotEmpty(t, body.Detail)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodGet, "/api/tickets", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestInvalidJSONBody(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	ts.rest.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, "validation", body.Code)
}

func TestRoleSeparation(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register("alpha")
	admin := ts.adminToken()

	rec := ts.do(http.MethodGet, "/api/admin/statistics", owner.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/api/tickets", admin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/api/admin/statistics", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTicketRoutes(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register("alpha")
	id := ts.createTicket(owner.Token)

	rec := ts.do(http.MethodGet, "/api/tickets", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	rec = ts.do(http.MethodGet, "/api/tickets/"+id, owner.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Tickets are tenant scoped
	other := ts.register("beta")
	rec = ts.do(http.MethodGet, "/api/tickets/"+id, other.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/tenant/custom-statuses", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses struct {
		Statuses []map[string]interface{} `json:"statuses"`
	}
	decodeBody(t, rec, &statuses)
	assert.NotEmpty(t, statuses.Statuses)

	rec = ts.do(http.MethodDelete, "/api/tickets/"+id, owner.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubscriptionGate(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register("alpha")

	tenant, err := ts.store.GetTenant(context.Background(), *owner.TenantID)
	require.NoError(t, err)
	tenant.SubscriptionEndDate = time.Now().Add(-24 * time.Hour)
	require.NoError(t, ts.store.UpdateTenant(context.Background(), tenant))

	rec := ts.do(http.MethodPost, "/api/tickets", owner.Token, map[string]string{"client_name": "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, "subscription_expired", body.Code)
	assert.Contains(t, body.Detail, "expirat")

	// Reads stay available
	rec = ts.do(http.MethodGet, "/api/tenant/subscription-status", owner.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Paying must not be blocked by the gate
	rec = ts.do(http.MethodPost, "/api/tenant/process-payment", owner.Token, map[string]string{"plan": "Pro"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/tenant/locations", owner.Token, map[string]string{"location_name": "Sucursala 2"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestMaintenanceMode(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register("alpha")
	admin := ts.adminToken()

	rec := ts.do(http.MethodPut, "/api/admin/platform-settings", admin, map[string]interface{}{
		"maintenance_mode":    true,
		"maintenance_message": "upgrade",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/tickets", owner.Token, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Contains(t, body.Detail, "mentenanță")

	rec = ts.do(http.MethodGet, "/api/maintenance-status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "upgrade")

	rec = ts.do(http.MethodGet, "/api/admin/tenants", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientPortal(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register("alpha")
	id := ts.createTicket(owner.Token)

	rec := ts.do(http.MethodPost, "/api/client-portal/check-status", "", map[string]string{
		"ticket_id": id,
		"phone":     "0722123456",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "iPhone 12")

	rec = ts.do(http.MethodPost, "/api/client-portal/check-status", "", map[string]string{
		"ticket_id": id,
		"phone":     "0799999999",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/api/client-portal/check-status", "", map[string]string{"ticket_id": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status"`)
	assert.NotContains(t, rec.Body.String(), "iPhone 12")
	assert.NotContains(t, rec.Body.String(), "service_name")
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register("alpha")
	admin := ts.adminToken()
	tenant := owner.TenantID.String()

	rec := ts.do(http.MethodGet, "/api/admin/tenants/"+tenant, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/admin/tenants/not-a-uuid", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPut, "/api/admin/tenants/"+tenant+"/ai", admin, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/admin/tenants/"+tenant+"/toggle-status", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/tickets", owner.Token, map[string]string{"client_name": "x"})
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, "subscription_suspended", body.Code)

	rec = ts.do(http.MethodGet, "/api/admin/logs?start_time=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/admin/logs?log_type=activity", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/admin/ai-config", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ai_globally_enabled")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/api/health", "", nil)

	rec := ts.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fixgsm_http_requests_total")
}
