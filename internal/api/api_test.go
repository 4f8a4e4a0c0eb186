package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/config"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/storage"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/pkg/crypto"
)

// fakeStore serves the handlers under test from memory. Store methods the
// API never touches panic through the embedded nil interface.
type fakeStore struct {
	storage.Store

	users       map[string]*models.User
	monitored   map[string]*models.MonitoredGateway
	deviceKPIs  []*models.EndDeviceKPI
	gatewayKPIs []*models.GatewayKPI

	lastLogin map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*models.User),
		monitored: make(map[string]*models.MonitoredGateway),
		lastLogin: make(map[string]time.Time),
	}
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) UpdateUserLastLogin(ctx context.Context, username string, at time.Time) error {
	f.lastLogin[username] = at
	return nil
}

func (f *fakeStore) ListEndDeviceKPIs(ctx context.Context, filters storage.KPIFilters, limit, offset int) ([]*models.EndDeviceKPI, int64, error) {
	return f.deviceKPIs, int64(len(f.deviceKPIs)), nil
}

func (f *fakeStore) ListGatewayKPIs(ctx context.Context, filters storage.KPIFilters, limit, offset int) ([]*models.GatewayKPI, int64, error) {
	return f.gatewayKPIs, int64(len(f.gatewayKPIs)), nil
}

func (f *fakeStore) ListMonitoredGateways(ctx context.Context) ([]*models.MonitoredGateway, error) {
	out := make([]*models.MonitoredGateway, 0, len(f.monitored))
	for _, gw := range f.monitored {
		out = append(out, gw)
	}
	return out, nil
}

func (f *fakeStore) AddMonitoredGateway(ctx context.Context, gatewayID string) error {
	f.monitored[gatewayID] = &models.MonitoredGateway{GatewayID: gatewayID, AddedAt: time.Now()}
	return nil
}

func (f *fakeStore) RemoveMonitoredGateway(ctx context.Context, gatewayID string) error {
	if _, ok := f.monitored[gatewayID]; !ok {
		return storage.ErrNotFound
	}
	delete(f.monitored, gatewayID)
	return nil
}

func newTestServer(t *testing.T, store storage.Store) *RESTServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Version = "test"
	cfg.JWT = config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	return NewRESTServer(cfg, store)
}

func addUser(t *testing.T, store *fakeStore, username, password string, active bool) {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)
	store.users[username] = &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		IsActive:     active,
	}
}

func doJSON(s *RESTServer, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *RESTServer, username, password string) (access, refresh string) {
	t.Helper()
	rec := doJSON(s, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	access, _ = resp["access_token"].(string)
	refresh, _ = resp["refresh_token"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	return access, refresh
}

func TestLoginAndCurrentUser(t *testing.T) {
	store := newFakeStore()
	addUser(t, store, "operator", "hunter2", true)
	s := newTestServer(t, store)

	access, _ := login(t, s, "operator", "hunter2")
	require.Contains(t, store.lastLogin, "operator")

	rec := doJSON(s, http.MethodGet, "/api/v1/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	require.Equal(t, "operator", user.Username)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	store := newFakeStore()
	addUser(t, store, "operator", "hunter2", true)
	s := newTestServer(t, store)

	rec := doJSON(s, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "operator",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	store := newFakeStore()
	addUser(t, store, "operator", "hunter2", false)
	s := newTestServer(t, store)

	rec := doJSON(s, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "operator",
		"password": "hunter2",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefreshIssuesNewPair(t *testing.T) {
	store := newFakeStore()
	addUser(t, store, "operator", "hunter2", true)
	s := newTestServer(t, store)

	_, refresh := login(t, s, "operator", "hunter2")

	rec := doJSON(s, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["access_token"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, newFakeStore())

	rec := doJSON(s, http.MethodGet, "/api/v1/kpis/gateways", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(s, http.MethodGet, "/api/v1/kpis/gateways", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListGatewayKPIs(t *testing.T) {
	store := newFakeStore()
	addUser(t, store, "operator", "hunter2", true)
	store.gatewayKPIs = []*models.GatewayKPI{
		{ID: uuid.New(), GatewayID: "gw-field-01", Availability: 96.67},
	}
	s := newTestServer(t, store)
	access, _ := login(t, s, "operator", "hunter2")

	rec := doJSON(s, http.MethodGet, "/api/v1/kpis/gateways?gateway_id=gw-field-01", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		KPIs  []*models.GatewayKPI `json:"kpis"`
		Total int64                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.Total)
	require.Equal(t, "gw-field-01", resp.KPIs[0].GatewayID)
}

func TestListEndDeviceKPIsRejectsBadTime(t *testing.T) {
	store := newFakeStore()
	addUser(t, store, "operator", "hunter2", true)
	s := newTestServer(t, store)
	access, _ := login(t, s, "operator", "hunter2")

	rec := doJSON(s, http.MethodGet, "/api/v1/kpis/devices?start=yesterday", access, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitoredGatewayLifecycle(t *testing.T) {
	store := newFakeStore()
	addUser(t, store, "operator", "hunter2", true)
	s := newTestServer(t, store)
	access, _ := login(t, s, "operator", "hunter2")

	rec := doJSON(s, http.MethodPost, "/api/v1/monitored-gateways/", access, map[string]string{
		"gateway_id": "gw-field-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(s, http.MethodGet, "/api/v1/monitored-gateways/", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Gateways []*models.MonitoredGateway `json:"gateways"`
		Total    int                        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Equal(t, 1, listResp.Total)

	rec = doJSON(s, http.MethodDelete, "/api/v1/monitored-gateways/gw-field-01", access, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(s, http.MethodDelete, "/api/v1/monitored-gateways/gw-field-01", access, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	rec := doJSON(s, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
