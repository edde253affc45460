package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authkit/internal/storage"
	"authkit/pkg/oauth"
)

func newOrgBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSwitchOrganization_Success(t *testing.T) {
	var gotBody exchangeOrgRequest
	backend := newOrgBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ExchangeOrgPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"org":     map[string]string{"id": "org_1", "workosOrgId": "wos_org_1", "name": "Acme"},
			"role":    "admin",
			// unknown:capability must be dropped during parsing
			"permissions": []string{"members:read", "unknown:capability", "billing:write"},
		})
	})

	cfg := testConfig()
	cfg.BackendURL = backend.URL
	m, store := newTestManager(t, cfg, &stubFlow{})
	authenticate(m, oauth.NewTokens("at", "rt"), oauth.UserInfo{Sub: "user_1", Email: "u@example.com"})

	org, err := m.SwitchOrganization(context.Background(), oauth.Organization{
		ID: "org_1", WorkOSOrgID: "wos_org_1", Name: "Acme",
	})
	require.NoError(t, err)

	assert.Equal(t, "user_1", gotBody.WorkOSUserID)
	assert.Equal(t, "wos_org_1", gotBody.WorkOSOrgID)

	assert.Equal(t, "org_1", org.OrgID)
	assert.Equal(t, "admin", org.Role)
	assert.Equal(t, []oauth.Permission{oauth.PermissionMembersRead, oauth.PermissionBillingWrite}, org.Permissions)

	active := m.ActiveOrganization()
	require.NotNil(t, active)
	assert.Equal(t, "Acme", active.Name)

	// The offline snapshot is re-persisted with the org context.
	data, err := store.Read(storage.OfflineSessionKey)
	require.NoError(t, err)
	var snap oauth.OfflineSession
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "org_1", snap.OrgID)
	assert.Equal(t, "admin", snap.Role)
	assert.Equal(t, []string{"members:read", "billing:write"}, snap.Permissions)
}

func TestSwitchOrganization_NoBackendConfigured(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), &stubFlow{})
	authenticate(m, oauth.NewTokens("at", "rt"), oauth.UserInfo{Sub: "user_1"})

	_, err := m.SwitchOrganization(context.Background(), oauth.Organization{WorkOSOrgID: "wos_org_1"})
	var cfgErr *oauth.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSwitchOrganization_NotAuthenticated(t *testing.T) {
	backend := newOrgBackend(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend must not be called without a session")
	})
	cfg := testConfig()
	cfg.BackendURL = backend.URL
	m, _ := newTestManager(t, cfg, &stubFlow{})
	m.mu.Lock()
	m.state = StateUnauthenticated
	m.mu.Unlock()

	_, err := m.SwitchOrganization(context.Background(), oauth.Organization{WorkOSOrgID: "wos_org_1"})
	assert.ErrorIs(t, err, oauth.ErrNotAuthenticated)
}

func TestSwitchOrganization_BackendRejects(t *testing.T) {
	backend := newOrgBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	cfg := testConfig()
	cfg.BackendURL = backend.URL
	m, _ := newTestManager(t, cfg, &stubFlow{})
	authenticate(m, oauth.NewTokens("at", "rt"), oauth.UserInfo{Sub: "user_1"})

	_, err := m.SwitchOrganization(context.Background(), oauth.Organization{WorkOSOrgID: "wos_org_1"})
	var netErr *oauth.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusForbidden, netErr.StatusCode)

	// The previous (empty) org context is untouched.
	assert.Nil(t, m.OrgSession())
}

func TestSwitchOrganization_BackendReportsFailure(t *testing.T) {
	backend := newOrgBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
	})
	cfg := testConfig()
	cfg.BackendURL = backend.URL
	m, _ := newTestManager(t, cfg, &stubFlow{})
	authenticate(m, oauth.NewTokens("at", "rt"), oauth.UserInfo{Sub: "user_1"})

	_, err := m.SwitchOrganization(context.Background(), oauth.Organization{WorkOSOrgID: "wos_org_1"})
	var respErr *oauth.InvalidResponseError
	assert.ErrorAs(t, err, &respErr)
}

func TestRefreshOrgSession(t *testing.T) {
	var calls atomic.Int32
	backend := newOrgBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		role := "admin"
		if calls.Load() > 1 {
			role = "member"
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"org":         map[string]string{"id": "org_1", "workosOrgId": "wos_org_1", "name": "Acme"},
			"role":        role,
			"permissions": []string{"members:read"},
		})
	})
	cfg := testConfig()
	cfg.BackendURL = backend.URL
	m, _ := newTestManager(t, cfg, &stubFlow{})
	authenticate(m, oauth.NewTokens("at", "rt"), oauth.UserInfo{Sub: "user_1"})

	_, err := m.SwitchOrganization(context.Background(), oauth.Organization{ID: "org_1", WorkOSOrgID: "wos_org_1"})
	require.NoError(t, err)

	refreshed, err := m.RefreshOrgSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "member", refreshed.Role)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRefreshOrgSession_NoActiveOrganization(t *testing.T) {
	cfg := testConfig()
	cfg.BackendURL = "http://localhost:1"
	m, _ := newTestManager(t, cfg, &stubFlow{})
	authenticate(m, oauth.NewTokens("at", "rt"), oauth.UserInfo{Sub: "user_1"})

	_, err := m.RefreshOrgSession(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveOrganization)
}
