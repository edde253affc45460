package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"authkit/internal/flow"
	"authkit/pkg/logging"
	"authkit/pkg/oauth"
)

// ExchangeOrgPath is the backend endpoint that exchanges the user's
// identity for an organization-scoped authorization context.
const ExchangeOrgPath = "/auth/exchange-org"

// ErrNoActiveOrganization is returned by RefreshOrgSession when no
// organization has been switched to yet.
var ErrNoActiveOrganization = errors.New("no active organization")

// Backend calls the application backend for organization exchanges.
type Backend struct {
	baseURL    string
	httpClient flow.Doer
}

// NewBackend creates a backend client. A nil doer selects a default
// http.Client with the standard timeout.
func NewBackend(baseURL string, doer flow.Doer) *Backend {
	if doer == nil {
		doer = &http.Client{Timeout: flow.DefaultHTTPTimeout}
	}
	return &Backend{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: doer}
}

// OrgExchange is the backend's answer to an organization exchange.
type OrgExchange struct {
	Org         oauth.Organization
	Role        string
	Permissions []string
}

type exchangeOrgRequest struct {
	WorkOSUserID string `json:"workosUserId"`
	WorkOSOrgID  string `json:"workosOrgId"`
}

type exchangeOrgResponse struct {
	Success     bool               `json:"success"`
	Org         oauth.Organization `json:"org"`
	Role        string             `json:"role"`
	Permissions []string           `json:"permissions"`
}

// ExchangeOrg asks the backend for the role and permissions the user holds
// in the given organization.
func (b *Backend) ExchangeOrg(ctx context.Context, userID, workosOrgID string) (*OrgExchange, error) {
	payload, err := json.Marshal(exchangeOrgRequest{WorkOSUserID: userID, WorkOSOrgID: workosOrgID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+ExchangeOrgPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &oauth.NetworkError{Op: "exchange-org", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &oauth.NetworkError{Op: "exchange-org", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded exchangeOrgResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &oauth.InvalidResponseError{Op: "exchange-org", Body: string(body), Err: err}
	}
	if !decoded.Success {
		return nil, &oauth.InvalidResponseError{Op: "exchange-org", Body: string(body),
			Err: errors.New("backend reported failure")}
	}

	return &OrgExchange{Org: decoded.Org, Role: decoded.Role, Permissions: decoded.Permissions}, nil
}

// SwitchOrganization exchanges the session's identity for an authorization
// context in the given organization and makes it the active one. Unknown
// permission strings from the backend are dropped.
func (m *Manager) SwitchOrganization(ctx context.Context, org oauth.Organization) (*oauth.OrgSession, error) {
	if m.backend == nil {
		return nil, &oauth.ConfigurationError{Reason: "backendUrl is required for organization switching"}
	}

	m.mu.Lock()
	if m.state != StateAuthenticated || m.user == nil {
		m.mu.Unlock()
		return nil, oauth.ErrNotAuthenticated
	}
	userID := m.user.Sub
	gen := m.generation
	m.mu.Unlock()

	result, err := m.backend.ExchangeOrg(ctx, userID, org.WorkOSOrgID)
	if err != nil {
		return nil, err
	}

	orgSession := &oauth.OrgSession{
		OrgID:       result.Org.ID,
		Role:        result.Role,
		Permissions: oauth.ParsePermissions(result.Permissions),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return nil, oauth.ErrNotAuthenticated
	}
	activeOrg := result.Org
	m.orgSession = orgSession
	m.activeOrg = &activeOrg
	if m.user != nil {
		m.user.OrgID = result.Org.ID
	}
	m.persistOfflineLocked()
	m.publishLocked()

	logging.Info("Session", "Switched to organization %s (role=%s)", result.Org.ID, result.Role)
	return copyOrgSession(orgSession), nil
}

// RefreshOrgSession re-runs the organization exchange for the active
// organization, picking up role or permission changes.
func (m *Manager) RefreshOrgSession(ctx context.Context) (*oauth.OrgSession, error) {
	m.mu.Lock()
	if m.activeOrg == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveOrganization
	}
	org := *m.activeOrg
	m.mu.Unlock()

	return m.SwitchOrganization(ctx, org)
}
