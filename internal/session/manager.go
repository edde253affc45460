package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"authkit/internal/config"
	"authkit/internal/connectivity"
	"authkit/internal/flow"
	"authkit/internal/storage"
	"authkit/pkg/logging"
	"authkit/pkg/oauth"
)

// State is the session lifecycle state. Transitions happen only under the
// manager's mutex.
type State int

const (
	// StateLoading is the initial state while Bootstrap restores a
	// persisted session.
	StateLoading State = iota

	// StateUnauthenticated means no session exists.
	StateUnauthenticated

	// StateAuthenticated means a session with tokens and identity exists.
	StateAuthenticated
)

// String returns the state name for logging and display.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the session published on every state
// change. User and Org are copies; mutating them does not affect the
// manager.
type Snapshot struct {
	State          State
	User           *oauth.UserInfo
	Org            *oauth.OrgSession
	TokensExpireAt time.Time
}

const (
	// foregroundRefreshWindow is how close to expiry ValidAccessToken
	// refreshes before handing out a token.
	foregroundRefreshWindow = 60 * time.Second

	// backgroundRefreshWindow is how close to expiry the background loop
	// refreshes proactively.
	backgroundRefreshWindow = 300 * time.Second

	// refreshCheckInterval is how often the background loop checks expiry.
	refreshCheckInterval = 60 * time.Second

	// enforceInterval is how often the online auth invariant is enforced
	// while connectivity is up.
	enforceInterval = 15 * time.Second

	notificationBuffer = 16
)

// Flow is the authorization flow capability the manager drives. The flow
// controller satisfies it.
type Flow interface {
	SignIn(ctx context.Context) (*flow.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth.Tokens, error)
	Cancel()
}

// Manager owns the session lifecycle: bootstrap, sign-in and sign-out,
// proactive token refresh, offline restore, organization switching, and
// the online auth invariant. All session state lives behind one mutex;
// async work re-enters through it and is checked against a generation
// token so a sign-out always wins over in-flight results.
type Manager struct {
	cfg          *config.Config
	flow         Flow
	store        storage.Store
	protected    *storage.ProtectedStore
	connectivity connectivity.Notifier
	backend      *Backend

	mu         sync.Mutex
	state      State
	tokens     *oauth.Tokens
	user       *oauth.UserInfo
	orgSession *oauth.OrgSession
	activeOrg  *oauth.Organization
	lastAuth   time.Time

	// generation changes on every sign-in and sign-out. An async refresh
	// result is discarded unless the generation it started under is still
	// current.
	generation string

	loopCancel context.CancelFunc

	refreshGroup  singleflight.Group
	notifications chan Snapshot
}

// Option configures the Manager.
type Option func(*Manager)

// WithGate enables biometric-gated token reads for UnlockWithBiometrics.
func WithGate(gate storage.Gate) Option {
	return func(m *Manager) {
		m.protected = storage.NewProtectedStore(m.store, gate)
	}
}

// WithConnectivity sets the connectivity notifier. The default is pinned
// online.
func WithConnectivity(n connectivity.Notifier) Option {
	return func(m *Manager) {
		m.connectivity = n
	}
}

// WithBackendClient overrides the HTTP capability used for backend org
// exchanges.
func WithBackendClient(d flow.Doer) Option {
	return func(m *Manager) {
		if m.backend != nil {
			m.backend.httpClient = d
		}
	}
}

// NewManager creates a session manager. The backend org-exchange client is
// wired only when the configuration carries a backend URL.
func NewManager(cfg *config.Config, fl Flow, store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		cfg:           cfg,
		flow:          fl,
		store:         store,
		connectivity:  connectivity.NewStatic(true),
		state:         StateLoading,
		generation:    uuid.NewString(),
		notifications: make(chan Snapshot, notificationBuffer),
	}
	if cfg.BackendURL != "" {
		m.backend = NewBackend(cfg.BackendURL, nil)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (m *Manager) CurrentUser() *oauth.UserInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.user)
}

// OrgSession returns a copy of the active organization session, or nil.
func (m *Manager) OrgSession() *oauth.OrgSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyOrgSession(m.orgSession)
}

// ActiveOrganization returns a copy of the organization last switched to,
// or nil.
func (m *Manager) ActiveOrganization() *oauth.Organization {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeOrg == nil {
		return nil
	}
	org := *m.activeOrg
	return &org
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Notifications returns the state change channel. Sends never block; a
// slow consumer misses intermediate snapshots, not the latest state, which
// it can always query directly.
func (m *Manager) Notifications() <-chan Snapshot {
	return m.notifications
}

// Bootstrap restores a persisted session without user interaction. It
// tries, in order: the offline snapshot (if younger than the configured
// maximum), stored non-expired tokens, stored expired tokens plus a
// refresh. Corrupt or stale blobs are deleted and the next strategy runs.
// It never fails the caller; an unrestorable session just ends
// unauthenticated.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.mu.Lock()
	m.setStateLocked(StateLoading)
	m.mu.Unlock()

	if m.restoreOffline() {
		logging.Info("Session", "Restored offline session")
		m.afterAuthenticated()
		return
	}

	if m.restoreTokens(ctx) {
		logging.Info("Session", "Restored persisted tokens")
		m.afterAuthenticated()
		return
	}

	m.mu.Lock()
	m.setStateLocked(StateUnauthenticated)
	m.mu.Unlock()
}

// restoreOffline loads the offline snapshot if one exists and is within
// the configured maximum offline duration. Stale and corrupt snapshots are
// deleted.
func (m *Manager) restoreOffline() bool {
	data, err := m.store.Read(storage.OfflineSessionKey)
	if err != nil {
		return false
	}

	// A snapshot is only usable with both an identity and credentials; a
	// decodable blob missing either is as dead as an undecodable one.
	var snap oauth.OfflineSession
	if err := json.Unmarshal(data, &snap); err != nil || snap.UserID == "" || snap.Tokens.AccessToken == "" {
		logging.Warn("Session", "Discarding corrupt offline session: %v", err)
		_ = m.store.Delete(storage.OfflineSessionKey)
		return false
	}

	maxAge := m.cfg.MaxOfflineDuration
	if !maxAge.Never() && time.Since(snap.LastAuthenticatedAt) > maxAge.Duration() {
		logging.Info("Session", "Offline session older than %s, discarding", maxAge.Duration())
		_ = m.store.Delete(storage.OfflineSessionKey)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := snap.Tokens
	m.tokens = &tokens
	m.user = &oauth.UserInfo{Sub: snap.UserID, Email: snap.Email, OrgID: snap.OrgID}
	if snap.OrgID != "" {
		m.orgSession = &oauth.OrgSession{
			OrgID:       snap.OrgID,
			Role:        snap.Role,
			Permissions: oauth.ParsePermissions(snap.Permissions),
		}
	}
	m.lastAuth = snap.LastAuthenticatedAt
	m.setStateLocked(StateAuthenticated)
	return true
}

// restoreTokens loads the persisted token blob. Non-expired tokens restore
// the session directly; expired tokens are exchanged through one refresh
// attempt.
func (m *Manager) restoreTokens(ctx context.Context) bool {
	data, err := m.store.Read(storage.TokenBlobKey)
	if err != nil {
		return false
	}

	var tokens oauth.Tokens
	if err := json.Unmarshal(data, &tokens); err != nil || tokens.AccessToken == "" {
		logging.Warn("Session", "Discarding corrupt token blob: %v", err)
		_ = m.store.Delete(storage.TokenBlobKey)
		return false
	}

	if tokens.IsExpired() {
		if tokens.RefreshToken == "" {
			_ = m.store.Delete(storage.TokenBlobKey)
			return false
		}
		fresh, err := m.flow.Refresh(ctx, tokens.RefreshToken)
		if err != nil {
			logging.Warn("Session", "Bootstrap refresh failed: %v", err)
			if isTerminalRefreshError(err) {
				_ = m.store.Delete(storage.TokenBlobKey)
			}
			return false
		}
		tokens = *fresh
	}

	return m.adoptTokens(tokens)
}

// adoptTokens installs a token set plus the identity decoded from it.
// Tokens whose payload carries no subject are rejected.
func (m *Manager) adoptTokens(tokens oauth.Tokens) bool {
	user, err := oauth.DecodeUserInfo(tokens.AccessToken)
	if err != nil || user.Sub == "" {
		logging.Warn("Session", "Token blob carries no usable identity: %v", err)
		_ = m.store.Delete(storage.TokenBlobKey)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = &tokens
	m.user = user
	m.lastAuth = time.Now()
	m.persistTokensLocked()
	m.persistOfflineLocked()
	m.setStateLocked(StateAuthenticated)
	return true
}

// SignIn runs one interactive authorization flow and installs the result.
// A user cancellation is returned as oauth.ErrUserCancelled with the
// session back in the unauthenticated state; the call site decides whether
// that is worth reporting.
func (m *Manager) SignIn(ctx context.Context) error {
	result, err := m.flow.SignIn(ctx)
	if err != nil {
		m.mu.Lock()
		if m.state != StateAuthenticated {
			m.setStateLocked(StateUnauthenticated)
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.generation = uuid.NewString()
	tokens := result.Tokens
	user := result.User
	if user.OrgID == "" {
		user.OrgID = result.OrganizationID
	}
	m.tokens = &tokens
	m.user = &user
	m.orgSession = nil
	m.activeOrg = nil
	m.lastAuth = time.Now()
	m.persistTokensLocked()
	m.persistOfflineLocked()
	m.setStateLocked(StateAuthenticated)
	m.mu.Unlock()

	logging.Info("Session", "Signed in user=%s", user.Sub)
	m.afterAuthenticated()
	return nil
}

// CancelSignIn aborts an in-flight interactive sign-in. Safe to call at
// any time.
func (m *Manager) CancelSignIn() {
	m.flow.Cancel()
}

// SignOut is total and idempotent: it clears the in-memory session,
// deletes both persisted blobs, rotates the generation so in-flight
// refreshes are discarded, and stops the background loops. It always
// succeeds.
func (m *Manager) SignOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signOutLocked()
}

func (m *Manager) signOutLocked() {
	m.generation = uuid.NewString()
	m.tokens = nil
	m.user = nil
	m.orgSession = nil
	m.activeOrg = nil
	m.lastAuth = time.Time{}

	if err := m.store.Delete(storage.TokenBlobKey); err != nil {
		logging.Warn("Session", "Failed to delete token blob: %v", err)
	}
	if err := m.store.Delete(storage.OfflineSessionKey); err != nil {
		logging.Warn("Session", "Failed to delete offline session: %v", err)
	}

	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}

	m.setStateLocked(StateUnauthenticated)
	logging.Info("Session", "Signed out")
}

// ValidAccessToken returns an access token guaranteed not to expire within
// the foreground window, refreshing first when needed. It returns
// oauth.ErrNotAuthenticated without a session.
func (m *Manager) ValidAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state != StateAuthenticated || m.tokens == nil {
		m.mu.Unlock()
		return "", oauth.ErrNotAuthenticated
	}
	if !m.tokens.ExpiresSoon(foregroundRefreshWindow) {
		token := m.tokens.AccessToken
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	fresh, err := m.refresh(ctx)
	if err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// UnlockWithBiometrics re-reads the token blob through the gated store and
// restores the session from it. A failed gate check surfaces as an error
// wrapping oauth.ErrBiometricFailed.
func (m *Manager) UnlockWithBiometrics(ctx context.Context) error {
	if m.protected == nil {
		return &oauth.ConfigurationError{Reason: "no biometric gate configured"}
	}

	data, err := m.protected.Read(ctx, storage.TokenBlobKey)
	if err != nil {
		if errors.Is(err, oauth.ErrBiometricFailed) {
			return err
		}
		return oauth.ErrNotAuthenticated
	}

	var tokens oauth.Tokens
	if err := json.Unmarshal(data, &tokens); err != nil || tokens.AccessToken == "" {
		return oauth.ErrNotAuthenticated
	}
	if tokens.IsExpired() {
		fresh, err := m.flow.Refresh(ctx, tokens.RefreshToken)
		if err != nil {
			return err
		}
		tokens = *fresh
	}
	if !m.adoptTokens(tokens) {
		return oauth.ErrNotAuthenticated
	}

	m.afterAuthenticated()
	return nil
}

// refresh runs one deduplicated token refresh and installs the result if
// the session generation is unchanged. The singleflight key is the
// generation itself: callers within one session share a single exchange,
// while a session created after a sign-out never joins a flight still
// carrying the old session's refresh token. When a sign-out happened while
// the refresh was in flight, the fresh tokens are discarded and the caller
// gets oauth.ErrNotAuthenticated.
func (m *Manager) refresh(ctx context.Context) (oauth.Tokens, error) {
	m.mu.Lock()
	if m.tokens == nil {
		m.mu.Unlock()
		return oauth.Tokens{}, oauth.ErrNotAuthenticated
	}
	gen := m.generation
	refreshToken := m.tokens.RefreshToken
	m.mu.Unlock()

	v, err, _ := m.refreshGroup.Do(gen, func() (interface{}, error) {
		fresh, err := m.flow.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		return *fresh, nil
	})
	if err != nil {
		m.handleRefreshFailure(gen, err)
		return oauth.Tokens{}, err
	}
	fresh := v.(oauth.Tokens)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		// A sign-out (or a new sign-in) won the race.
		logging.Debug("Session", "Discarding refresh result from a stale generation")
		return oauth.Tokens{}, oauth.ErrNotAuthenticated
	}
	m.tokens = &fresh
	m.persistTokensLocked()
	m.persistOfflineLocked()
	return fresh, nil
}

// handleRefreshFailure signs out when the refresh token itself was
// rejected, but only if the failed exchange belonged to the current
// session generation: a late rejection from a pre-sign-out refresh must
// not tear down a session signed in since. Transport failures keep the
// session either way; the next refresh attempt may succeed once
// connectivity returns.
func (m *Manager) handleRefreshFailure(gen string, err error) {
	if !isTerminalRefreshError(err) {
		logging.Warn("Session", "Token refresh failed transiently: %v", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		logging.Debug("Session", "Ignoring rejected refresh from a stale generation")
		return
	}
	logging.Warn("Session", "Refresh token rejected, signing out: %v", err)
	m.signOutLocked()
}

// isTerminalRefreshError reports whether a refresh failure means the
// refresh token is dead (the issuer answered with an error status) rather
// than the network being down.
func isTerminalRefreshError(err error) bool {
	var netErr *oauth.NetworkError
	if errors.As(err, &netErr) {
		return netErr.StatusCode >= 400
	}
	var respErr *oauth.InvalidResponseError
	return errors.As(err, &respErr)
}

// persistTokensLocked writes the current token set to storage. Persistence
// failures are logged, not surfaced; the in-memory session stays usable.
func (m *Manager) persistTokensLocked() {
	if m.tokens == nil {
		return
	}
	data, err := json.Marshal(m.tokens)
	if err != nil {
		logging.Error("Session", err, "Failed to encode tokens")
		return
	}
	if err := m.store.Save(storage.TokenBlobKey, data); err != nil {
		logging.Warn("Session", "Failed to persist tokens: %v", err)
	}
}

// persistOfflineLocked writes the denormalized offline snapshot.
func (m *Manager) persistOfflineLocked() {
	if m.tokens == nil || m.user == nil {
		return
	}
	snap := oauth.OfflineSession{
		Tokens:              *m.tokens,
		UserID:              m.user.Sub,
		Email:               m.user.Email,
		LastAuthenticatedAt: m.lastAuth,
	}
	if m.orgSession != nil {
		snap.OrgID = m.orgSession.OrgID
		snap.Role = m.orgSession.Role
		for _, p := range m.orgSession.Permissions {
			snap.Permissions = append(snap.Permissions, string(p))
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		logging.Error("Session", err, "Failed to encode offline session")
		return
	}
	if err := m.store.Save(storage.OfflineSessionKey, data); err != nil {
		logging.Warn("Session", "Failed to persist offline session: %v", err)
	}
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.publishLocked()
}

func (m *Manager) publishLocked() {
	select {
	case m.notifications <- m.snapshotLocked():
	default:
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		State: m.state,
		User:  copyUser(m.user),
		Org:   copyOrgSession(m.orgSession),
	}
	if m.tokens != nil {
		snap.TokensExpireAt = m.tokens.ExpiresAt
	}
	return snap
}

func copyUser(u *oauth.UserInfo) *oauth.UserInfo {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func copyOrgSession(s *oauth.OrgSession) *oauth.OrgSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Permissions = append([]oauth.Permission(nil), s.Permissions...)
	return &c
}
