package session

import (
	"context"
	"time"

	"authkit/pkg/logging"
)

// afterAuthenticated starts the background loops for a freshly
// authenticated session and runs one immediate invariant check.
func (m *Manager) afterAuthenticated() {
	m.mu.Lock()
	if m.loopCancel == nil && m.state == StateAuthenticated {
		ctx, cancel := context.WithCancel(context.Background())
		m.loopCancel = cancel
		go m.runLoops(ctx)
	}
	m.mu.Unlock()

	m.enforceOnlineAuthInvariant()
}

// Close stops the background loops without touching the persisted session.
// The next Bootstrap restores it.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}
}

// runLoops multiplexes the proactive refresh ticker, the online invariant
// enforcement ticker, and connectivity edges on one goroutine. Enforcement
// runs only while online; it is suspended when connectivity drops and
// restarted on the offline to online edge, which also triggers an
// immediate check.
func (m *Manager) runLoops(ctx context.Context) {
	refreshTicker := time.NewTicker(refreshCheckInterval)
	defer refreshTicker.Stop()

	var enforceTicker *time.Ticker
	var enforceC <-chan time.Time
	startEnforce := func() {
		if enforceTicker == nil {
			enforceTicker = time.NewTicker(enforceInterval)
			enforceC = enforceTicker.C
		}
	}
	stopEnforce := func() {
		if enforceTicker != nil {
			enforceTicker.Stop()
			enforceTicker = nil
			enforceC = nil
		}
	}
	defer stopEnforce()

	if m.connectivity.Online() {
		startEnforce()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-refreshTicker.C:
			if m.connectivity.Online() {
				m.maybeRefresh(ctx)
			}

		case online := <-m.connectivity.Changes():
			if online {
				logging.Debug("Session", "Connectivity restored, resuming enforcement")
				m.enforceOnlineAuthInvariant()
				startEnforce()
			} else {
				logging.Debug("Session", "Connectivity lost, suspending enforcement")
				stopEnforce()
			}

		case <-enforceC:
			m.enforceOnlineAuthInvariant()
		}
	}
}

// maybeRefresh refreshes proactively when the access token expires within
// the background window.
func (m *Manager) maybeRefresh(ctx context.Context) {
	m.mu.Lock()
	due := m.state == StateAuthenticated && m.tokens != nil &&
		m.tokens.ExpiresSoon(backgroundRefreshWindow)
	m.mu.Unlock()

	if !due {
		return
	}
	if _, err := m.refresh(ctx); err != nil {
		logging.Debug("Session", "Background refresh: %v", err)
	}
}

// enforceOnlineAuthInvariant repairs or tears down an online session that
// violates the auth invariant. A structurally broken session (no tokens or
// no identity) is signed out immediately. Expired tokens get one refresh
// attempt; a rejected refresh signs out through the refresh failure path,
// a transport failure leaves the session for the next check. The check is
// skipped entirely while offline, so connectivity loss alone never signs
// out.
func (m *Manager) enforceOnlineAuthInvariant() {
	if !m.connectivity.Online() {
		return
	}

	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return
	}
	if m.tokens == nil || m.user == nil || m.user.Sub == "" {
		logging.Warn("Session", "Online auth invariant violated, signing out")
		m.signOutLocked()
		m.mu.Unlock()
		return
	}
	expired := m.tokens.IsExpired()
	m.mu.Unlock()

	if expired {
		if _, err := m.refresh(context.Background()); err != nil {
			logging.Debug("Session", "Invariant refresh: %v", err)
		}
	}
}
