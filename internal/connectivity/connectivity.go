package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"authkit/pkg/logging"
)

// DefaultProbeInterval is how often the monitor probes for connectivity.
const DefaultProbeInterval = 10 * time.Second

// Notifier reports connectivity and emits a signal on every change.
// Consumers act on edges only: an offline->online transition restarts the
// session manager's enforcement loop, online->offline suspends it.
type Notifier interface {
	// Online reports the current connectivity state.
	Online() bool

	// Changes returns a channel receiving the new state on every change.
	Changes() <-chan bool
}

// Static is a Notifier with an externally driven state. The CLI uses it
// pinned online; tests flip it to simulate connectivity edges.
type Static struct {
	mu     sync.Mutex
	online bool
	ch     chan bool
}

// NewStatic creates a static notifier in the given state.
func NewStatic(online bool) *Static {
	return &Static{online: online, ch: make(chan bool, 8)}
}

// Online reports the current state.
func (s *Static) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Changes returns the change channel.
func (s *Static) Changes() <-chan bool {
	return s.ch
}

// Set updates the state, emitting a change signal when it actually flips.
func (s *Static) Set(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()

	if changed {
		select {
		case s.ch <- online:
		default:
		}
	}
}

// Monitor probes a URL periodically and emits connectivity edges. A probe
// succeeds on any HTTP response; only transport failures count as offline.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	static *Static
}

// MonitorOption configures the Monitor.
type MonitorOption func(*Monitor)

// WithProbeInterval overrides the probe interval.
func WithProbeInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.interval = interval
	}
}

// WithProbeClient overrides the HTTP client used for probes.
func WithProbeClient(client *http.Client) MonitorOption {
	return func(m *Monitor) {
		m.client = client
	}
}

// NewMonitor creates a monitor probing probeURL. The monitor starts in the
// online state; Run drives subsequent transitions.
func NewMonitor(probeURL string, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		probeURL: probeURL,
		interval: DefaultProbeInterval,
		client:   &http.Client{Timeout: 5 * time.Second},
		static:   NewStatic(true),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports the last probed state.
func (m *Monitor) Online() bool { return m.static.Online() }

// Changes returns the change channel.
func (m *Monitor) Changes() <-chan bool { return m.static.Changes() }

// Run probes until ctx is cancelled. It blocks; run it in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := m.probe(ctx)
			if online != m.static.Online() {
				logging.Info("Connectivity", "Connectivity changed: online=%t", online)
			}
			m.static.Set(online)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
