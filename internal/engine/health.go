package engine

import (
	"context"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkessler/taskloom/internal/remote"
)

// debounceThreshold is the number of consecutive consistent probe results
// required before the monitor accepts a state transition. A single flapping
// probe in either direction never causes a transition.
const debounceThreshold = 2

// HealthConfig holds the network health monitor's tunables.
type HealthConfig struct {
	// Host is the remote hostname probed via DNS resolution.
	Host string
	// Interval between probes.
	Interval time.Duration
	// ProbeTimeout bounds one probe (DNS plus health request).
	ProbeTimeout time.Duration
}

// Monitor is the ONLINE/OFFLINE state machine driving reconnection and
// resync. It probes reachability on a fixed interval, debounces flapping,
// and runs the recovery sequence when connectivity returns.
type Monitor struct {
	config HealthConfig
	remote remote.Client
	bus    *Bus
	logger *log.Logger

	// probe is injectable for tests; defaults to DNS + health request.
	probe func(ctx context.Context) error

	// onRecover runs after an OFFLINE period ends: resubscribe, full push,
	// full pull, in that order.
	onRecover func(ctx context.Context)

	online     atomic.Bool
	recovering atomic.Bool
	wasOffline bool

	mu        sync.Mutex
	successes int
	failures  int
}

// NewMonitor creates a health monitor. Before the first probe completes the
// state is assumed online so first-run activity is not suppressed.
func NewMonitor(config HealthConfig, rc remote.Client, bus *Bus, onRecover func(ctx context.Context), logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[health] ", log.LstdFlags)
	}
	if config.Interval <= 0 {
		config.Interval = 15 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	m := &Monitor{
		config:    config,
		remote:    rc,
		bus:       bus,
		logger:    logger,
		onRecover: onRecover,
	}
	m.probe = m.defaultProbe
	m.online.Store(true)
	return m
}

// Online reports the current debounced state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Run probes on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce runs one probe and feeds its result into the debounce counters.
func (m *Monitor) ProbeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	err := m.probe(probeCtx)
	cancel()

	m.Observe(ctx, err == nil)
}

// Observe feeds one reachability result into the state machine. Exported so
// platform integrations (OS network change notifications) can feed it too.
func (m *Monitor) Observe(ctx context.Context, reachable bool) {
	m.mu.Lock()
	if reachable {
		m.successes++
		m.failures = 0
	} else {
		m.failures++
		m.successes = 0
	}
	successes, failures := m.successes, m.failures
	m.mu.Unlock()

	if reachable && successes >= debounceThreshold && !m.online.Load() {
		m.toOnline(ctx)
	}
	if !reachable && failures >= debounceThreshold && m.online.Load() {
		m.toOffline()
	}
}

func (m *Monitor) toOnline(ctx context.Context) {
	m.online.Store(true)
	m.logger.Printf("Network is back: ONLINE")
	if m.bus != nil {
		m.bus.Publish(StatusEvent{Online: true})
		m.bus.Publish(NoticeEvent{Level: LevelInfo, Message: "connection restored, resyncing"})
	}

	if !m.wasOffline || m.onRecover == nil {
		return
	}
	// One recovery sequence at a time; a transition racing an unfinished
	// recovery is absorbed rather than stacked.
	if !m.recovering.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer m.recovering.Store(false)
		m.onRecover(ctx)
	}()
}

func (m *Monitor) toOffline() {
	m.online.Store(false)
	m.wasOffline = true
	m.logger.Printf("Network is gone: OFFLINE")
	if m.bus != nil {
		m.bus.Publish(StatusEvent{Online: false})
		m.bus.Publish(NoticeEvent{Level: LevelWarning, Message: "connection lost, working offline"})
	}
}

// defaultProbe resolves the remote host and then issues a bounded health
// request. Any HTTP response, even an error status, counts as reachable;
// only DNS failure or a refused/timed-out connection counts as unreachable.
func (m *Monitor) defaultProbe(ctx context.Context) error {
	if m.config.Host != "" {
		if _, err := net.DefaultResolver.LookupHost(ctx, m.config.Host); err != nil {
			return err
		}
	}
	return m.remote.Health(ctx)
}
