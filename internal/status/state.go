// Package status tracks whether the backend is reachable and kicks off a
// queue drain whenever it becomes reachable.
package status

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deltadent/ServicePro-sub000/internal/bus"
	"github.com/deltadent/ServicePro-sub000/internal/store"
	intsync "github.com/deltadent/ServicePro-sub000/internal/sync"
)

// State is the monitor's view of backend reachability.
type State string

const (
	Unknown State = "UNKNOWN"
	Online  State = "ONLINE"
	Offline State = "OFFLINE"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Unknown: {Online, Offline},
	Online:  {Offline},
	Offline: {Online},
}

// Default probe settings.
const (
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
)

// Change is the payload of connectivity.changed events.
type Change struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// Pinger reports whether the backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Drainer replays the action queue.
type Drainer interface {
	IsSyncing() bool
	Drain(ctx context.Context) (intsync.Result, error)
}

// Options tune the prober. Zero durations take the defaults.
type Options struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	AutoDrain     bool
}

// Deps are the monitor's collaborators. Everything but Pinger may be nil.
type Deps struct {
	Pinger  Pinger
	Drainer Drainer
	DB      *store.DB
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// Monitor is the connectivity state machine. It starts in Unknown.
type Monitor struct {
	mu      sync.RWMutex
	current State

	pinger  Pinger
	drainer Drainer
	db      *store.DB
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options

	cancel context.CancelFunc
	loop   sync.WaitGroup
	drains sync.WaitGroup
}

// NewMonitor creates a monitor in the Unknown state.
func NewMonitor(d Deps, opts Options) *Monitor {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	return &Monitor{
		current: Unknown,
		pinger:  d.Pinger,
		drainer: d.Drainer,
		db:      d.DB,
		bus:     d.Bus,
		logger:  d.Logger,
		opts:    opts,
	}
}

// Current returns the current state.
func (m *Monitor) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Online reports whether the backend was reachable at the last observation.
func (m *Monitor) Online() bool {
	return m.Current() == Online
}

// Set records a reachability observation. Repeating the current state does
// nothing.
func (m *Monitor) Set(online bool) {
	to := Offline
	if online {
		to = Online
	}
	if m.Current() == to {
		return
	}
	if err := m.Transition(to); err != nil {
		// Lost a race with a concurrent Set to the same state.
		m.logger.Debug("connectivity transition skipped", zap.Error(err))
	}
}

// Transition moves to a new state. Returns error if transition is invalid.
func (m *Monitor) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	m.logger.Info("connectivity changed", zap.String("from", string(from)), zap.String("to", string(to)))
	m.bus.Emit(bus.ConnectivityChanged, Change{From: from, To: to})
	if to == Online {
		m.wentOnline()
	}
	return nil
}

func (m *Monitor) wentOnline() {
	if m.db != nil {
		if err := m.db.SetMeta(context.Background(), store.MetaLastOnlineAt, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			m.logger.Warn("failed to store last online time", zap.Error(err))
		}
	}
	if !m.opts.AutoDrain || m.drainer == nil || m.drainer.IsSyncing() {
		return
	}
	m.drains.Add(1)
	go func() {
		defer m.drains.Done()
		res, err := m.drainer.Drain(context.Background())
		if errors.Is(err, intsync.ErrSyncInProgress) {
			return
		}
		if err != nil {
			m.logger.Error("drain after reconnect failed", zap.Error(err))
			return
		}
		m.logger.Debug("drain after reconnect", zap.Int("processed", res.Processed), zap.Int("failed", res.Failed))
	}()
}

// Probe pings the backend once and records the outcome. A probe cut short by
// ctx records nothing.
func (m *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()
	err := m.pinger.Ping(pctx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		m.logger.Debug("probe failed", zap.Error(err))
	}
	m.Set(err == nil)
	return err == nil
}

// Start probes immediately and then every ProbeInterval until Stop or ctx
// is done.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.loop.Add(1)
	go func() {
		defer m.loop.Done()
		ticker := time.NewTicker(m.opts.ProbeInterval)
		defer ticker.Stop()
		for {
			m.Probe(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends probing and waits for any drain the monitor started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.loop.Wait()
	m.drains.Wait()
}
