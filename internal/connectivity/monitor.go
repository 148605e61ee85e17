package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type State int32

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

type Event struct {
	State State
	At    time.Time
}

// ProbeFunc reports reachability of the backend. A nil error means online.
type ProbeFunc func(ctx context.Context) error

// Monitor is the single source of truth for connectivity state. It probes on
// a fixed interval and fans out exactly one event per actual state change;
// repeated probes in the same state emit nothing.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration

	state atomic.Int32

	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	nextID      atomic.Uint64
	closed      bool

	wg sync.WaitGroup
}

func NewMonitor(probe ProbeFunc, interval time.Duration) *Monitor {
	return &Monitor{
		probe:       probe,
		interval:    interval,
		subscribers: make(map[uint64]chan Event),
	}
}

// Start initializes state from one synchronous probe (no event is emitted for
// initialization), then watches for transitions until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.state.Store(int32(m.check(ctx)))
	slog.Info("connectivity monitor starting", "state", m.State().String(), "interval", m.interval)

	m.wg.Add(1)
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("connectivity monitor shutting down")
			return
		case <-ticker.C:
			m.observe(m.check(ctx))
		}
	}
}

func (m *Monitor) check(ctx context.Context) State {
	if err := m.probe(ctx); err != nil {
		slog.Debug("connectivity probe failed", "error", err)
		return Offline
	}
	return Online
}

// observe records a probe result, emitting an event only on transition.
func (m *Monitor) observe(next State) {
	prev := State(m.state.Swap(int32(next)))
	if prev == next {
		return
	}

	slog.Info("connectivity changed", "from", prev.String(), "to", next.String())
	m.broadcast(Event{State: next, At: time.Now()})
}

func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) Subscribe() (uint64, chan Event) {
	id := m.nextID.Add(1)
	ch := make(chan Event, 8)

	m.mu.Lock()
	m.subscribers[id] = ch
	m.mu.Unlock()

	return id, ch
}

func (m *Monitor) Unsubscribe(id uint64) {
	m.mu.Lock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
	m.mu.Unlock()
}

func (m *Monitor) broadcast(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			// Skip slow subscribers
		}
	}
}

// Close closes all subscriber channels and waits for the probe loop to exit.
// The ctx passed to Start must already be cancelled.
func (m *Monitor) Close() {
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
}
