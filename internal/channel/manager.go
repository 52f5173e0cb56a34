// Package channel owns the lifecycle of logical feed subscriptions: at most
// one live subscription per feed key, debounced creation to absorb rapid
// open/close churn, and unconditional synchronous teardown.
package channel

import (
	"context"
	"log"
	"sync"
	"time"
)

type Status int

const (
	StatusIdle Status = iota
	StatusDebouncing
	StatusSubscribed
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDebouncing:
		return "debouncing"
	case StatusSubscribed:
		return "subscribed"
	case StatusDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// DefaultDebounce absorbs mount/unmount churn from view visibility toggles.
const DefaultDebounce = 100 * time.Millisecond

type subscription struct {
	feed    string
	handler Handler
	state   Status
	timer   Timer
	handle  Handle
	gen     uint64
}

// Manager tracks one subscription per feed key. Open is idempotent while a
// subscription is debouncing or live; Close tears down from any state and is
// safe to call on every exit path.
type Manager struct {
	mu        sync.Mutex
	transport Transport
	clock     Clock
	debounce  time.Duration
	subs      map[string]*subscription
	ctx       context.Context
	cancel    context.CancelFunc
	gen       uint64
}

type ManagerOption func(*Manager)

func WithClock(clock Clock) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) { m.debounce = d }
}

func NewManager(transport Transport, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		transport: transport,
		clock:     NewRealClock(),
		debounce:  DefaultDebounce,
		subs:      make(map[string]*subscription),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscription is the caller's handle on one feed key. Handles for the same
// key are interchangeable; they all observe the same underlying subscription.
type Subscription struct {
	feed string
	m    *Manager
}

func (s *Subscription) Feed() string   { return s.feed }
func (s *Subscription) Status() Status { return s.m.Status(s.feed) }
func (s *Subscription) Close()         { s.m.Close(s.feed) }

// Open requests a live subscription for feed. If one is already debouncing or
// subscribed, the existing subscription is returned and no new transport
// action happens. The actual subscribe occurs only after the debounce window
// elapses without an intervening Close.
func (m *Manager) Open(feed string, handler Handler) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subs[feed]; exists {
		return &Subscription{feed: feed, m: m}
	}

	m.gen++
	sub := &subscription{
		feed:    feed,
		handler: handler,
		state:   StatusDebouncing,
		gen:     m.gen,
	}
	m.subs[feed] = sub

	gen := sub.gen
	sub.timer = m.clock.AfterFunc(m.debounce, func() {
		m.activate(feed, gen)
	})
	return &Subscription{feed: feed, m: m}
}

func (m *Manager) activate(feed string, gen uint64) {
	m.mu.Lock()
	sub, ok := m.subs[feed]
	if !ok || sub.gen != gen || sub.state != StatusDebouncing {
		m.mu.Unlock()
		return
	}
	handler := sub.handler
	m.mu.Unlock()

	// Subscribe outside the lock; Close during this window is handled below.
	handle, err := m.transport.Subscribe(m.ctx, feed, handler)

	m.mu.Lock()
	sub, ok = m.subs[feed]
	if !ok || sub.gen != gen {
		// Closed while the subscribe was in flight; release immediately.
		m.mu.Unlock()
		if handle != nil {
			handle.Unsubscribe()
		}
		return
	}

	if err != nil {
		sub.state = StatusDisconnected
		m.mu.Unlock()
		log.Printf("⚠️  Feed %q failed to subscribe: %v", feed, err)
		return
	}

	sub.handle = handle
	sub.state = StatusSubscribed
	m.mu.Unlock()
}

// Close tears down the subscription for feed from any state. Canceling inside
// the debounce window means no transport subscription is ever created.
func (m *Manager) Close(feed string) {
	m.mu.Lock()
	sub, ok := m.subs[feed]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.subs, feed)
	if sub.timer != nil {
		sub.timer.Stop()
	}
	handle := sub.handle
	m.mu.Unlock()

	if handle != nil {
		if err := handle.Unsubscribe(); err != nil {
			log.Printf("⚠️  Error unsubscribing from feed %q: %v", feed, err)
		}
	}
}

// Status reports the lifecycle state of a feed key.
func (m *Manager) Status(feed string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[feed]
	if !ok {
		return StatusIdle
	}
	return sub.state
}

// CloseAll releases every subscription. Used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	feeds := make([]string, 0, len(m.subs))
	for feed := range m.subs {
		feeds = append(feeds, feed)
	}
	m.mu.Unlock()

	for _, feed := range feeds {
		m.Close(feed)
	}
	m.cancel()
}
