package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock collects AfterFunc callbacks and fires them only when the test
// says so, so no test waits on a real debounce window.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	f       func()
	stopped bool
	fired   bool
	mu      *sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f, mu: &c.mu}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fire runs every pending un-stopped timer callback.
func (c *fakeClock) fire() {
	c.mu.Lock()
	pending := make([]*fakeTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			pending = append(pending, t)
		}
	}
	c.mu.Unlock()

	for _, t := range pending {
		t.f()
	}
}

type fakeTransport struct {
	mu           sync.Mutex
	subscribes   int
	unsubscribes int
	failNext     bool
	handlers     map[string]Handler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]Handler)}
}

func (t *fakeTransport) Subscribe(ctx context.Context, feed string, handler Handler) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext {
		t.failNext = false
		return nil, errors.New("broker unavailable")
	}
	t.subscribes++
	t.handlers[feed] = handler
	return &fakeHandle{t: t, feed: feed}, nil
}

func (t *fakeTransport) deliver(feed string, payload []byte) {
	t.mu.Lock()
	handler := t.handlers[feed]
	t.mu.Unlock()
	if handler != nil {
		handler(payload)
	}
}

func (t *fakeTransport) counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribes, t.unsubscribes
}

type fakeHandle struct {
	t    *fakeTransport
	feed string
}

func (h *fakeHandle) Unsubscribe() error {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	h.t.unsubscribes++
	delete(h.t.handlers, h.feed)
	return nil
}

func TestOpen_SubscribesAfterDebounce(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	m := NewManager(transport, WithClock(clock))

	sub := m.Open("board:1", func([]byte) {})

	if got := sub.Status(); got != StatusDebouncing {
		t.Errorf("Expected debouncing before the window elapses, got %s", got)
	}
	if subs, _ := transport.counts(); subs != 0 {
		t.Errorf("Expected no subscribe during debounce, got %d", subs)
	}

	clock.fire()

	if got := sub.Status(); got != StatusSubscribed {
		t.Errorf("Expected subscribed after debounce, got %s", got)
	}
	if subs, _ := transport.counts(); subs != 1 {
		t.Errorf("Expected exactly 1 subscribe, got %d", subs)
	}
}

func TestOpen_IdempotentForSameFeed(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	m := NewManager(transport, WithClock(clock))

	for i := 0; i < 5; i++ {
		m.Open("board:1", func([]byte) {})
	}
	clock.fire()

	subs, _ := transport.counts()
	if subs != 1 {
		t.Errorf("Expected 5 opens to yield 1 subscription, got %d", subs)
	}

	// Opening again once live still creates nothing new.
	m.Open("board:1", func([]byte) {})
	clock.fire()
	subs, _ = transport.counts()
	if subs != 1 {
		t.Errorf("Expected reopen of a live feed to be a no-op, got %d subscribes", subs)
	}

	m.Close("board:1")
	_, unsubs := transport.counts()
	if unsubs != 1 {
		t.Errorf("Expected exactly 1 unsubscribe on close, got %d", unsubs)
	}
}

func TestClose_DuringDebounceCreatesNothing(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	m := NewManager(transport, WithClock(clock))

	m.Open("board:1", func([]byte) {})
	m.Close("board:1")
	clock.fire()

	subs, unsubs := transport.counts()
	if subs != 0 || unsubs != 0 {
		t.Errorf("Expected no transport traffic for a canceled open, got %d/%d", subs, unsubs)
	}
	if got := m.Status("board:1"); got != StatusIdle {
		t.Errorf("Expected idle after cancel, got %s", got)
	}
}

func TestClose_IsUnconditional(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	m := NewManager(transport, WithClock(clock))

	// Closing a feed that was never opened must not panic or subscribe.
	m.Close("board:unknown")

	m.Open("board:1", func([]byte) {})
	clock.fire()
	m.Close("board:1")
	m.Close("board:1")

	_, unsubs := transport.counts()
	if unsubs != 1 {
		t.Errorf("Expected double close to release once, got %d unsubscribes", unsubs)
	}
}

func TestOpen_ReopenAfterCloseSubscribesAgain(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	m := NewManager(transport, WithClock(clock))

	m.Open("board:1", func([]byte) {})
	clock.fire()
	m.Close("board:1")

	m.Open("board:1", func([]byte) {})
	clock.fire()

	subs, unsubs := transport.counts()
	if subs != 2 || unsubs != 1 {
		t.Errorf("Expected 2 subscribes and 1 unsubscribe, got %d/%d", subs, unsubs)
	}
}

func TestOpen_TransportFailureReportsDisconnected(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.failNext = true
	m := NewManager(transport, WithClock(clock))

	sub := m.Open("board:1", func([]byte) {})
	clock.fire()

	if got := sub.Status(); got != StatusDisconnected {
		t.Errorf("Expected disconnected after transport failure, got %s", got)
	}

	// No auto-retry: the feed stays disconnected until the caller closes
	// and reopens it.
	clock.fire()
	if subs, _ := transport.counts(); subs != 0 {
		t.Errorf("Expected no retry subscribe, got %d", subs)
	}

	m.Close("board:1")
	m.Open("board:1", func([]byte) {})
	clock.fire()
	if got := m.Status("board:1"); got != StatusSubscribed {
		t.Errorf("Expected subscribed after explicit reopen, got %s", got)
	}
}

func TestManager_DeliversToHandler(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	m := NewManager(transport, WithClock(clock))

	var mu sync.Mutex
	var got []string
	m.Open("board:1", func(payload []byte) {
		mu.Lock()
		got = append(got, string(payload))
		mu.Unlock()
	})
	clock.fire()

	transport.deliver("board:1", []byte("hello"))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("Expected delivered payload, got %v", got)
	}
}

func TestCloseAll_ReleasesEveryFeed(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	m := NewManager(transport, WithClock(clock))

	m.Open("board:1", func([]byte) {})
	m.Open("board:2", func([]byte) {})
	clock.fire()

	m.CloseAll()

	_, unsubs := transport.counts()
	if unsubs != 2 {
		t.Errorf("Expected 2 unsubscribes, got %d", unsubs)
	}
	if m.Status("board:1") != StatusIdle || m.Status("board:2") != StatusIdle {
		t.Error("Expected all feeds idle after CloseAll")
	}
}
