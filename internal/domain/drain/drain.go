// Package drain implements weak/strong reference counted graceful shutdown,
// used by the bind runtime to let an accept loop terminate promptly while
// in-flight connections finish within their deadline.
package drain

import "sync"

// Mode is carried on the drain broadcast so a connection can choose how to
// wind down.
type Mode int

const (
	// ModeGraceful asks connections to finish in-flight work and refuse new
	// work (GOAWAY for H2, Connection: close for H1).
	ModeGraceful Mode = iota
	// ModeImmediate asks connections to stop as soon as possible.
	ModeImmediate
)

// Drain is a single shutdown coordination point. The accept loop holds only
// weak references (via an Upgrader) so it never itself blocks completion;
// each accepted connection upgrades to a strong reference (a ReleaseFunc)
// for the duration of that connection.
type Drain struct {
	mu        sync.Mutex
	started   bool
	mode      Mode
	startCh   chan struct{}
	forceCh   chan struct{}
	forceOnce sync.Once

	refs        int
	releasedCh  chan struct{}
	releaseOnce sync.Once
}

// New creates a Drain with no drain in progress and zero outstanding
// strong references.
func New() *Drain {
	return &Drain{
		startCh:    make(chan struct{}),
		forceCh:    make(chan struct{}),
		releasedCh: make(chan struct{}),
	}
}

// StartDrain begins the drain with the given mode. Idempotent: the mode of
// the first call wins. Safe to call from any goroutine.
func (d *Drain) StartDrain(mode Mode) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mode = mode
	close(d.startCh)
	d.maybeRelease()
	d.mu.Unlock()
}

// StartDrainAndWait starts the drain and blocks until every strong
// reference taken via an Upgrader has been released. After it returns, no
// live ReleaseFunc handle exists for this Drain.
func (d *Drain) StartDrainAndWait(mode Mode) {
	d.StartDrain(mode)
	<-d.releasedCh
}

// Draining reports whether a drain has been started. The readiness probe
// uses this to fail itself the moment shutdown begins, ahead of any
// individual bind actually refusing new connections.
func (d *Drain) Draining() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// ForceShutdown signals connections still alive past their grace deadline
// to stop immediately, independent of the graceful start signal. Idempotent.
func (d *Drain) ForceShutdown() {
	d.forceOnce.Do(func() { close(d.forceCh) })
}

// maybeRelease closes releasedCh exactly once, the first time drain has
// started and no strong references remain. Must be called with mu held.
func (d *Drain) maybeRelease() {
	if d.started && d.refs == 0 {
		d.releaseOnce.Do(func() { close(d.releasedCh) })
	}
}

// ReleaseFunc drops one strong reference. Calling it more than once is a
// no-op; the reference is only ever counted once.
type ReleaseFunc func()

// Upgrader is a weak handle on a Drain: holding one never blocks
// StartDrainAndWait. Accept loops keep an Upgrader and call Upgrade() per
// accepted connection to obtain a Watch plus a strong ReleaseFunc for that
// connection's lifetime.
type Upgrader struct {
	d        *Drain
	mu       sync.Mutex
	disabled bool
}

// NewUpgrader returns a weak handle on d.
func (d *Drain) NewUpgrader() *Upgrader {
	return &Upgrader{d: d}
}

// Upgrade takes a strong reference, returning a Watch and the ReleaseFunc
// to drop it. Returns ok=false once Disable has been called, turning
// subsequent upgrades into no-ops so the accept loop itself can terminate.
func (u *Upgrader) Upgrade() (*Watch, ReleaseFunc, bool) {
	u.mu.Lock()
	disabled := u.disabled
	u.mu.Unlock()
	if disabled {
		return nil, nil, false
	}

	d := u.d
	d.mu.Lock()
	d.refs++
	d.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			d.mu.Lock()
			d.refs--
			d.maybeRelease()
			d.mu.Unlock()
		})
	}
	return &Watch{d: d}, release, true
}

// Disable makes all subsequent Upgrade calls return ok=false.
func (u *Upgrader) Disable() {
	u.mu.Lock()
	u.disabled = true
	u.mu.Unlock()
}

// Watch observes a Drain's lifecycle from a connection that has already
// taken a strong reference.
type Watch struct {
	d *Drain
}

// C returns a channel closed when the drain has started.
func (w *Watch) C() <-chan struct{} { return w.d.startCh }

// ForceC returns a channel closed when a forced shutdown has been
// signalled, independent of the graceful start.
func (w *Watch) ForceC() <-chan struct{} { return w.d.forceCh }

// Mode returns the drain mode. Only meaningful after C() is closed.
func (w *Watch) Mode() Mode {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return w.d.mode
}

// GracefulConn is the subset of an H1/H2 connection a Watch needs to drive
// its shutdown: a way to ask it to wind down, and a way to learn it's done.
type GracefulConn interface {
	GracefulShutdown()
	Done() <-chan struct{}
}

// WrapConnection starts a goroutine that calls GracefulShutdown on conn as
// soon as the drain starts, then returns once conn reports completion or
// the force-shutdown signal fires, whichever comes first. The caller's
// connection-serving goroutine is expected to exit when conn.Done() closes.
func (w *Watch) WrapConnection(conn GracefulConn) {
	go func() {
		select {
		case <-w.C():
		case <-conn.Done():
			return
		}
		conn.GracefulShutdown()
		select {
		case <-conn.Done():
		case <-w.ForceC():
		}
	}()
}

// RunWithDrain wraps fn (which itself owns a sub-Drain it drains components
// against) with a deadline: when the parent drain starts, fn's sub-drain is
// started with the same mode; if fn has not returned within deadline, the
// sub-drain's force-shutdown is triggered.
func RunWithDrain(parent *Drain, deadline <-chan struct{}, fn func(sub *Drain) error) error {
	sub := New()
	done := make(chan error, 1)
	go func() { done <- fn(sub) }()

	select {
	case err := <-done:
		return err
	case <-parent.startCh:
	}

	parent.mu.Lock()
	mode := parent.mode
	parent.mu.Unlock()
	sub.StartDrain(mode)

	select {
	case err := <-done:
		return err
	case <-deadline:
		sub.ForceShutdown()
		return <-done
	}
}
