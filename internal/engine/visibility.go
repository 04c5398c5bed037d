package engine

import (
	"sync"
)

// Visibility is an environment-provided signal telling whether the dashboard
// is currently being viewed.
type Visibility interface {
	Visible() bool
	// Watch registers fn to be called on every change. The returned func unsubscribes.
	Watch(fn func(visible bool)) (cancel func())
}

// AlwaysVisible is a Visibility for headless deployments. It never changes.
type AlwaysVisible struct{}

// Visible always returns true.
func (AlwaysVisible) Visible() bool { return true }

// Watch never calls fn.
func (AlwaysVisible) Watch(func(bool)) (cancel func()) { return func() {} }

// VisibilitySupervisor translates visibility transitions into pause/resume
// callbacks for the poller. It has no timer of its own.
type VisibilitySupervisor struct {
	signal Visibility

	mu               sync.Mutex
	lastKnownVisible bool
	onResume         func()
	onPause          func()
	unwatch          func()
}

// NewVisibilitySupervisor wraps signal. A nil signal behaves as AlwaysVisible.
func NewVisibilitySupervisor(signal Visibility) *VisibilitySupervisor {
	if signal == nil {
		signal = AlwaysVisible{}
	}
	return &VisibilitySupervisor{signal: signal, lastKnownVisible: signal.Visible()}
}

// Start begins observing. hidden→visible calls onResume synchronously,
// visible→hidden calls onPause. Calling Start again replaces the callbacks.
func (v *VisibilitySupervisor) Start(onResume, onPause func()) {
	v.mu.Lock()
	if v.unwatch != nil {
		v.unwatch()
	}
	v.onResume = onResume
	v.onPause = onPause
	v.mu.Unlock()

	// Subscribe before sampling so a change landing in between is not lost.
	unwatch := v.signal.Watch(v.handle)

	v.mu.Lock()
	v.unwatch = unwatch
	v.lastKnownVisible = v.signal.Visible()
	v.mu.Unlock()
}

// Stop detaches from the signal.
func (v *VisibilitySupervisor) Stop() {
	v.mu.Lock()
	unwatch := v.unwatch
	v.unwatch = nil
	v.onResume = nil
	v.onPause = nil
	v.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

// Visible returns the last observed visibility.
func (v *VisibilitySupervisor) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastKnownVisible
}

func (v *VisibilitySupervisor) handle(visible bool) {
	v.mu.Lock()
	prev := v.lastKnownVisible
	v.lastKnownVisible = visible
	resume, pause := v.onResume, v.onPause
	v.mu.Unlock()

	switch {
	case !prev && visible && resume != nil:
		resume()
	case prev && !visible && pause != nil:
		pause()
	}
}

// Presence is a Visibility fed by connected viewers. The dashboard counts as
// visible while at least one viewer reports its page visible.
type Presence struct {
	// notifyMu serializes Report/Leave so watchers observe changes in order.
	notifyMu sync.Mutex

	mu       sync.Mutex
	viewers  map[string]bool
	watchers map[int]func(bool)
	nextID   int
	visible  bool
}

// NewPresence returns a Presence with no viewers (hidden).
func NewPresence() *Presence {
	return &Presence{
		viewers:  make(map[string]bool),
		watchers: make(map[int]func(bool)),
	}
}

// Visible reports whether any viewer is looking at the dashboard.
func (p *Presence) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Watch subscribes fn to aggregate visibility changes.
func (p *Presence) Watch(fn func(bool)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.watchers, id)
	}
}

// Report records the page visibility of one viewer.
func (p *Presence) Report(viewerID string, visible bool) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.mu.Lock()
	p.viewers[viewerID] = visible
	p.recomputeAndNotify()
}

// Leave forgets a disconnected viewer.
func (p *Presence) Leave(viewerID string) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.mu.Lock()
	delete(p.viewers, viewerID)
	p.recomputeAndNotify()
}

// Viewers returns the number of connected viewers, visible or not.
func (p *Presence) Viewers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.viewers)
}

// recomputeAndNotify must be called with p.mu held; it releases the lock
// before invoking watchers.
func (p *Presence) recomputeAndNotify() {
	visible := false
	for _, v := range p.viewers {
		if v {
			visible = true
			break
		}
	}
	changed := visible != p.visible
	p.visible = visible
	var fns []func(bool)
	if changed {
		fns = make([]func(bool), 0, len(p.watchers))
		for _, fn := range p.watchers {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}
