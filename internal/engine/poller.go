package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"biofilter_monitor/internal/clock"
	"biofilter_monitor/internal/logger"
	"biofilter_monitor/internal/models"
)

// DefaultFetchTimeout bounds a single Source.Fetch call.
const DefaultFetchTimeout = 5 * time.Second

// Poller owns the refresh timer and the fetch attempt.
//
// At most one fetch is in flight. The next timer is armed only after the
// previous fetch resolved and updated the store and the backoff.
type Poller struct {
	store      *Store
	source     Source
	synth      *Synthesizer
	backoff    *Backoff
	visibility *VisibilitySupervisor
	sched      clock.Scheduler
	log        *logger.Logger
	obs        Observer
	events     EventSink
	timeout    time.Duration

	mu       sync.Mutex
	running  bool
	gen      uint64 // bumped on Start/Stop; stale fetch results are dropped
	timerSeq uint64 // bumped whenever the pending timer is replaced or cancelled
	timer    clock.Timer
	nextAt   time.Time
	inFlight bool
	ctx      context.Context
	cancel   context.CancelFunc
	lastErr  error
}

// PollerStatus is a point-in-time view of the Poller.
type PollerStatus struct {
	Running     bool          `json:"running"`
	InFlight    bool          `json:"in_flight"`
	Failures    int           `json:"failures"`
	Delay       time.Duration `json:"delay_ns"`
	NextFetchIn time.Duration `json:"next_fetch_ns"`
	LastError   string        `json:"last_error,omitempty"`
}

// NewPoller wires a Poller. The synthesizer and backoff are owned by the Poller.
func NewPoller(
	store *Store,
	source Source,
	backoff *Backoff,
	visibility *VisibilitySupervisor,
	synth *Synthesizer,
	sched clock.Scheduler,
	log *logger.Logger,
	obs Observer,
	events EventSink,
	timeout time.Duration,
) *Poller {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Poller{
		store:      store,
		source:     source,
		synth:      synth,
		backoff:    backoff,
		visibility: visibility,
		sched:      sched,
		log:        log,
		obs:        obs,
		events:     events,
		timeout:    timeout,
	}
}

// Start attaches the visibility supervisor and performs an immediate fetch
// when the dashboard is visible. Calling Start on a running Poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.gen++
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.visibility.Start(func() { p.RefreshNow() }, p.pause)
	p.log.Infow("poller_started", "visible", p.visibility.Visible())

	if !p.RefreshNow() {
		p.log.Debugw("poller_waiting_for_viewer")
	}
}

// Stop cancels the pending timer and any in-flight fetch, and detaches the
// visibility supervisor. A fetch resolving after Stop does not touch the store.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.gen++
	p.cancelTimerLocked()
	cancel := p.cancel
	p.mu.Unlock()

	p.visibility.Stop()
	if cancel != nil {
		cancel()
	}
	p.log.Infow("poller_stopped")
}

// RefreshNow cancels the pending timer and fetches immediately. It returns
// false without fetching when the Poller is stopped, the dashboard is hidden,
// or a fetch is already in flight.
func (p *Poller) RefreshNow() bool {
	return p.run(false, 0)
}

// Running reports whether the Poller has been started and not stopped.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextFetchIn returns the time left until the scheduled fetch, or 0 when none is pending.
func (p *Poller) NextFetchIn() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextFetchInLocked()
}

// Status returns the current poller state.
func (p *Poller) Status() PollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := PollerStatus{
		Running:     p.running,
		InFlight:    p.inFlight,
		Failures:    p.backoff.Failures(),
		Delay:       p.backoff.Current(),
		NextFetchIn: p.nextFetchInLocked(),
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

func (p *Poller) nextFetchInLocked() time.Duration {
	if p.timer == nil {
		return 0
	}
	if d := p.nextAt.Sub(p.sched.Now()); d > 0 {
		return d
	}
	return 0
}

// pause is the visible→hidden callback. An in-flight fetch still resolves,
// but it will not reschedule while hidden.
func (p *Poller) pause() {
	p.mu.Lock()
	p.cancelTimerLocked()
	p.mu.Unlock()
	p.log.Debugw("poller_paused")
}

func (p *Poller) onTimer(seq uint64) {
	p.run(true, seq)
}

// run performs one fetch cycle. fromTimer callbacks are dropped if their
// timer was cancelled or replaced after they were armed.
func (p *Poller) run(fromTimer bool, seq uint64) bool {
	p.mu.Lock()
	if fromTimer && seq != p.timerSeq {
		p.mu.Unlock()
		return false
	}
	if fromTimer {
		p.timer = nil
	}
	if !p.running || p.inFlight || !p.visibility.Visible() {
		p.mu.Unlock()
		return false
	}
	p.cancelTimerLocked()
	p.inFlight = true
	gen := p.gen
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	p.mu.Unlock()

	started := p.sched.Now()
	reading, err := p.source.Fetch(ctx)
	cancel()
	took := p.sched.Now().Sub(started)

	p.mu.Lock()
	p.inFlight = false
	if !p.running || gen != p.gen {
		// Restarted while this fetch was out: Start's own fetch was refused,
		// so the loop has to be re-armed here.
		if p.running && p.timer == nil && p.visibility.Visible() {
			p.scheduleLocked(p.backoff.Current())
		}
		p.mu.Unlock()
		p.log.Debugw("fetch_result_discarded", "err", err)
		return true
	}

	var (
		delay time.Duration
		event *models.EngineEvent
	)
	if err != nil {
		p.store.MergeFetched(p.synth.Next(), models.OriginSynthetic)
		delay = p.backoff.OnFailure()
		p.lastErr = err
		p.log.Warnw("fetch_failed",
			"err", err,
			"failures", p.backoff.Failures(),
			"retry_in", delay,
		)
		event = &models.EngineEvent{
			Type:        models.EventFetchFailed,
			Description: fmt.Sprintf("Fetch failed; serving synthetic data, retry in %s", delay),
			Metadata: map[string]any{
				"error":    err.Error(),
				"failures": p.backoff.Failures(),
				"retry_ms": delay.Milliseconds(),
			},
		}
	} else {
		failures := p.backoff.Failures()
		p.store.MergeFetched(reading, models.OriginFetched)
		delay = p.backoff.OnSuccess()
		p.lastErr = nil
		if failures > 0 {
			p.log.Infow("fetch_recovered", "after_failures", failures)
			event = &models.EngineEvent{
				Type:        models.EventFetchRecovered,
				Description: fmt.Sprintf("Fetch recovered after %d failures", failures),
				Metadata:    map[string]any{"after_failures": failures},
			}
		}
	}

	if p.visibility.Visible() {
		p.scheduleLocked(delay)
	}
	p.mu.Unlock()

	p.obs.FetchDone(err == nil, took)
	p.obs.BackoffDelay(delay)
	if event != nil {
		emit(p.sched, p.events, p.log, *event)
	}
	return true
}

func (p *Poller) scheduleLocked(d time.Duration) {
	p.cancelTimerLocked()
	seq := p.timerSeq
	p.nextAt = p.sched.Now().Add(d)
	p.timer = p.sched.AfterFunc(d, func() { p.onTimer(seq) })
}

func (p *Poller) cancelTimerLocked() {
	p.timerSeq++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
