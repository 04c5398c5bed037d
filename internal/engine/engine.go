// Package engine implements the live metrics refresh engine: the shared
// snapshot store, the backoff-driven poller gated by dashboard visibility,
// and the staged alert simulation that temporarily owns individual fields.
package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"biofilter_monitor/internal/clock"
	"biofilter_monitor/internal/logger"
	"biofilter_monitor/internal/models"
)

// ErrNoSource is returned by the placeholder source used when none is configured.
var ErrNoSource = errors.New("no metrics source configured")

// Config holds the engine options. Zero values use the defaults.
type Config struct {
	AutoRefresh      bool
	PollFloor        time.Duration
	PollCap          time.Duration
	FetchTimeout     time.Duration
	Peaks            Peaks
	AutoTriggerDelay time.Duration
	AutoTriggerEvery time.Duration
	HistorySize      int
}

// DefaultConfig returns the stock configuration with auto-refresh enabled.
func DefaultConfig() Config {
	return Config{
		AutoRefresh:      true,
		PollFloor:        DefaultPollFloor,
		PollCap:          DefaultPollCap,
		FetchTimeout:     DefaultFetchTimeout,
		Peaks:            DefaultPeaks(),
		AutoTriggerDelay: DefaultAutoTriggerDelay,
		AutoTriggerEvery: DefaultAutoTriggerEvery,
		HistorySize:      DefaultHistorySize,
	}
}

// Deps are the collaborators of an Engine. Nil fields get safe defaults.
type Deps struct {
	Source     Source
	Scheduler  clock.Scheduler
	Visibility Visibility
	Logger     *logger.Logger
	Observer   Observer
	Events     EventSink
	Rand       *rand.Rand
}

// Engine owns every component, timer handle and lock of one session.
type Engine struct {
	store      *Store
	poller     *Poller
	sequencer  *Sequencer
	visibility Visibility
	sched      clock.Scheduler
	log        *logger.Logger
	events     EventSink

	autoRefresh atomic.Bool

	mu      sync.Mutex
	started bool
	ctx     context.Context
}

// New builds an Engine from cfg and deps.
func New(cfg Config, deps Deps) *Engine {
	if deps.Scheduler == nil {
		deps.Scheduler = clock.Real{}
	}
	if deps.Visibility == nil {
		deps.Visibility = AlwaysVisible{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Events == nil {
		deps.Events = nopSink{}
	}
	if deps.Source == nil {
		deps.Source = SourceFunc(func(context.Context) (models.Reading, error) { return nil, ErrNoSource })
	}
	log := logger.OrNop(deps.Logger)

	store := NewStore(deps.Scheduler, cfg.HistorySize)
	supervisor := NewVisibilitySupervisor(deps.Visibility)
	poller := NewPoller(
		store,
		deps.Source,
		NewBackoff(cfg.PollFloor, cfg.PollCap),
		supervisor,
		NewSynthesizer(deps.Rand),
		deps.Scheduler,
		log.Named("poller"),
		deps.Observer,
		deps.Events,
		cfg.FetchTimeout,
	)
	sequencer := NewSequencer(
		store,
		deps.Scheduler,
		log.Named("sequencer"),
		deps.Observer,
		deps.Events,
		cfg.Peaks,
		cfg.AutoTriggerDelay,
		cfg.AutoTriggerEvery,
	)

	e := &Engine{
		store:      store,
		poller:     poller,
		sequencer:  sequencer,
		visibility: deps.Visibility,
		sched:      deps.Scheduler,
		log:        log,
		events:     deps.Events,
	}
	e.autoRefresh.Store(cfg.AutoRefresh)
	return e
}

// Start begins the session. With auto-refresh enabled it starts the poller
// and the auto-trigger schedule.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.ctx = ctx
	e.log.Infow("engine_started", "auto_refresh", e.autoRefresh.Load())
	if e.autoRefresh.Load() {
		e.enableLocked()
	}
}

// Stop tears the session down: the poller timer and visibility observer,
// the auto-trigger schedule and any active simulation run.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.started = false
	e.poller.Stop()
	e.sequencer.StopAuto()
	e.sequencer.Cancel()
	e.log.Infow("engine_stopped")
}

// SetAutoRefresh toggles auto-refresh at runtime. It returns false when the
// value did not change. An active simulation run is left to finish.
func (e *Engine) SetAutoRefresh(on bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.autoRefresh.Load() == on {
		return false
	}
	e.autoRefresh.Store(on)
	if e.started {
		if on {
			e.enableLocked()
		} else {
			e.poller.Stop()
			e.sequencer.StopAuto()
		}
	}
	e.log.Infow("auto_refresh_changed", "enabled", on)
	emit(e.sched, e.events, e.log, models.EngineEvent{
		Type:        models.EventAutoRefresh,
		Description: autoRefreshDescription(on),
		Metadata:    map[string]any{"enabled": on},
	})
	return true
}

func (e *Engine) enableLocked() {
	e.poller.Start(e.ctx)
	e.sequencer.StartAuto()
}

// AutoRefresh reports whether auto-refresh is enabled.
func (e *Engine) AutoRefresh() bool { return e.autoRefresh.Load() }

// Store returns the shared snapshot store.
func (e *Engine) Store() *Store { return e.store }

// Poller returns the metrics poller.
func (e *Engine) Poller() *Poller { return e.poller }

// Sequencer returns the staged alert sequencer.
func (e *Engine) Sequencer() *Sequencer { return e.sequencer }

// State returns what a viewer renders.
func (e *Engine) State() models.DashboardState {
	latest := e.store.Latest()
	return models.DashboardState{
		Snapshot:    latest.Snapshot,
		Origin:      latest.Origin,
		UpdatedAt:   latest.At,
		Simulation:  e.sequencer.Status(),
		AutoRefresh: e.autoRefresh.Load(),
		Visible:     e.visibility.Visible(),
		NextFetchIn: e.poller.NextFetchIn().Milliseconds(),
	}
}

func autoRefreshDescription(on bool) string {
	if on {
		return "Auto-refresh enabled"
	}
	return "Auto-refresh disabled"
}
