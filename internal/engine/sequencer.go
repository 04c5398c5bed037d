package engine

import (
	"fmt"
	"sync"
	"time"

	"biofilter_monitor/internal/clock"
	"biofilter_monitor/internal/logger"
	"biofilter_monitor/internal/models"

	"github.com/google/uuid"
)

// ----------- Simulation constants -----------
const (
	DefaultPeakPM25 = 80.0  // µg/m³
	DefaultPeakCO2  = 700.0 // ppm
	DefaultPeakTemp = 30.0  // °C

	PM25Hold = 5 * time.Second
	CO2Hold  = 2 * time.Second
	TempHold = 2 * time.Second

	DefaultAutoTriggerDelay = 5 * time.Second
	DefaultAutoTriggerEvery = 30 * time.Second
)

// Phase of a staged alert simulation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePM25Elevated
	PhaseCO2Elevated
	PhaseTempElevated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePM25Elevated:
		return "pm25_elevated"
	case PhaseCO2Elevated:
		return "co2_elevated"
	case PhaseTempElevated:
		return "temp_elevated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Peaks are the values forced during a run. Zero values use the defaults.
type Peaks struct {
	PM25 float64 `json:"pm25"`
	CO2  float64 `json:"co2"`
	Temp float64 `json:"temperature"`
}

// DefaultPeaks returns the stock alert values.
func DefaultPeaks() Peaks {
	return Peaks{PM25: DefaultPeakPM25, CO2: DefaultPeakCO2, Temp: DefaultPeakTemp}
}

func (p Peaks) orDefaults(d Peaks) Peaks {
	if p.PM25 == 0 {
		p.PM25 = d.PM25
	}
	if p.CO2 == 0 {
		p.CO2 = d.CO2
	}
	if p.Temp == 0 {
		p.Temp = d.Temp
	}
	return p
}

// stagedFields are captured at trigger time so each phase can restore its field.
var stagedFields = []models.Field{models.FieldPM25, models.FieldCO2, models.FieldTemperature}

// step is the effect of leaving a phase.
type step struct {
	next    Phase
	restore models.Field // restored to its original value, then released
	own     models.Field // acquired, then forced to value
	value   float64
	hold    time.Duration // time until the next transition; 0 ends the run
}

// transition is the whole script. Idle→PM25Elevated is the trigger.
func transition(phase Phase, peaks Peaks) step {
	switch phase {
	case PhaseIdle:
		return step{next: PhasePM25Elevated, own: models.FieldPM25, value: peaks.PM25, hold: PM25Hold}
	case PhasePM25Elevated:
		return step{next: PhaseCO2Elevated, restore: models.FieldPM25, own: models.FieldCO2, value: peaks.CO2, hold: CO2Hold}
	case PhaseCO2Elevated:
		return step{next: PhaseTempElevated, restore: models.FieldCO2, own: models.FieldTemperature, value: peaks.Temp, hold: TempHold}
	default:
		return step{next: PhaseIdle, restore: models.FieldTemperature}
	}
}

// Sequencer runs the staged alert simulation. Idle is the only phase that
// accepts a trigger, so at most one run exists at a time.
type Sequencer struct {
	store     *Store
	sched     clock.Scheduler
	log       *logger.Logger
	obs       Observer
	events    EventSink
	defaults  Peaks
	autoDelay time.Duration
	autoEvery time.Duration

	mu        sync.Mutex
	phase     Phase
	runID     string
	peaks     Peaks
	original  map[models.Field]float64
	startedAt time.Time
	timer     clock.Timer
	seq       uint64

	autoOn    bool
	autoTimer clock.Timer
	autoSeq   uint64
}

// NewSequencer returns an idle Sequencer.
func NewSequencer(
	store *Store,
	sched clock.Scheduler,
	log *logger.Logger,
	obs Observer,
	events EventSink,
	defaults Peaks,
	autoDelay, autoEvery time.Duration,
) *Sequencer {
	if autoDelay <= 0 {
		autoDelay = DefaultAutoTriggerDelay
	}
	if autoEvery <= 0 {
		autoEvery = DefaultAutoTriggerEvery
	}
	return &Sequencer{
		store:     store,
		sched:     sched,
		log:       log,
		obs:       obs,
		events:    events,
		defaults:  defaults.orDefaults(DefaultPeaks()),
		autoDelay: autoDelay,
		autoEvery: autoEvery,
	}
}

// Trigger starts a run. It returns false and changes nothing unless the
// Sequencer is idle.
func (s *Sequencer) Trigger(peaks Peaks) bool {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		s.log.Debugw("simulation_trigger_ignored", "phase", phase.String())
		return false
	}
	s.peaks = peaks.orDefaults(s.defaults)
	s.runID = uuid.NewString()
	s.original = s.store.SnapshotFor(stagedFields...)
	s.startedAt = s.sched.Now().UTC()
	s.applyLocked(transition(PhaseIdle, s.peaks))
	runID, applied, original := s.runID, s.peaks, copyValues(s.original)
	s.mu.Unlock()

	s.log.Infow("simulation_started", "run_id", runID, "peaks", applied)
	s.obs.Phase(PhasePM25Elevated.String())
	s.obs.OwnedFields(1)
	emit(s.sched, s.events, s.log, models.EngineEvent{
		Type:        models.EventSimulationStarted,
		Description: "Staged alert simulation started",
		Metadata: map[string]any{
			"run_id":    runID,
			"peak_pm25": applied.PM25,
			"peak_co2":  applied.CO2,
			"peak_temp": applied.Temp,
			"original":  original,
		},
	})
	return true
}

// Cancel stops the active run, restores every owned field to its recorded
// original, releases ownership and returns to Idle. It returns false when idle.
func (s *Sequencer) Cancel() bool {
	s.mu.Lock()
	if s.phase == PhaseIdle {
		s.mu.Unlock()
		return false
	}
	s.stopTimerLocked()

	owned := s.store.Mask().Fields()
	restore := make(map[models.Field]float64, len(owned))
	for _, f := range owned {
		if v, ok := s.original[f]; ok {
			restore[f] = v
		}
	}
	s.store.Restore(restore)
	s.store.Release(owned...)

	from, runID := s.phase, s.runID
	s.resetLocked()
	s.mu.Unlock()

	s.log.Infow("simulation_cancelled", "run_id", runID, "phase", from.String())
	s.obs.Phase(PhaseIdle.String())
	s.obs.OwnedFields(0)
	s.obs.RunFinished(true)
	emit(s.sched, s.events, s.log, models.EngineEvent{
		Type:        models.EventSimulationCancelled,
		Description: fmt.Sprintf("Simulation cancelled during %s", from),
		Metadata:    map[string]any{"run_id": runID, "phase": from.String(), "restored": restore},
	})
	return true
}

// StartAuto schedules a trigger attempt after the auto delay and then every
// auto interval. Attempts during an active run are dropped.
func (s *Sequencer) StartAuto() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoOn {
		return
	}
	s.autoOn = true
	s.scheduleAutoLocked(s.autoDelay)
}

// StopAuto cancels pending auto-trigger attempts. An active run continues.
func (s *Sequencer) StopAuto() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoOn = false
	s.autoSeq++
	if s.autoTimer != nil {
		s.autoTimer.Stop()
		s.autoTimer = nil
	}
}

// Phase returns the current phase.
func (s *Sequencer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Status describes the Sequencer for viewers.
func (s *Sequencer) Status() models.SimulationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := models.SimulationStatus{
		Phase:  s.phase.String(),
		Active: s.phase != PhaseIdle,
	}
	if st.Active {
		st.RunID = s.runID
		st.Owned = s.store.Mask().Fields()
		st.StartedAt = s.startedAt
		st.PeakPM25 = s.peaks.PM25
		st.PeakCO2 = s.peaks.CO2
		st.PeakTemp = s.peaks.Temp
	}
	return st
}

func (s *Sequencer) advance(seq uint64) {
	s.mu.Lock()
	if seq != s.seq || s.phase == PhaseIdle {
		s.mu.Unlock()
		return
	}
	from, runID := s.phase, s.runID
	st := transition(from, s.peaks)
	s.applyLocked(st)
	done := st.next == PhaseIdle
	if done {
		s.resetLocked()
	}
	s.mu.Unlock()

	s.log.Infow("simulation_phase", "run_id", runID, "from", from.String(), "to", st.next.String())
	s.obs.Phase(st.next.String())
	if done {
		s.obs.OwnedFields(0)
	} else {
		s.obs.OwnedFields(1)
	}
	emit(s.sched, s.events, s.log, models.EngineEvent{
		Type:        models.EventPhaseChange,
		Description: fmt.Sprintf("Simulation %s -> %s", from, st.next),
		Metadata:    map[string]any{"run_id": runID, "from": from.String(), "to": st.next.String()},
	})
	if done {
		s.obs.RunFinished(false)
		emit(s.sched, s.events, s.log, models.EngineEvent{
			Type:        models.EventSimulationCompleted,
			Description: "Staged alert simulation completed; all fields restored",
			Metadata:    map[string]any{"run_id": runID},
		})
	}
}

// applyLocked performs st against the store and arms the next transition.
// Restore happens before release and acquire before apply, so a concurrent
// merge never sees an owned field unprotected.
func (s *Sequencer) applyLocked(st step) {
	if st.restore != "" {
		s.store.Restore(map[models.Field]float64{st.restore: s.original[st.restore]})
		s.store.Release(st.restore)
	}
	if st.own != "" {
		s.store.Acquire(st.own)
		s.store.ApplyOverride(map[models.Field]float64{st.own: st.value})
	}
	s.phase = st.next
	s.stopTimerLocked()
	if st.hold > 0 {
		seq := s.seq
		s.timer = s.sched.AfterFunc(st.hold, func() { s.advance(seq) })
	}
}

func (s *Sequencer) stopTimerLocked() {
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Sequencer) resetLocked() {
	s.phase = PhaseIdle
	s.runID = ""
	s.peaks = Peaks{}
	s.original = nil
	s.startedAt = time.Time{}
}

func (s *Sequencer) scheduleAutoLocked(d time.Duration) {
	seq := s.autoSeq
	s.autoTimer = s.sched.AfterFunc(d, func() { s.autoFire(seq) })
}

func (s *Sequencer) autoFire(seq uint64) {
	s.mu.Lock()
	if !s.autoOn || seq != s.autoSeq {
		s.mu.Unlock()
		return
	}
	s.scheduleAutoLocked(s.autoEvery)
	s.mu.Unlock()

	if !s.Trigger(Peaks{}) {
		s.log.Debugw("auto_trigger_dropped")
	}
}

func copyValues(in map[models.Field]float64) map[models.Field]float64 {
	out := make(map[models.Field]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
