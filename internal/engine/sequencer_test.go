package engine

import (
	"context"
	"testing"
	"time"

	"biofilter_monitor/internal/clock/clocktest"
	"biofilter_monitor/internal/logger"
	"biofilter_monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSequencer(t *testing.T, autoDelay, autoEvery time.Duration) (*Sequencer, *Store, *clocktest.Scheduler, *recordingSink) {
	t.Helper()
	sched := clocktest.New(epoch)
	store := NewStore(sched, 0)
	sink := &recordingSink{}
	seq := NewSequencer(store, sched, logger.Nop(), nopObserver{}, sink, Peaks{}, autoDelay, autoEvery)
	return seq, store, sched, sink
}

func TestTransition_Script(t *testing.T) {
	peaks := DefaultPeaks()
	cases := []struct {
		from Phase
		want step
	}{
		{PhaseIdle, step{next: PhasePM25Elevated, own: models.FieldPM25, value: 80, hold: 5 * time.Second}},
		{PhasePM25Elevated, step{next: PhaseCO2Elevated, restore: models.FieldPM25, own: models.FieldCO2, value: 700, hold: 2 * time.Second}},
		{PhaseCO2Elevated, step{next: PhaseTempElevated, restore: models.FieldCO2, own: models.FieldTemperature, value: 30, hold: 2 * time.Second}},
		{PhaseTempElevated, step{next: PhaseIdle, restore: models.FieldTemperature}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, transition(c.from, peaks), "from %s", c.from)
	}
}

func TestSequencer_StagedRun(t *testing.T) {
	seq, store, sched, sink := newTestSequencer(t, 0, 0)
	base := models.BaselineSnapshot()

	require.True(t, seq.Trigger(Peaks{}))
	assert.Equal(t, PhasePM25Elevated, seq.Phase())
	assert.Equal(t, 80.0, store.Current().PM25)
	assert.True(t, store.Owns(models.FieldPM25))

	sched.Advance(4999 * time.Millisecond)
	assert.Equal(t, 80.0, store.Current().PM25)

	sched.Advance(time.Millisecond) // t=5000
	cur := store.Current()
	assert.Equal(t, PhaseCO2Elevated, seq.Phase())
	assert.Equal(t, base.PM25, cur.PM25)
	assert.Equal(t, 700.0, cur.CO2)
	assert.Equal(t, []models.Field{models.FieldCO2}, store.Mask().Fields())

	sched.Advance(2 * time.Second) // t=7000
	cur = store.Current()
	assert.Equal(t, PhaseTempElevated, seq.Phase())
	assert.Equal(t, base.CO2, cur.CO2)
	assert.Equal(t, 30.0, cur.Temperature)

	sched.Advance(2 * time.Second) // t=9000
	cur = store.Current()
	assert.Equal(t, PhaseIdle, seq.Phase())
	assert.Equal(t, base.PM25, cur.PM25)
	assert.Equal(t, base.CO2, cur.CO2)
	assert.Equal(t, base.Temperature, cur.Temperature)
	assert.Empty(t, store.Mask())
	assert.Zero(t, sched.Pending())

	assert.Equal(t, []string{
		models.EventSimulationStarted,
		models.EventPhaseChange,
		models.EventPhaseChange,
		models.EventPhaseChange,
		models.EventSimulationCompleted,
	}, sink.Types())
}

func TestSequencer_CustomPeaks(t *testing.T) {
	seq, store, sched, _ := newTestSequencer(t, 0, 0)

	require.True(t, seq.Trigger(Peaks{PM25: 150, Temp: 41}))
	assert.Equal(t, 150.0, store.Current().PM25)
	st := seq.Status()
	assert.Equal(t, 150.0, st.PeakPM25)
	assert.Equal(t, DefaultPeakCO2, st.PeakCO2)
	assert.Equal(t, 41.0, st.PeakTemp)

	sched.Advance(7 * time.Second)
	assert.Equal(t, 41.0, store.Current().Temperature)
}

func TestSequencer_TriggerWhileActiveIsNoop(t *testing.T) {
	seq, store, sched, sink := newTestSequencer(t, 0, 0)
	require.True(t, seq.Trigger(Peaks{}))
	sched.Advance(time.Second)

	before := seq.Status()
	snap := store.Current()
	pending := sched.Pending()
	due, _ := sched.NextDue()

	assert.False(t, seq.Trigger(Peaks{PM25: 500}))
	assert.Equal(t, before, seq.Status())
	assert.Equal(t, snap, store.Current())
	assert.Equal(t, pending, sched.Pending())
	dueAfter, _ := sched.NextDue()
	assert.Equal(t, due, dueAfter)
	assert.Equal(t, 1, sink.Count(models.EventSimulationStarted))
}

func TestSequencer_CancelMidRun(t *testing.T) {
	seq, store, sched, sink := newTestSequencer(t, 0, 0)
	store.MergeFetched(upstreamReading(), models.OriginFetched)

	require.True(t, seq.Trigger(Peaks{}))
	sched.Advance(6 * time.Second)
	require.Equal(t, PhaseCO2Elevated, seq.Phase())
	require.Equal(t, 700.0, store.Current().CO2)

	assert.True(t, seq.Cancel())
	cur := store.Current()
	assert.Equal(t, PhaseIdle, seq.Phase())
	assert.Equal(t, 410.0, cur.CO2)
	assert.Equal(t, 15.0, cur.PM25)
	assert.Equal(t, 23.0, cur.Temperature)
	assert.Empty(t, store.Mask())
	assert.Zero(t, sched.Pending())
	assert.Equal(t, 1, sink.Count(models.EventSimulationCancelled))

	assert.False(t, seq.Cancel(), "second cancel is a no-op")
	assert.True(t, seq.Trigger(Peaks{}), "a new run starts immediately")
}

func TestSequencer_AutoTrigger(t *testing.T) {
	seq, _, sched, sink := newTestSequencer(t, 0, 0)
	seq.StartAuto()
	seq.StartAuto()

	sched.Advance(4999 * time.Millisecond)
	assert.Equal(t, PhaseIdle, seq.Phase())
	sched.Advance(time.Millisecond)
	assert.Equal(t, PhasePM25Elevated, seq.Phase())

	sched.Advance(29 * time.Second) // t=34s, first run long finished
	assert.Equal(t, PhaseIdle, seq.Phase())
	sched.Advance(time.Second)
	assert.Equal(t, PhasePM25Elevated, seq.Phase())
	assert.Equal(t, 2, sink.Count(models.EventSimulationStarted))

	seq.StopAuto()
	sched.Advance(time.Minute)
	assert.Equal(t, 2, sink.Count(models.EventSimulationStarted))
	assert.Equal(t, 2, sink.Count(models.EventSimulationCompleted))
	assert.Zero(t, sched.Pending())
}

func TestSequencer_AutoAttemptsDuringRunAreDropped(t *testing.T) {
	seq, _, sched, sink := newTestSequencer(t, time.Second, 2*time.Second)
	seq.StartAuto()

	sched.Advance(time.Second) // run starts, ends at t=10s
	sched.Advance(9500 * time.Millisecond)
	assert.Equal(t, PhaseIdle, seq.Phase())
	assert.Equal(t, 1, sink.Count(models.EventSimulationStarted), "attempts at 3,5,7,9s were dropped")

	sched.Advance(500 * time.Millisecond) // t=11s
	assert.Equal(t, 2, sink.Count(models.EventSimulationStarted))
	seq.StopAuto()
}

func TestSequencer_OwnedFieldsNeverClobberedByPolling(t *testing.T) {
	hostile := models.Reading{}
	for _, f := range models.AllFields {
		hostile[f] = 999
	}
	src := &scriptedSource{fallback: fetchResult{reading: hostile}}
	cfg := Config{AutoRefresh: true, AutoTriggerDelay: time.Hour, PollFloor: 250 * time.Millisecond}
	te := newTestEngine(t, cfg, src, AlwaysVisible{})
	te.Start(context.Background())

	peaks := map[models.Field]float64{
		models.FieldPM25:        DefaultPeakPM25,
		models.FieldCO2:         DefaultPeakCO2,
		models.FieldTemperature: DefaultPeakTemp,
	}
	require.True(t, te.Sequencer().Trigger(Peaks{}))
	for elapsed := time.Duration(0); elapsed < 9*time.Second; elapsed += 100 * time.Millisecond {
		mask := te.Store().Mask()
		require.Len(t, mask, 1, "at %s", elapsed)
		cur := te.Store().Current()
		for f := range mask {
			assert.Equal(t, peaks[f], cur.Get(f), "%s at %s", f, elapsed)
		}
		te.sched.Advance(100 * time.Millisecond)
	}
	assert.Greater(t, src.Calls(), 30)
	assert.Equal(t, PhaseIdle, te.Sequencer().Phase())

	te.sched.Advance(250 * time.Millisecond)
	assert.Equal(t, 999.0, te.Store().Current().PM25)
}
