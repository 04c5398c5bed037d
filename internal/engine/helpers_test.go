package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"biofilter_monitor/internal/clock/clocktest"
	"biofilter_monitor/internal/logger"
	"biofilter_monitor/internal/models"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

var errUpstream = errors.New("upstream unavailable")

type fetchResult struct {
	reading models.Reading
	err     error
}

// scriptedSource returns results in order, then repeats fallback.
type scriptedSource struct {
	mu       sync.Mutex
	results  []fetchResult
	fallback fetchResult
	calls    int
}

func (s *scriptedSource) Fetch(context.Context) (models.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	res := s.fallback
	if len(s.results) > 0 {
		res = s.results[0]
		s.results = s.results[1:]
	}
	return res.reading, res.err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// blockingSource parks the first Fetch until release is closed.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	reading models.Reading
	once    sync.Once
}

func newBlockingSource(r models.Reading) *blockingSource {
	return &blockingSource{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		reading: r,
	}
}

func (s *blockingSource) Fetch(context.Context) (models.Reading, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.reading, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.EngineEvent
}

func (s *recordingSink) Append(_ context.Context, ev models.EngineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordingSink) Count(typ string) int {
	n := 0
	for _, t := range s.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

// upstreamReading is a complete reading that differs from the baseline in every field.
func upstreamReading() models.Reading {
	return models.Reading{
		models.FieldCO2:             410,
		models.FieldPM25:            15,
		models.FieldSO2:             9,
		models.FieldTemperature:     23,
		models.FieldHumidity:        61,
		models.FieldO2:              2.9,
		models.FieldWaterReservoir:  44,
		models.FieldIrrigationFlow:  11.2,
		models.FieldWaterGeneration: 5.9,
		models.FieldWaterPurity:     99.6,
		models.FieldMossMoisture:    70,
		models.FieldAlgaeGrowth:     7.1,
	}
}

type testEngine struct {
	*Engine
	sched *clocktest.Scheduler
	sink  *recordingSink
}

func newTestEngine(t *testing.T, cfg Config, src Source, vis Visibility) *testEngine {
	t.Helper()
	sched := clocktest.New(epoch)
	sink := &recordingSink{}
	e := New(cfg, Deps{
		Source:     src,
		Scheduler:  sched,
		Visibility: vis,
		Logger:     logger.Nop(),
		Events:     sink,
	})
	t.Cleanup(e.Stop)
	return &testEngine{Engine: e, sched: sched, sink: sink}
}
