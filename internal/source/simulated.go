package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"biofilter_monitor/internal/engine"
	"biofilter_monitor/internal/models"
)

// cannedAir are the stub backend's air readings, served in rotation.
var cannedAir = []models.Reading{
	{models.FieldCO2: 410.5, models.FieldPM25: 12.3, models.FieldSO2: 8.2, models.FieldTemperature: 22.5, models.FieldHumidity: 65, models.FieldO2: 2.6},
	{models.FieldCO2: 408.2, models.FieldPM25: 11.8, models.FieldSO2: 7.9, models.FieldTemperature: 22.1, models.FieldHumidity: 64, models.FieldO2: 2.65},
	{models.FieldCO2: 412.1, models.FieldPM25: 13.1, models.FieldSO2: 8.5, models.FieldTemperature: 23.2, models.FieldHumidity: 66, models.FieldO2: 2.55},
}

// cannedWater is the stub backend's water block.
var cannedWater = models.Reading{
	models.FieldWaterReservoir:  30,
	models.FieldIrrigationFlow:  12.5,
	models.FieldWaterGeneration: 5.2,
	models.FieldWaterPurity:     99.8,
}

// SimulatedSource is an in-process stand-in for the metrics backend. It
// reports air and water values only; biofilter fields keep their previous value.
type SimulatedSource struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	failureRate float64
	jitter      float64
	next        int
}

var _ engine.Source = (*SimulatedSource)(nil)

// NewSimulatedSource returns a stub source. failureRate in [0,1] is the share
// of fetches that fail; jitter is the maximum relative deviation applied to
// every value. A nil rnd uses a randomly seeded PCG.
func NewSimulatedSource(rnd *rand.Rand, failureRate, jitter float64) *SimulatedSource {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &SimulatedSource{
		rnd:         rnd,
		failureRate: clamp01(failureRate),
		jitter:      clamp01(jitter),
	}
}

// Fetch returns the next canned reading with jitter applied.
func (s *SimulatedSource) Fetch(ctx context.Context) (models.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failureRate > 0 && s.rnd.Float64() < s.failureRate {
		return nil, fmt.Errorf("%w: simulated upstream outage", ErrFetch)
	}

	air := cannedAir[s.next%len(cannedAir)]
	s.next++

	r := make(models.Reading, len(air)+len(cannedWater))
	for f, v := range air {
		r[f] = s.jittered(v)
	}
	for f, v := range cannedWater {
		r[f] = s.jittered(v)
	}
	return r, nil
}

func (s *SimulatedSource) jittered(v float64) float64 {
	if s.jitter == 0 {
		return v
	}
	d := (s.rnd.Float64()*2 - 1) * s.jitter
	return math.Round(v*(1+d)*100) / 100
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
