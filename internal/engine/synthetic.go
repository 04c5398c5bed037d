package engine

import (
	"math"
	"math/rand/v2"
	"sync"

	"biofilter_monitor/internal/models"
)

// band is the realistic range [min, min+span) used for synthetic values.
// Whole-number metrics are floored like the sensors report them.
type band struct {
	min   float64
	span  float64
	whole bool
}

var syntheticBands = map[models.Field]band{
	models.FieldCO2:             {min: 300, span: 50, whole: true},
	models.FieldPM25:            {min: 8, span: 20, whole: true},
	models.FieldSO2:             {min: 5, span: 10, whole: true},
	models.FieldTemperature:     {min: 20, span: 5, whole: true},
	models.FieldHumidity:        {min: 60, span: 20, whole: true},
	models.FieldO2:              {min: 2.2, span: 1},
	models.FieldWaterReservoir:  {min: 20, span: 30, whole: true},
	models.FieldIrrigationFlow:  {min: 10, span: 3},
	models.FieldWaterGeneration: {min: 4.5, span: 2},
	models.FieldWaterPurity:     {min: 99.5, span: 0.2},
	models.FieldMossMoisture:    {min: 68, span: 10, whole: true},
	models.FieldAlgaeGrowth:     {min: 6.5, span: 2},
}

// Synthesizer produces plausible fallback readings when the source is unavailable.
type Synthesizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSynthesizer returns a Synthesizer. A nil rnd uses a randomly seeded PCG.
func NewSynthesizer(rnd *rand.Rand) *Synthesizer {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Synthesizer{rnd: rnd}
}

// Next returns a complete Reading with every field inside its band.
func (s *Synthesizer) Next() models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make(models.Reading, len(models.AllFields))
	for _, f := range models.AllFields {
		b := syntheticBands[f]
		v := b.min + s.rnd.Float64()*b.span
		if b.whole {
			v = math.Floor(v)
		}
		r[f] = v
	}
	return r
}

// InBand reports whether v lies in the synthetic range of f.
func InBand(f models.Field, v float64) bool {
	b, ok := syntheticBands[f]
	if !ok {
		return false
	}
	return v >= b.min && v < b.min+b.span
}
