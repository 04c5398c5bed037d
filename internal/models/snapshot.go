package models

import "time"

// Field names a single displayed metric.
type Field string

const (
	FieldCO2             Field = "co2"
	FieldPM25            Field = "pm25"
	FieldSO2             Field = "so2"
	FieldTemperature     Field = "temperature"
	FieldHumidity        Field = "humidity"
	FieldO2              Field = "o2"
	FieldWaterReservoir  Field = "water_reservoir"
	FieldIrrigationFlow  Field = "irrigation_flow"
	FieldWaterGeneration Field = "water_generation"
	FieldWaterPurity     Field = "water_purity"
	FieldMossMoisture    Field = "moss_moisture"
	FieldAlgaeGrowth     Field = "algae_growth"
)

// AllFields lists every Field in display order.
var AllFields = []Field{
	FieldCO2,
	FieldPM25,
	FieldSO2,
	FieldTemperature,
	FieldHumidity,
	FieldO2,
	FieldWaterReservoir,
	FieldIrrigationFlow,
	FieldWaterGeneration,
	FieldWaterPurity,
	FieldMossMoisture,
	FieldAlgaeGrowth,
}

// Valid reports whether f is one of AllFields.
func (f Field) Valid() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// Snapshot is the complete set of displayed air, water and biofilter values.
type Snapshot struct {
	CO2             float64 `json:"co2"`              // ppm
	PM25            float64 `json:"pm25"`             // µg/m³
	SO2             float64 `json:"so2"`              // ppb
	Temperature     float64 `json:"temperature"`      // °C
	Humidity        float64 `json:"humidity"`         // %
	O2              float64 `json:"o2"`               // L/min released
	WaterReservoir  float64 `json:"water_reservoir"`  // liters
	IrrigationFlow  float64 `json:"irrigation_flow"`  // L/h
	WaterGeneration float64 `json:"water_generation"` // L/day
	WaterPurity     float64 `json:"water_purity"`     // %
	MossMoisture    float64 `json:"moss_moisture"`    // %
	AlgaeGrowth     float64 `json:"algae_growth"`     // g/L/day
}

// BaselineSnapshot is the value displayed before the first fetch resolves.
func BaselineSnapshot() Snapshot {
	return Snapshot{
		CO2:             320,
		PM25:            12,
		SO2:             8,
		Temperature:     22,
		Humidity:        65,
		O2:              2.5,
		WaterReservoir:  30,
		IrrigationFlow:  12.5,
		WaterGeneration: 5.2,
		WaterPurity:     99.8,
		MossMoisture:    72,
		AlgaeGrowth:     0.168,
	}
}

// Get returns the value of f. Unknown fields read as zero.
func (s Snapshot) Get(f Field) float64 {
	switch f {
	case FieldCO2:
		return s.CO2
	case FieldPM25:
		return s.PM25
	case FieldSO2:
		return s.SO2
	case FieldTemperature:
		return s.Temperature
	case FieldHumidity:
		return s.Humidity
	case FieldO2:
		return s.O2
	case FieldWaterReservoir:
		return s.WaterReservoir
	case FieldIrrigationFlow:
		return s.IrrigationFlow
	case FieldWaterGeneration:
		return s.WaterGeneration
	case FieldWaterPurity:
		return s.WaterPurity
	case FieldMossMoisture:
		return s.MossMoisture
	case FieldAlgaeGrowth:
		return s.AlgaeGrowth
	default:
		return 0
	}
}

// With returns a copy of s with f set to v. Unknown fields are ignored.
func (s Snapshot) With(f Field, v float64) Snapshot {
	switch f {
	case FieldCO2:
		s.CO2 = v
	case FieldPM25:
		s.PM25 = v
	case FieldSO2:
		s.SO2 = v
	case FieldTemperature:
		s.Temperature = v
	case FieldHumidity:
		s.Humidity = v
	case FieldO2:
		s.O2 = v
	case FieldWaterReservoir:
		s.WaterReservoir = v
	case FieldIrrigationFlow:
		s.IrrigationFlow = v
	case FieldWaterGeneration:
		s.WaterGeneration = v
	case FieldWaterPurity:
		s.WaterPurity = v
	case FieldMossMoisture:
		s.MossMoisture = v
	case FieldAlgaeGrowth:
		s.AlgaeGrowth = v
	}
	return s
}

// Reading is a partial update keyed by field. Absent keys keep their previous value.
type Reading map[Field]float64

// ReadingOf returns every field of s as a Reading.
func ReadingOf(s Snapshot) Reading {
	r := make(Reading, len(AllFields))
	for _, f := range AllFields {
		r[f] = s.Get(f)
	}
	return r
}

// Origin tells where the latest write to the store came from.
type Origin string

const (
	OriginBaseline  Origin = "baseline"
	OriginFetched   Origin = "fetched"
	OriginSynthetic Origin = "synthetic"
	OriginOverride  Origin = "override"
	OriginRestore   Origin = "restore"
)

// Sample is a single history entry.
type Sample struct {
	Snapshot Snapshot  `json:"snapshot"`
	Origin   Origin    `json:"origin"`
	At       time.Time `json:"at"`
}
