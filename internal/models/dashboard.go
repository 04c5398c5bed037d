package models

import "time"

// AirQuality is the air block of the upstream metrics payload.
// Pointer fields distinguish an absent value from a zero reading.
type AirQuality struct {
	CO2         *float64 `json:"co2"`
	PM25        *float64 `json:"pm25"`
	SO2         *float64 `json:"so2"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	O2          *float64 `json:"o2"`
}

// WaterSystem is the water block of the upstream metrics payload.
type WaterSystem struct {
	Reservoir  *float64 `json:"reservoir"`
	Flow       *float64 `json:"flow"`
	Generation *float64 `json:"generation"`
	Purity     *float64 `json:"purity"`
}

// Biofilter carries the optional moss/algae readings.
type Biofilter struct {
	MossMoisture *float64 `json:"moss_moisture"`
	AlgaeGrowth  *float64 `json:"algae_growth"`
}

// DashboardMetrics is the JSON shape served by the metrics backend.
type DashboardMetrics struct {
	Air       AirQuality  `json:"air"`
	Water     WaterSystem `json:"water"`
	Biofilter *Biofilter  `json:"biofilter,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// Reading converts the present values of m into a partial Reading.
func (m DashboardMetrics) Reading() Reading {
	r := Reading{}
	put := func(f Field, v *float64) {
		if v != nil {
			r[f] = *v
		}
	}
	put(FieldCO2, m.Air.CO2)
	put(FieldPM25, m.Air.PM25)
	put(FieldSO2, m.Air.SO2)
	put(FieldTemperature, m.Air.Temperature)
	put(FieldHumidity, m.Air.Humidity)
	put(FieldO2, m.Air.O2)
	put(FieldWaterReservoir, m.Water.Reservoir)
	put(FieldIrrigationFlow, m.Water.Flow)
	put(FieldWaterGeneration, m.Water.Generation)
	put(FieldWaterPurity, m.Water.Purity)
	if m.Biofilter != nil {
		put(FieldMossMoisture, m.Biofilter.MossMoisture)
		put(FieldAlgaeGrowth, m.Biofilter.AlgaeGrowth)
	}
	return r
}

// SimulationStatus describes the staged alert simulation.
type SimulationStatus struct {
	Phase     string    `json:"phase"`
	Active    bool      `json:"active"`
	RunID     string    `json:"run_id,omitempty"`
	Owned     []Field   `json:"owned,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	PeakPM25  float64   `json:"peak_pm25,omitempty"`
	PeakCO2   float64   `json:"peak_co2,omitempty"`
	PeakTemp  float64   `json:"peak_temp,omitempty"`
}

// DashboardState is what viewers render: the snapshot plus engine status.
type DashboardState struct {
	Snapshot    Snapshot         `json:"snapshot"`
	Origin      Origin           `json:"origin"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Simulation  SimulationStatus `json:"simulation"`
	AutoRefresh bool             `json:"auto_refresh"`
	Visible     bool             `json:"visible"`
	NextFetchIn int64            `json:"next_fetch_ms"`
}
