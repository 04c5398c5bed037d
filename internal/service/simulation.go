package service

import (
	"context"
	"errors"
	"fmt"

	"biofilter_monitor/internal/engine"
	"biofilter_monitor/internal/models"
)

var (
	ErrSimulationActive = errors.New("simulation already running")
	ErrNoSimulation     = errors.New("no simulation running")
	ErrInvalidPeak      = errors.New("invalid peak: must be >= 0")
)

type SimulationService struct {
	seq *engine.Sequencer
}

func NewSimulationService(seq *engine.Sequencer) *SimulationService {
	return &SimulationService{seq: seq}
}

func (s *SimulationService) SimulationStatus() models.SimulationStatus {
	return s.seq.Status()
}

// Trigger starts a run when the sequencer is idle.
func (s *SimulationService) Trigger(ctx context.Context, p TriggerParams) (models.SimulationStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.SimulationStatus{}, err
	}
	if err := validatePeaks(p); err != nil {
		return models.SimulationStatus{}, err
	}
	if !s.seq.Trigger(engine.Peaks{PM25: p.PeakPM25, CO2: p.PeakCO2, Temp: p.PeakTemp}) {
		return s.seq.Status(), ErrSimulationActive
	}
	return s.seq.Status(), nil
}

// Cancel stops the active run and restores the overridden values.
func (s *SimulationService) Cancel(ctx context.Context) (models.SimulationStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.SimulationStatus{}, err
	}
	if !s.seq.Cancel() {
		return s.seq.Status(), ErrNoSimulation
	}
	return s.seq.Status(), nil
}

func validatePeaks(p TriggerParams) error {
	for name, v := range map[string]float64{"pm25": p.PeakPM25, "co2": p.PeakCO2, "temperature": p.PeakTemp} {
		if v < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidPeak, name, v)
		}
	}
	return nil
}
