package service

import (
	"context"
	"errors"
	"fmt"

	"biofilter_monitor/internal/engine"
	"biofilter_monitor/internal/models"
)

var (
	// ErrRefreshRefused is returned when the poller is stopped, the dashboard
	// is hidden or a fetch is already in flight.
	ErrRefreshRefused = errors.New("refresh refused")
	ErrInvalidLimit   = errors.New("invalid limit: must be >= 0")
)

type MonitoringService struct {
	eng *engine.Engine
}

func NewMonitoringService(eng *engine.Engine) *MonitoringService {
	return &MonitoringService{eng: eng}
}

// State returns the current dashboard state.
func (s *MonitoringService) State() models.DashboardState {
	return s.eng.State()
}

// History returns up to limit samples, oldest first. Zero means all retained samples.
func (s *MonitoringService) History(limit int) ([]models.Sample, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return s.eng.Store().History(limit), nil
}

// Refresh fetches immediately and returns the resulting state.
func (s *MonitoringService) Refresh(ctx context.Context) (models.DashboardState, error) {
	if err := ctx.Err(); err != nil {
		return models.DashboardState{}, err
	}
	if !s.eng.Poller().RefreshNow() {
		return s.eng.State(), ErrRefreshRefused
	}
	return s.eng.State(), nil
}

type ControlService struct {
	eng *engine.Engine
}

func NewControlService(eng *engine.Engine) *ControlService {
	return &ControlService{eng: eng}
}

// SetAutoRefresh reports whether the setting changed.
func (s *ControlService) SetAutoRefresh(_ context.Context, on bool) bool {
	return s.eng.SetAutoRefresh(on)
}

func (s *ControlService) AutoRefresh() bool {
	return s.eng.AutoRefresh()
}

// PollerStatus reports the fetch loop: in-flight flag, failure streak and next delay.
func (s *ControlService) PollerStatus() engine.PollerStatus {
	return s.eng.Poller().Status()
}
