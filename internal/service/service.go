package service

import (
	"context"
	"time"

	"biofilter_monitor/internal/engine"
	"biofilter_monitor/internal/models"
	"biofilter_monitor/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Monitoring exposes what viewers render plus the manual refresh.
type Monitoring interface {
	State() models.DashboardState
	History(limit int) ([]models.Sample, error)
	Refresh(ctx context.Context) (models.DashboardState, error)
}

// Simulation drives the staged alert simulation.
type Simulation interface {
	SimulationStatus() models.SimulationStatus
	Trigger(ctx context.Context, p TriggerParams) (models.SimulationStatus, error)
	Cancel(ctx context.Context) (models.SimulationStatus, error)
}

// Control toggles engine-wide behaviour at runtime.
type Control interface {
	SetAutoRefresh(ctx context.Context, on bool) (changed bool)
	AutoRefresh() bool
	PollerStatus() engine.PollerStatus
}

// EventLog exposes the append-only engine audit log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.EngineEvent, error)
}

// Viewers receives the visibility reports of connected dashboards.
type Viewers interface {
	Report(viewerID string, visible bool)
	Leave(viewerID string)
}

// AuthSettings configures token signing.
type AuthSettings struct {
	SigningKey string
	TokenTTL   time.Duration
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Type  string    // "", "FETCH_FAILED", "PHASE_CHANGE", ...
	Limit int       // most recent N; zero means all
}

// TriggerParams overrides the simulation peaks. Zero values use the configured defaults.
type TriggerParams struct {
	PeakPM25 float64
	PeakCO2  float64
	PeakTemp float64
}

type Service struct {
	Monitoring
	Simulation
	Control
	EventLog
	Viewers
	Authorization
}

// NewService wires the repository layer and the running engine into concrete services.
// A nil viewers means visibility does not depend on connected dashboards.
func NewService(repos *repository.Repository, eng *engine.Engine, viewers Viewers, auth AuthSettings) *Service {
	if viewers == nil {
		viewers = NopViewers{}
	}
	return &Service{
		Monitoring:    NewMonitoringService(eng),
		Simulation:    NewSimulationService(eng.Sequencer()),
		Control:       NewControlService(eng),
		EventLog:      NewEventLogService(repos.EventRepo),
		Viewers:       viewers,
		Authorization: NewAuthService(repos.Auth, auth.SigningKey, auth.TokenTTL),
	}
}

// NopViewers ignores visibility reports.
type NopViewers struct{}

func (NopViewers) Report(string, bool) {}
func (NopViewers) Leave(string)        {}
