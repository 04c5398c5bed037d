package handlers

import (
	"context"
	"net/http"
	"sync"

	"biofilter_monitor/internal/engine"
	"biofilter_monitor/internal/models"
	"biofilter_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockMonitoring struct {
	mu           sync.Mutex
	state        models.DashboardState
	history      []models.Sample
	historyErr   error
	refreshErr   error
	lastLimit    int
	refreshCalls int
}

func (m *mockMonitoring) State() models.DashboardState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
func (m *mockMonitoring) History(limit int) ([]models.Sample, error) {
	m.lastLimit = limit
	return m.history, m.historyErr
}
func (m *mockMonitoring) Refresh(ctx context.Context) (models.DashboardState, error) {
	m.refreshCalls++
	return m.state, m.refreshErr
}

type mockSimulation struct {
	status      models.SimulationStatus
	triggerErr  error
	cancelErr   error
	lastTrigger service.TriggerParams
	triggers    int
	cancels     int
}

func (m *mockSimulation) SimulationStatus() models.SimulationStatus { return m.status }
func (m *mockSimulation) Trigger(ctx context.Context, p service.TriggerParams) (models.SimulationStatus, error) {
	m.triggers++
	m.lastTrigger = p
	return m.status, m.triggerErr
}
func (m *mockSimulation) Cancel(ctx context.Context) (models.SimulationStatus, error) {
	m.cancels++
	return m.status, m.cancelErr
}

type mockControl struct {
	auto   bool
	poller engine.PollerStatus
	sets   []bool
}

func (m *mockControl) SetAutoRefresh(ctx context.Context, on bool) bool {
	m.sets = append(m.sets, on)
	changed := m.auto != on
	m.auto = on
	return changed
}
func (m *mockControl) AutoRefresh() bool { return m.auto }
func (m *mockControl) PollerStatus() engine.PollerStatus { return m.poller }

type mockEventLog struct {
	resp      []models.EngineEvent
	err       error
	lastQuery service.LogFilter
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.EngineEvent, error) {
	m.lastQuery = f
	return m.resp, m.err
}

// mockViewers records visibility reports; safe for the WebSocket goroutines.
type mockViewers struct {
	mu      sync.Mutex
	reports []viewerReport
	left    []string
	changed chan struct{}
}

type viewerReport struct {
	id      string
	visible bool
}

func newMockViewers() *mockViewers {
	return &mockViewers{changed: make(chan struct{}, 16)}
}

func (m *mockViewers) Report(id string, visible bool) {
	m.mu.Lock()
	m.reports = append(m.reports, viewerReport{id: id, visible: visible})
	m.mu.Unlock()
	m.changed <- struct{}{}
}
func (m *mockViewers) Leave(id string) {
	m.mu.Lock()
	m.left = append(m.left, id)
	m.mu.Unlock()
	m.changed <- struct{}{}
}
func (m *mockViewers) snapshot() ([]viewerReport, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]viewerReport(nil), m.reports...), append([]string(nil), m.left...)
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
