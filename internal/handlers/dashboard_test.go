package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"biofilter_monitor/internal/engine"
	"biofilter_monitor/internal/models"
	"biofilter_monitor/internal/service"
)

func doRequest(r http.Handler, method, url, body, token string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, buf)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})
	w := doRequest(r, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
}

func TestMetricsHandlers_CurrentAndHistory(t *testing.T) {
	snap := models.BaselineSnapshot()
	snap.CO2 = 410
	mon := &mockMonitoring{
		state: models.DashboardState{Snapshot: snap, Origin: models.OriginFetched, AutoRefresh: true, Visible: true},
		history: []models.Sample{
			{Snapshot: models.BaselineSnapshot(), Origin: models.OriginBaseline},
			{Snapshot: snap, Origin: models.OriginFetched},
		},
	}
	r := newTestRouter(&service.Service{Monitoring: mon})

	// current is public
	w := doRequest(r, http.MethodGet, "/api/v1/metrics/current", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("current status=%d, body=%s", w.Code, w.Body.String())
	}
	var st models.DashboardState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Snapshot.CO2 != 410 || st.Origin != models.OriginFetched {
		t.Fatalf("unexpected state: %+v", st)
	}

	w = doRequest(r, http.MethodGet, "/api/v1/metrics/history?limit=2", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status=%d, body=%s", w.Code, w.Body.String())
	}
	var hist struct {
		Count   int             `json:"count"`
		Samples []models.Sample `json:"samples"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &hist)
	if hist.Count != 2 || hist.Samples[1].Origin != models.OriginFetched {
		t.Fatalf("unexpected history: %+v", hist)
	}
	if mon.lastLimit != 2 {
		t.Fatalf("expected limit 2, got %d", mon.lastLimit)
	}

	w = doRequest(r, http.MethodGet, "/api/v1/metrics/history?limit=abc", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestMetricsHandlers_Refresh(t *testing.T) {
	mon := &mockMonitoring{}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 7}, Monitoring: mon})

	// requires auth → 401 without header
	if w := doRequest(r, http.MethodPost, "/api/v1/metrics/refresh", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	w := doRequest(r, http.MethodPost, "/api/v1/metrics/refresh", "", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status=%d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusRefreshed {
		t.Fatalf("expected status %q, got %q", statusRefreshed, resp.Status)
	}

	mon.refreshErr = service.ErrRefreshRefused
	if w := doRequest(r, http.MethodPost, "/api/v1/metrics/refresh", "", "valid"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 when refused, got %d", w.Code)
	}
	if mon.refreshCalls != 2 {
		t.Fatalf("expected 2 refresh calls, got %d", mon.refreshCalls)
	}
}

func TestSimulationHandlers(t *testing.T) {
	sim := &mockSimulation{status: models.SimulationStatus{Phase: "pm25_elevated", Active: true, PeakPM25: 95}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 7}, Simulation: sim})

	// status is public
	w := doRequest(r, http.MethodGet, "/api/v1/simulation", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code=%d, body=%s", w.Code, w.Body.String())
	}

	if w := doRequest(r, http.MethodPost, "/api/v1/simulation/trigger", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	// trigger without body uses defaults
	w = doRequest(r, http.MethodPost, "/api/v1/simulation/trigger", "", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("trigger status=%d, body=%s", w.Code, w.Body.String())
	}
	if sim.lastTrigger != (service.TriggerParams{}) {
		t.Fatalf("expected zero params, got %+v", sim.lastTrigger)
	}

	// trigger with peaks
	w = doRequest(r, http.MethodPost, "/api/v1/simulation/trigger", `{"peak_pm25":95,"peak_co2":900}`, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("trigger status=%d, body=%s", w.Code, w.Body.String())
	}
	if sim.lastTrigger.PeakPM25 != 95 || sim.lastTrigger.PeakCO2 != 900 || sim.lastTrigger.PeakTemp != 0 {
		t.Fatalf("wrong trigger params: %+v", sim.lastTrigger)
	}
	var resp struct {
		Status     string                  `json:"status"`
		Simulation models.SimulationStatus `json:"simulation"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusTriggered || !resp.Simulation.Active {
		t.Fatalf("bad trigger response: %+v", resp)
	}

	// malformed body → 400
	if w := doRequest(r, http.MethodPost, "/api/v1/simulation/trigger", `{"peak_pm25":"high"}`, "valid"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}

	sim.triggerErr = service.ErrSimulationActive
	if w := doRequest(r, http.MethodPost, "/api/v1/simulation/trigger", "", "valid"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while active, got %d", w.Code)
	}
	sim.triggerErr = service.ErrInvalidPeak
	if w := doRequest(r, http.MethodPost, "/api/v1/simulation/trigger", `{"peak_co2":-1}`, "valid"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid peak, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, "/api/v1/simulation/cancel", "", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status=%d, body=%s", w.Code, w.Body.String())
	}
	sim.cancelErr = service.ErrNoSimulation
	if w := doRequest(r, http.MethodPost, "/api/v1/simulation/cancel", "", "valid"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 when idle, got %d", w.Code)
	}
	if sim.cancels != 2 {
		t.Fatalf("expected 2 cancel calls, got %d", sim.cancels)
	}
}

func TestEngineHandlers(t *testing.T) {
	ctl := &mockControl{auto: true, poller: engine.PollerStatus{
		Running:     true,
		Failures:    2,
		Delay:       3 * time.Second,
		NextFetchIn: 1500 * time.Millisecond,
		LastError:   "upstream unavailable",
	}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 7}, Control: ctl})

	if w := doRequest(r, http.MethodGet, "/api/v1/engine", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/v1/engine", "", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("engine status=%d, body=%s", w.Code, w.Body.String())
	}
	var st struct {
		AutoRefresh bool `json:"auto_refresh"`
		Poller      struct {
			Failures    int    `json:"failures"`
			DelayMS     int64  `json:"delay_ms"`
			NextFetchMS int64  `json:"next_fetch_ms"`
			LastError   string `json:"last_error"`
		} `json:"poller"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if !st.AutoRefresh || st.Poller.Failures != 2 || st.Poller.DelayMS != 3000 || st.Poller.NextFetchMS != 1500 {
		t.Fatalf("unexpected engine status: %+v", st)
	}

	w = doRequest(r, http.MethodPut, "/api/v1/engine/auto-refresh", `{"enabled":false}`, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("auto-refresh status=%d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Status      string `json:"status"`
		AutoRefresh bool   `json:"auto_refresh"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusUpdated || resp.AutoRefresh {
		t.Fatalf("bad auto-refresh response: %+v", resp)
	}

	w = doRequest(r, http.MethodPut, "/api/v1/engine/auto-refresh", `{"enabled":false}`, "valid")
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusUnchanged {
		t.Fatalf("expected %q on repeat, got %q", statusUnchanged, resp.Status)
	}

	// missing "enabled" → 400
	if w := doRequest(r, http.MethodPut, "/api/v1/engine/auto-refresh", `{}`, "valid"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without enabled, got %d", w.Code)
	}
	if len(ctl.sets) != 2 {
		t.Fatalf("expected 2 SetAutoRefresh calls, got %d", len(ctl.sets))
	}
}
