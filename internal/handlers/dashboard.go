package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"biofilter_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusRefreshed = "refreshed"
	statusTriggered = "triggered"
	statusCancelled = "cancelled"
	statusUpdated   = "updated"
	statusUnchanged = "unchanged"

	errRefresh         = "failed to refresh metrics"
	errRefreshRefused  = "refresh refused: stopped, hidden or already fetching"
	errTrigger         = "failed to trigger simulation"
	errCancel          = "failed to cancel simulation"
	errSimulationBusy  = "simulation already running"
	errNoSimulation    = "no simulation running"
	errLimitInvalid    = "invalid 'limit'; use a non-negative integer"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// TriggerRequest is the optional trigger payload. Omitted or zero peaks use the configured defaults.
type TriggerRequest struct {
	// Peak pm25 in µg/m³
	PeakPM25 float64 `json:"peak_pm25,omitempty" example:"80"`
	// Peak co2 in ppm
	PeakCO2 float64 `json:"peak_co2,omitempty" example:"700"`
	// Peak temperature in °C
	PeakTemp float64 `json:"peak_temp,omitempty" example:"30"`
}

// AutoRefreshRequest toggles auto-refresh.
type AutoRefreshRequest struct {
	Enabled *bool `json:"enabled" binding:"required" example:"false"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Current dashboard state
// @Tags         metrics
// @Produce      json
// @Success      200  {object}  models.DashboardState
// @Router       /api/v1/metrics/current [get]
func (h *Handler) getCurrent(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.State())
}

// @Summary      Snapshot history
// @Description  Most recent samples, oldest first. limit=0 returns everything retained.
// @Tags         metrics
// @Produce      json
// @Param        limit  query  int  false  "Maximum number of samples"  example(20)
// @Success      200  {object}  map[string]interface{}  "count, samples"
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/metrics/history [get]
func (h *Handler) getHistory(c *gin.Context) {
	limit := 0
	if qs := c.Query("limit"); qs != "" {
		v, err := strconv.Atoi(qs)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errLimitInvalid})
			return
		}
		limit = v
	}
	samples, err := h.services.Monitoring.History(limit)
	if err != nil {
		h.logAndJSONError(c, http.StatusBadRequest, errLimitInvalid, "metrics_history_failed", err, "limit", limit)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(samples),
		"samples": samples,
	})
}

// @Summary      Refresh now
// @Description  Fetches immediately and restarts the backoff timer. Refused while stopped, hidden or already fetching.
// @Tags         metrics
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/metrics/refresh [post]
// @Security     BearerAuth
func (h *Handler) refreshMetrics(c *gin.Context) {
	st, err := h.services.Monitoring.Refresh(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrRefreshRefused):
		c.JSON(http.StatusConflict, gin.H{"error": errRefreshRefused, "state": st})
		return
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errRefresh, "metrics_refresh_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusRefreshed, "state": st})
}

// @Summary      Simulation status
// @Tags         simulation
// @Produce      json
// @Success      200  {object}  models.SimulationStatus
// @Router       /api/v1/simulation [get]
func (h *Handler) getSimulation(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Simulation.SimulationStatus())
}

// @Summary      Trigger staged alert simulation
// @Description  Elevates pm25, then co2, then temperature, restoring each before the next.
// @Tags         simulation
// @Accept       json
// @Produce      json
// @Param        body  body   TriggerRequest  false  "Peak overrides"
// @Success      200   {object}  map[string]interface{}  "status, simulation"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/simulation/trigger [post]
// @Security     BearerAuth
func (h *Handler) triggerSimulation(c *gin.Context) {
	var req TriggerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}
	st, err := h.services.Simulation.Trigger(c.Request.Context(), service.TriggerParams{
		PeakPM25: req.PeakPM25,
		PeakCO2:  req.PeakCO2,
		PeakTemp: req.PeakTemp,
	})
	switch {
	case errors.Is(err, service.ErrSimulationActive):
		c.JSON(http.StatusConflict, gin.H{"error": errSimulationBusy, "simulation": st})
		return
	case errors.Is(err, service.ErrInvalidPeak):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errTrigger, "simulation_trigger_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusTriggered, "simulation": st})
}

// @Summary      Cancel simulation
// @Description  Restores the currently overridden field and returns to idle.
// @Tags         simulation
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, simulation"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/simulation/cancel [post]
// @Security     BearerAuth
func (h *Handler) cancelSimulation(c *gin.Context) {
	st, err := h.services.Simulation.Cancel(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrNoSimulation):
		c.JSON(http.StatusConflict, gin.H{"error": errNoSimulation})
		return
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errCancel, "simulation_cancel_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusCancelled, "simulation": st})
}

// @Summary      Engine status
// @Tags         engine
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "auto_refresh, poller"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/engine [get]
// @Security     BearerAuth
func (h *Handler) getEngineStatus(c *gin.Context) {
	ps := h.services.Control.PollerStatus()
	c.JSON(http.StatusOK, gin.H{
		"auto_refresh": h.services.Control.AutoRefresh(),
		"poller": gin.H{
			"running":       ps.Running,
			"in_flight":     ps.InFlight,
			"failures":      ps.Failures,
			"delay_ms":      ps.Delay.Milliseconds(),
			"next_fetch_ms": ps.NextFetchIn.Milliseconds(),
			"last_error":    ps.LastError,
		},
	})
}

// @Summary      Toggle auto-refresh
// @Description  Disabling stops polling and the auto-trigger schedule; an active simulation run finishes.
// @Tags         engine
// @Accept       json
// @Produce      json
// @Param        body  body   AutoRefreshRequest  true  "Desired setting"
// @Success      200   {object}  map[string]interface{}  "status, auto_refresh"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/engine/auto-refresh [put]
// @Security     BearerAuth
func (h *Handler) setAutoRefresh(c *gin.Context) {
	var req AutoRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	status := statusUnchanged
	if h.services.Control.SetAutoRefresh(c.Request.Context(), *req.Enabled) {
		status = statusUpdated
		if h.log != nil {
			h.log.Infow("auto_refresh_set", "enabled", *req.Enabled, "operator_id", c.GetInt(operatorIDKey))
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "auto_refresh": h.services.Control.AutoRefresh()})
}
