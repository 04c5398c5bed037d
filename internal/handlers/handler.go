package handlers

import (
	"time"

	"biofilter_monitor/internal/logger"
	"biofilter_monitor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services       *service.Service
	log            *logger.Logger
	streamInterval time.Duration
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log, streamInterval: defaultInterval}
}

// WithStreamInterval sets the default WebSocket push interval.
func (h *Handler) WithStreamInterval(d time.Duration) *Handler {
	if d > 0 && d <= maxInterval {
		h.streamInterval = d
	}
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints
	h.registerAPIRoutes(router)

	// Dashboard stream and visibility reports (HTTP upgrade on the same port)
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		h.registerMetricsRoutes(api)
		h.registerSimulationRoutes(api)
		h.registerEngineRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerMetricsRoutes(api *gin.RouterGroup) {
	metrics := api.Group("/metrics")
	{
		metrics.GET("/current", h.getCurrent)
		metrics.GET("/history", h.getHistory)
		metrics.POST("/refresh", h.operatorIdMiddleware, h.refreshMetrics)
	}
}

func (h *Handler) registerSimulationRoutes(api *gin.RouterGroup) {
	sim := api.Group("/simulation")
	{
		sim.GET("", h.getSimulation)
		// Body example: {"peak_pm25":80,"peak_co2":700,"peak_temp":30}
		sim.POST("/trigger", h.operatorIdMiddleware, h.triggerSimulation)
		sim.POST("/cancel", h.operatorIdMiddleware, h.cancelSimulation)
	}
}

func (h *Handler) registerEngineRoutes(api *gin.RouterGroup) {
	eng := api.Group("/engine", h.operatorIdMiddleware)
	{
		eng.GET("", h.getEngineStatus)
		// Body example: {"enabled":false}
		eng.PUT("/auto-refresh", h.setAutoRefresh)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs", h.operatorIdMiddleware)
	{
		logs.GET("", h.getLogs)
		logs.GET("/", h.getLogs)
	}
}
