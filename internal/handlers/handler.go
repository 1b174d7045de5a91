package handlers

import (
	"boilerctl/internal/logger"
	"boilerctl/internal/metrics"
	"boilerctl/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to services, metrics and logging.
type Handler struct {
	services *service.Service
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies. Metrics
// may be nil; the /metrics route and request instrumentation are then
// skipped.
func NewHandler(services *service.Service, m *metrics.Metrics, log *logger.Logger) *Handler {
	return &Handler{services: services, metrics: m, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.observeRequest)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health and scrape endpoints, unauthenticated
	router.GET("/health", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// WebSocket status stream (HTTP upgrade) on the same port
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
	api := r.Group("/api/v1", h.bearerAuth)
	{
		h.registerBoilerRoutes(api)
		h.registerConfigRoutes(api)
		h.registerLogRoutes(api)
		h.registerEmergencyRoutes(api)
	}
}

func (h *Handler) registerBoilerRoutes(api *gin.RouterGroup) {
	boiler := api.Group("/boiler")
	{
		boiler.GET("/status", h.getStatus)
		boiler.POST("/enable", h.enableBoiler)
		boiler.POST("/disable", h.disableBoiler)
		// Body example: {"circuit":"heating","enabled":true,"target_c":65,"power":"auto"}
		boiler.POST("/demand", h.setDemand)
		boiler.POST("/reset-lockout", h.resetLockout)
		boiler.POST("/recover", h.recoverBoiler)
	}
}

func (h *Handler) registerConfigRoutes(api *gin.RouterGroup) {
	cfg := api.Group("/config")
	{
		cfg.GET("/safety", h.getSafety)
		cfg.PUT("/safety", h.putSafety)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}

func (h *Handler) registerEmergencyRoutes(api *gin.RouterGroup) {
	em := api.Group("/emergencies")
	{
		em.GET("/", h.getEmergencies)
		em.DELETE("/", h.clearEmergencies)
	}
}
