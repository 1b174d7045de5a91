package handlers

import (
	"errors"
	"net/http"

	"boilerctl/internal/config"
	"boilerctl/internal/control"
	"boilerctl/internal/models"
	"boilerctl/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK           = "ok"
	statusEnabled      = "enabled"
	statusDisabled     = "disabled"
	statusDemandSet    = "demand_set"
	statusLockoutReset = "lockout_reset"
	statusRecovered    = "recovered"

	errEnableBoiler  = "failed to enable boiler"
	errDisableBoiler = "failed to disable boiler"
	errSetDemand     = "failed to set demand"
	errGetStatus     = "failed to load status"
	errRecover       = "failed to recover"

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

// Respond with a command outcome plus the resulting live status.
func (h *Handler) respondWithStatus(c *gin.Context, status string, extra gin.H) {
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	resp["state"] = h.services.Monitoring.Status()
	c.JSON(http.StatusOK, resp)
}

// Request DTO for the demand endpoint.
type demandRequest struct {
	Circuit string  `json:"circuit" binding:"required"` // heating | water
	Enabled bool    `json:"enabled"`
	TargetC float64 `json:"target_c,omitempty"` // 0 keeps the current setpoint
	Power   string  `json:"power,omitempty"`    // auto | half | full
}

// DemandRequest is an exported model for Swagger docs of the demand payload.
type DemandRequest struct {
	// Circuit to command. Allowed: heating, water
	Circuit string `json:"circuit" example:"heating"`
	// Whether the circuit should request heat
	Enabled bool `json:"enabled" example:"true"`
	// Target temperature in Celsius (0 keeps the current setpoint)
	TargetC float64 `json:"target_c,omitempty" example:"65"`
	// Burner power preference. Allowed: auto, half, full
	Power string `json:"power,omitempty" example:"auto"`
}

// statusResponse is the body of GET /boiler/status: the live aggregate
// view with the lifetime counters alongside.
type statusResponse struct {
	models.BoilerStatus
	Counters models.RuntimeCounters `json:"counters"`
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

// @Summary      Boiler status
// @Description  Aggregate view: burner state, failsafe level and reason, temperatures, pressure, active relays and lifetime counters
// @Tags         boiler
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/boiler/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		BoilerStatus: h.services.Monitoring.Status(),
		Counters:     h.services.Monitoring.Counters(),
	})
}

// @Summary      Enable boiler
// @Tags         boiler
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/boiler/enable [post]
// @Security     BearerAuth
func (h *Handler) enableBoiler(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Boiler.Enable(ctx); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errEnableBoiler, "boiler_enable_failed", err)
		return
	}
	h.respondWithStatus(c, statusEnabled, gin.H{})
}

// @Summary      Disable boiler
// @Description  The burner shuts down through post-purge; circuit demand is kept for the next enable
// @Tags         boiler
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/boiler/disable [post]
// @Security     BearerAuth
func (h *Handler) disableBoiler(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Boiler.Disable(ctx); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errDisableBoiler, "boiler_disable_failed", err)
		return
	}
	h.respondWithStatus(c, statusDisabled, gin.H{})
}

// @Summary      Set heat demand
// @Description  One atomic update per circuit: enable flag, optional target and optional power preference
// @Tags         boiler
// @Accept       json
// @Produce      json
// @Param        body  body   DemandRequest  true  "Demand payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/boiler/demand [post]
// @Security     BearerAuth
func (h *Handler) setDemand(c *gin.Context) {
	var req demandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	params := service.DemandParams{
		Circuit: req.Circuit,
		Enabled: req.Enabled,
		TargetC: req.TargetC,
		Power:   req.Power,
	}
	if err := h.services.Boiler.SetDemand(ctx, params); err != nil {
		if errors.Is(err, service.ErrUnknownCircuit) ||
			errors.Is(err, service.ErrUnknownPower) ||
			errors.Is(err, config.ErrOutOfRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errSetDemand, "boiler_demand_failed", err, "circuit", req.Circuit)
		return
	}
	h.respondWithStatus(c, statusDemandSet, gin.H{"circuit": req.Circuit})
}

// @Summary      Reset ignition lockout
// @Description  Operator acknowledgement after a lockout; fails with 409 when the burner is not locked out
// @Tags         boiler
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/boiler/reset-lockout [post]
// @Security     BearerAuth
func (h *Handler) resetLockout(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Boiler.ResetLockout(ctx); err != nil {
		if errors.Is(err, control.ErrNotLockedOut) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to reset lockout", "boiler_reset_lockout_failed", err)
		return
	}
	h.respondWithStatus(c, statusLockoutReset, gin.H{})
}

// @Summary      Attempt failsafe recovery
// @Description  Gated: refused while the root cause persists, during the cooldown, or once attempts are exhausted
// @Tags         boiler
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/boiler/recover [post]
// @Security     BearerAuth
func (h *Handler) recoverBoiler(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Boiler.Recover(ctx); err != nil {
		if errors.Is(err, control.ErrLockTimeout) {
			h.logAndJSONError(c, http.StatusInternalServerError, errRecover, "boiler_recover_failed", err)
			return
		}
		// Recovery refusals are state conflicts, not client mistakes.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.respondWithStatus(c, statusRecovered, gin.H{})
}
