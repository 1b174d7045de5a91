package handlers

import (
	"errors"
	"net/http"

	"boilerctl/internal/config"
	"boilerctl/internal/service"

	"github.com/gin-gonic/gin"
)

const statusConfigUpdated = "config_updated"

// SafetyUpdateRequest is an exported model for Swagger docs of the
// safety update payload. Durations use Go syntax.
type SafetyUpdateRequest struct {
	PumpDwell       string   `json:"pump_dwell,omitempty" example:"45s"`
	SensorStale     string   `json:"sensor_stale,omitempty" example:"2m"`
	PostPurge       string   `json:"post_purge,omitempty" example:"90s"`
	ErrorRecovery   string   `json:"error_recovery,omitempty" example:"5m"`
	PIDIntegralMinC *float64 `json:"pid_integral_min_c,omitempty" example:"-100"`
	PIDIntegralMaxC *float64 `json:"pid_integral_max_c,omitempty" example:"100"`
}

// @Summary      Safety settings
// @Description  Runtime-tunable timings, PID integral bounds and tuning, plus the fixed safety limits for reference
// @Tags         config
// @Produce      json
// @Success      200  {object}  service.SafetySettings
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/config/safety [get]
// @Security     BearerAuth
func (h *Handler) getSafety(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.SafetyConfig.View())
}

// @Summary      Update safety settings
// @Description  Only the listed fields change; values outside the validated ranges reject the request
// @Tags         config
// @Accept       json
// @Produce      json
// @Param        body  body   SafetyUpdateRequest  true  "Fields to change"
// @Success      200   {object}  service.SafetySettings
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/config/safety [put]
// @Security     BearerAuth
func (h *Handler) putSafety(c *gin.Context) {
	var req service.SafetyUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.services.SafetyConfig.Update(ctx, req); err != nil {
		if errors.Is(err, config.ErrOutOfRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to update settings", "config_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   statusConfigUpdated,
		"settings": h.services.SafetyConfig.View(),
	})
}
