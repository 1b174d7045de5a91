package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const statusEmergenciesCleared = "cleared"

// @Summary      List emergency records
// @Description  Persisted shutdown circumstances, newest first
// @Tags         emergencies
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, records"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/emergencies [get]
// @Security     BearerAuth
func (h *Handler) getEmergencies(c *gin.Context) {
	ctx := c.Request.Context()
	records, err := h.services.Monitoring.Emergencies(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load emergency records", "emergencies_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

// @Summary      Clear emergency records
// @Description  Operator acknowledgement after reviewing the records
// @Tags         emergencies
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/emergencies [delete]
// @Security     BearerAuth
func (h *Handler) clearEmergencies(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Monitoring.ClearEmergencies(ctx); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to clear emergency records", "emergencies_clear_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusEmergenciesCleared})
}
