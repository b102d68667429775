package handlers

import (
	"fmt"
	"net/http"
	"time"

	"chatlog/internal/models"
	"chatlog/internal/retention"

	"github.com/labstack/echo/v4"
)

// RunRetentionHandler handles on-demand retention runs
// @Summary Run retention
// @Description Purge messages and analytics past the retention horizons and report per-category results
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.RetentionRequest false "Horizon overrides in days; zero keeps the configured value"
// @Success 200 {object} models.PurgeReport
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/admin/retention/run [post]
func RunRetentionHandler(manager *retention.Service, messageDays, analyticsDays int) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := models.RetentionRequest{
			MessageHorizonDays:   messageDays,
			AnalyticsHorizonDays: analyticsDays,
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("Invalid request body: %v", err),
			})
		}
		if req.MessageHorizonDays <= 0 {
			req.MessageHorizonDays = messageDays
		}
		if req.AnalyticsHorizonDays <= 0 {
			req.AnalyticsHorizonDays = analyticsDays
		}

		report := manager.Purge(c.Request().Context(),
			time.Duration(req.MessageHorizonDays)*24*time.Hour,
			time.Duration(req.AnalyticsHorizonDays)*24*time.Hour)

		return c.JSON(http.StatusOK, report)
	}
}
