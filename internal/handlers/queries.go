package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"chatlog/internal/frequency"
	"chatlog/internal/models"

	"github.com/labstack/echo/v4"
)

// TopQueriesHandler handles the common-queries leaderboard
// @Summary Top queries
// @Description Get the most frequently asked queries, highest count first
// @Tags admin
// @Accept json
// @Produce json
// @Param limit query int false "Number of entries" default(10)
// @Success 200 {object} models.TopQueriesResponse
// @Failure 401 {object} map[string]string
// @Failure 500 {object} models.TopQueriesResponse
// @Router /api/admin/queries/top [get]
func TopQueriesHandler(index *frequency.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 10
		if limitStr := c.QueryParam("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}

		queries, err := index.Top(c.Request().Context(), limit)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.TopQueriesResponse{
				Error: fmt.Sprintf("Failed to list top queries: %v", err),
			})
		}
		if queries == nil {
			queries = []models.QueryFrequencyEntry{}
		}

		return c.JSON(http.StatusOK, models.TopQueriesResponse{Queries: queries})
	}
}

// ResetQueriesHandler handles the administrative frequency reset
// @Summary Reset query statistics
// @Description Clear the common-queries index
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/admin/queries/reset [post]
func ResetQueriesHandler(index *frequency.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := index.Reset(c.Request().Context()); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to reset query statistics: %v", err),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
	}
}
