package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"chatlog/internal/analytics"
	"chatlog/internal/models"

	"github.com/labstack/echo/v4"
)

// RecentActivityHandler handles the rolling hourly activity view
// @Summary Recent hourly activity
// @Description Get hourly analytics buckets for the last N hours
// @Tags analytics
// @Accept json
// @Produce json
// @Param hours query int false "Window size in hours" default(24)
// @Success 200 {object} models.BucketListResponse
// @Failure 500 {object} models.BucketListResponse
// @Router /api/analytics/recent [get]
func RecentActivityHandler(roller *analytics.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		hours := 24
		if hoursStr := c.QueryParam("hours"); hoursStr != "" {
			if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 && parsed <= 168 {
				hours = parsed
			}
		}

		buckets, err := roller.RecentActivity(c.Request().Context(), time.Now().UTC(), hours)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.BucketListResponse{
				Error: fmt.Sprintf("Failed to compute recent activity: %v", err),
			})
		}
		if buckets == nil {
			buckets = []models.AnalyticsBucket{}
		}

		return c.JSON(http.StatusOK, models.BucketListResponse{Buckets: buckets})
	}
}

// DashboardHandler handles the daily dashboard view
// @Summary Daily dashboard
// @Description Get daily analytics buckets for a date range
// @Tags analytics
// @Accept json
// @Produce json
// @Param from query string false "Start date, YYYY-MM-DD, inclusive"
// @Param to query string false "End date, YYYY-MM-DD, inclusive"
// @Success 200 {object} models.BucketListResponse
// @Failure 400 {object} models.BucketListResponse
// @Failure 500 {object} models.BucketListResponse
// @Router /api/analytics/dashboard [get]
func DashboardHandler(roller *analytics.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		now := time.Now().UTC()
		from := c.QueryParam("from")
		to := c.QueryParam("to")
		if to == "" {
			to = now.Format(analytics.DateLayout)
		}
		if from == "" {
			from = now.AddDate(0, 0, -6).Format(analytics.DateLayout)
		}
		for _, date := range []string{from, to} {
			if _, err := time.Parse(analytics.DateLayout, date); err != nil {
				return c.JSON(http.StatusBadRequest, models.BucketListResponse{
					Error: fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD", date),
				})
			}
		}

		buckets, err := roller.DashboardSummary(c.Request().Context(), from, to, now)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.BucketListResponse{
				Error: fmt.Sprintf("Failed to compute dashboard: %v", err),
			})
		}
		if buckets == nil {
			buckets = []models.AnalyticsBucket{}
		}

		return c.JSON(http.StatusOK, models.BucketListResponse{Buckets: buckets})
	}
}

// TopIntentsHandler handles the per-date intent leaderboard
// @Summary Intent leaderboard
// @Description Get intents observed on a date, most frequent first
// @Tags analytics
// @Accept json
// @Produce json
// @Param date query string false "Report date, YYYY-MM-DD, defaults to today"
// @Success 200 {object} models.IntentListResponse
// @Failure 400 {object} models.IntentListResponse
// @Failure 500 {object} models.IntentListResponse
// @Router /api/analytics/intents [get]
func TopIntentsHandler(roller *analytics.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		date := c.QueryParam("date")
		if date == "" {
			date = time.Now().UTC().Format(analytics.DateLayout)
		}
		if _, err := time.Parse(analytics.DateLayout, date); err != nil {
			return c.JSON(http.StatusBadRequest, models.IntentListResponse{
				Date:  date,
				Error: fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD", date),
			})
		}

		intents, err := roller.TopIntents(c.Request().Context(), date)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.IntentListResponse{
				Date:  date,
				Error: fmt.Sprintf("Failed to compute intents: %v", err),
			})
		}
		if intents == nil {
			intents = []models.IntentReport{}
		}

		return c.JSON(http.StatusOK, models.IntentListResponse{Date: date, Intents: intents})
	}
}
