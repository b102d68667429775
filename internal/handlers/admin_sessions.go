package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"chatlog/internal/auth"
	"chatlog/internal/eventstore"
	"chatlog/internal/models"
	"chatlog/internal/session"

	"github.com/labstack/echo/v4"
)

// AdminLoginHandler handles admin authentication
// @Summary Admin login
// @Description Authenticate admin user and receive auth token
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.AdminAuthRequest true "Login credentials"
// @Success 200 {object} models.AdminAuthResponse
// @Failure 401 {object} models.AdminAuthResponse
// @Router /api/admin/login [post]
func AdminLoginHandler(authManager *auth.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.AdminAuthRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.AdminAuthResponse{
				Success: false,
				Error:   fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		token, err := authManager.Authenticate(req.Username, req.Password)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, models.AdminAuthResponse{
				Success: false,
				Error:   "Invalid username or password",
			})
		}

		return c.JSON(http.StatusOK, models.AdminAuthResponse{
			Success: true,
			Token:   token,
		})
	}
}

// ListSessionsHandler handles listing session summaries
// @Summary List sessions
// @Description Get a paginated list of session summaries, most recent activity first
// @Tags admin
// @Accept json
// @Produce json
// @Param limit query int false "Number of sessions per page" default(20)
// @Param offset query int false "Offset for pagination" default(0)
// @Success 200 {object} models.SessionListResponse
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/admin/sessions [get]
func ListSessionsHandler(sessions *session.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 20
		offset := 0

		if limitStr := c.QueryParam("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}
		if offsetStr := c.QueryParam("offset"); offsetStr != "" {
			if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
				offset = parsed
			}
		}

		summaries, err := sessions.List(c.Request().Context(), limit, offset)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to list sessions: %v", err),
			})
		}
		if summaries == nil {
			summaries = []models.SessionSummary{}
		}

		total, err := sessions.Count(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to count sessions: %v", err),
			})
		}

		return c.JSON(http.StatusOK, models.SessionListResponse{
			Sessions: summaries,
			Total:    total,
			Limit:    limit,
			Offset:   offset,
			HasMore:  offset+limit < total,
		})
	}
}

// GetSessionHandler handles getting a single session with its messages
// @Summary Get session details
// @Description Get a session summary together with its full message history
// @Tags admin
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} models.SessionDetailResponse
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/admin/sessions/{sessionId} [get]
func GetSessionHandler(sessions *session.Service, events *eventstore.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := c.Param("sessionId")
		if sessionID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Session ID is required",
			})
		}

		summary, err := sessions.Get(c.Request().Context(), sessionID)
		if err != nil {
			if models.IsNotFound(err) {
				return c.JSON(http.StatusNotFound, map[string]string{
					"error": fmt.Sprintf("Session %s not found", sessionID),
				})
			}
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to load session: %v", err),
			})
		}

		messages, err := events.Query(c.Request().Context(), eventstore.Filter{SessionID: sessionID})
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to load session messages: %v", err),
			})
		}

		return c.JSON(http.StatusOK, models.SessionDetailResponse{
			Session:  *summary,
			Messages: messages,
		})
	}
}

// SetSessionOutcomeHandler handles recording a session outcome
// @Summary Set session outcome
// @Description Record satisfaction and resolution status for a session
// @Tags admin
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body models.SessionOutcomeRequest true "Outcome payload"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/admin/sessions/{sessionId}/outcome [post]
func SetSessionOutcomeHandler(sessions *session.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := c.Param("sessionId")
		if sessionID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Session ID is required",
			})
		}

		var req models.SessionOutcomeRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		var satisfaction *models.Satisfaction
		if req.Satisfaction != nil {
			s := models.Satisfaction(*req.Satisfaction)
			satisfaction = &s
		}
		var resolution *models.ResolutionStatus
		if req.ResolutionStatus != nil {
			r := models.ResolutionStatus(*req.ResolutionStatus)
			resolution = &r
		}

		err := sessions.SetOutcome(c.Request().Context(), sessionID, satisfaction, resolution)
		if err != nil {
			switch {
			case models.IsValidation(err):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			case models.IsNotFound(err):
				return c.JSON(http.StatusNotFound, map[string]string{
					"error": fmt.Sprintf("Session %s not found", sessionID),
				})
			default:
				return c.JSON(http.StatusInternalServerError, map[string]string{
					"error": fmt.Sprintf("Failed to set session outcome: %v", err),
				})
			}
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
	}
}
