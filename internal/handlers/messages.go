package handlers

import (
	"fmt"
	"net/http"

	"chatlog/internal/ingest"
	"chatlog/internal/models"

	"github.com/labstack/echo/v4"
)

// SubmitMessageHandler handles message ingestion from the chat widget
// @Summary Submit a chat message
// @Description Record one chat message and fold it into session and query statistics
// @Tags messages
// @Accept json
// @Produce json
// @Param request body models.SubmitMessageRequest true "Message payload"
// @Success 201 {object} models.SubmitMessageResponse
// @Failure 400 {object} models.SubmitMessageResponse
// @Failure 500 {object} models.SubmitMessageResponse
// @Router /api/messages [post]
func SubmitMessageHandler(pipeline *ingest.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.SubmitMessageRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.SubmitMessageResponse{
				Error: fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		id, err := pipeline.Submit(c.Request().Context(), &req)
		if err != nil {
			if models.IsValidation(err) {
				return c.JSON(http.StatusBadRequest, models.SubmitMessageResponse{
					Error: err.Error(),
				})
			}
			return c.JSON(http.StatusInternalServerError, models.SubmitMessageResponse{
				Error: fmt.Sprintf("Failed to ingest message: %v", err),
			})
		}

		return c.JSON(http.StatusCreated, models.SubmitMessageResponse{MessageID: id})
	}
}
