package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/faultmaven/faultmaven/pkg/models"
	"github.com/faultmaven/faultmaven/pkg/queue"
)

// SendMessageRequest is the HTTP request body for POST /cases/:id/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// sendMessageHandler handles POST /api/v1/cases/:id/messages.
// Persists the user message (masked) and submits it for async turn
// processing. The turn's progress streams over the WebSocket.
func (s *Server) sendMessageHandler(c *gin.Context) {
	// 1. Validate case ID
	caseID := c.Param("id")
	if caseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case id is required"})
		return
	}

	// 2. Bind and validate request body
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	if len(req.Content) > 100_000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content exceeds maximum length of 100,000 characters"})
		return
	}

	// 3. Fetch the case; the executor needs the full row
	fc, err := s.caseService.GetCase(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// 4. Persist the queued user message
	msg, err := s.messageService.AddUserMessage(c.Request.Context(), models.AddMessageRequest{
		CaseID:  caseID,
		Content: s.masker.MaskUserContent(req.Content),
		Author:  extractAuthor(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// 5. Submit to the turn executor
	turnID, err := s.executor.Submit(c.Request.Context(), queue.TurnInput{
		Case:    fc,
		Message: msg,
	})
	if err != nil {
		// Clean up the orphaned message on rejection: nothing will ever
		// claim it once Submit has refused.
		if errors.Is(err, queue.ErrTurnActive) ||
			errors.Is(err, queue.ErrQueueFull) ||
			errors.Is(err, queue.ErrShuttingDown) {
			if delErr := s.messageService.DeleteMessage(c.Request.Context(), msg.ID); delErr != nil {
				slog.Warn("Failed to clean up rejected message",
					"message_id", msg.ID, "error", delErr)
			}
		}
		respondExecutorError(c, err)
		return
	}

	// 6. 202 Accepted
	c.JSON(http.StatusAccepted, &models.MessageAcceptedResponse{
		MessageID: msg.ID,
		CaseID:    caseID,
		TurnID:    turnID,
		Status:    string(msg.Status),
	})
}

// listMessagesHandler handles GET /api/v1/cases/:id/messages.
func (s *Server) listMessagesHandler(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case id is required"})
		return
	}

	if _, err := s.caseService.GetCase(c.Request.Context(), caseID); err != nil {
		respondServiceError(c, err)
		return
	}

	list, err := s.messageService.ListMessages(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}
