package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/faultmaven/faultmaven/pkg/models"
)

// getCaseStateHandler handles GET /api/v1/cases/:id/state. State is null
// until the first committed turn or transition confirmation.
func (s *Server) getCaseStateHandler(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case id is required"})
		return
	}

	fc, err := s.caseService.GetCase(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	st, err := s.stateStore.Load(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, &models.CaseStateResponse{
		CaseID:             fc.ID,
		Status:             string(fc.Status),
		EscalationRequired: fc.EscalationRequired,
		State:              st,
	})
}

// listTurnsHandler handles GET /api/v1/cases/:id/turns: the per-turn
// audit trail, oldest first.
func (s *Server) listTurnsHandler(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case id is required"})
		return
	}

	if _, err := s.caseService.GetCase(c.Request.Context(), caseID); err != nil {
		respondServiceError(c, err)
		return
	}

	list, err := s.turnService.ListTurns(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}
