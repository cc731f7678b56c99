package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/pkg/events"
	"github.com/faultmaven/faultmaven/pkg/models"
)

// createCaseHandler handles POST /api/v1/cases. New cases open in
// CONSULTING; title and description pass through the masker before
// persistence.
func (s *Server) createCaseHandler(c *gin.Context) {
	var req models.CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req.Title = s.masker.MaskUserContent(req.Title)
	req.Description = s.masker.MaskUserContent(req.Description)
	req.Owner = extractAuthor(c)

	created, err := s.caseService.CreateCase(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// listCasesHandler handles GET /api/v1/cases.
func (s *Server) listCasesHandler(c *gin.Context) {
	var filters models.CaseFilters

	if v := c.Query("status"); v != "" {
		if err := faultcase.StatusValidator(faultcase.Status(v)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + v})
			return
		}
		filters.Status = v
	}
	filters.Owner = c.Query("owner")

	if v := c.Query("escalated"); v != "" {
		escalated, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escalated: must be true or false"})
			return
		}
		filters.Escalated = &escalated
	}

	if v := c.Query("created_after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid created_after: must be RFC3339"})
			return
		}
		filters.CreatedAfter = &ts
	}
	if v := c.Query("created_before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid created_before: must be RFC3339"})
			return
		}
		filters.CreatedBefore = &ts
	}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			filters.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	list, err := s.caseService.ListCases(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// getCaseHandler handles GET /api/v1/cases/:id.
func (s *Server) getCaseHandler(c *gin.Context) {
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

	c.JSON(http.StatusOK, fc)
}

// closeCaseHandler handles POST /api/v1/cases/:id/close. Only cases in
// DOCUMENTING or RESOLVED can close; closed_at anchors retention.
func (s *Server) closeCaseHandler(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case id is required"})
		return
	}

	closed, err := s.caseService.CloseCase(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.publishCaseStatus(c, closed.ID, closed.Title, closed.Status)

	c.JSON(http.StatusOK, closed)
}

// publishCaseStatus emits a case.status_changed event for API-originated
// transitions. Publish failures are logged, never surfaced.
func (s *Server) publishCaseStatus(c *gin.Context, caseID, title string, status faultcase.Status) {
	if s.eventPublisher == nil {
		return
	}
	err := s.eventPublisher.PublishCaseStatus(c.Request.Context(), caseID, events.CaseStatusPayload{
		Type:      events.EventTypeCaseStatus,
		CaseID:    caseID,
		Status:    status,
		Title:     title,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		slog.Warn("Failed to publish case.status_changed event",
			"case_id", caseID, "error", err)
	}
}
