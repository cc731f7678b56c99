package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/pkg/engine"
	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/models"
)

// proposeTransitionHandler handles POST /api/v1/cases/:id/transition/propose.
// Asks the engine to classify the case for the consulting-to-investigating
// handoff. Read-only: nothing binds until the user confirms.
func (s *Server) proposeTransitionHandler(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case id is required"})
		return
	}
	if s.transitionEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transition service is not available"})
		return
	}

	fc, err := s.caseService.GetCase(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	history, err := s.messageService.ConversationHistory(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	engineCase := engineCaseFrom(fc)
	engineCase.History = history

	proposal, err := s.transitionEngine.ProposeInvestigationTransition(c.Request.Context(), engineCase)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, &models.TransitionProposalResponse{
		CaseID:        caseID,
		TemporalState: string(proposal.TemporalState),
		UrgencyLevel:  string(proposal.UrgencyLevel),
		Strategy:      string(proposal.Strategy),
		Confidence:    proposal.Confidence,
		Reasoning:     proposal.Reasoning,
	})
}

// confirmTransitionHandler handles POST /api/v1/cases/:id/transition/confirm.
// Records the user-approved classification and flips the case to
// INVESTIGATING. The case lease is held for the duration so a running
// turn and a confirm can never interleave.
func (s *Server) confirmTransitionHandler(c *gin.Context) {
	caseID := c.Param("id")
	if caseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case id is required"})
		return
	}
	if s.transitionEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transition service is not available"})
		return
	}

	var req models.ConfirmTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	temporal := state.TemporalState(strings.ToUpper(strings.TrimSpace(req.TemporalState)))
	if !temporal.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid temporal_state: must be ONGOING or HISTORICAL"})
		return
	}
	urgency := state.UrgencyLevel(strings.ToUpper(strings.TrimSpace(req.UrgencyLevel)))
	if !urgency.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid urgency_level: must be CRITICAL, HIGH, MEDIUM, LOW or UNKNOWN"})
		return
	}

	fc, err := s.caseService.GetCase(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// Fence against in-flight turns: the executor holds this lease while
	// a turn runs, and a turn submitted mid-confirm fails its acquire.
	holder := "api/confirm-" + uuid.New().String()
	lease, err := s.leaseService.Acquire(c.Request.Context(), caseID, holder)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer func() {
		if relErr := s.leaseService.Release(context.Background(), lease.ID, holder); relErr != nil {
			slog.Warn("Failed to release confirm lease",
				"case_id", caseID, "error", relErr)
		}
	}()

	st, err := s.transitionEngine.ConfirmInvestigationTransition(c.Request.Context(), engineCaseFrom(fc), temporal, urgency)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	updated, err := s.caseService.ApplyConsultingTransition(
		c.Request.Context(), caseID,
		string(temporal), string(urgency), string(st.Strategy))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.publishCaseStatus(c, updated.ID, updated.Title, updated.Status)

	c.JSON(http.StatusOK, &models.ConfirmTransitionResponse{
		CaseID:        updated.ID,
		Status:        string(updated.Status),
		TemporalState: updated.TemporalState,
		UrgencyLevel:  updated.UrgencyLevel,
		Strategy:      updated.Strategy,
	})
}

// engineCaseFrom converts a case row into the engine's view of it.
func engineCaseFrom(fc *ent.FaultCase) *engine.Case {
	return &engine.Case{
		ID:            fc.ID,
		Title:         fc.Title,
		Description:   fc.Description,
		Status:        state.CaseStatus(fc.Status),
		TemporalState: state.TemporalState(fc.TemporalState),
		UrgencyLevel:  state.UrgencyLevel(fc.UrgencyLevel),
		Strategy:      state.Strategy(fc.Strategy),
	}
}
