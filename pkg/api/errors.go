package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/faultmaven/faultmaven/pkg/engine"
	"github.com/faultmaven/faultmaven/pkg/queue"
	"github.com/faultmaven/faultmaven/pkg/services"
)

// respondServiceError maps service-layer errors to HTTP responses.
func respondServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	switch {
	case errors.As(err, &validErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validErr.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, services.ErrCaseClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "case is closed"})
	case errors.Is(err, services.ErrNotCloseable):
		c.JSON(http.StatusConflict, gin.H{"error": "case must reach DOCUMENTING or RESOLVED before it can be closed"})
	case errors.Is(err, services.ErrWrongStatus):
		c.JSON(http.StatusConflict, gin.H{"error": "case is in the wrong status for this operation"})
	case errors.Is(err, services.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "resource already exists"})
	case errors.Is(err, services.ErrLeaseHeld):
		c.JSON(http.StatusConflict, gin.H{"error": "a turn is currently running for this case"})
	default:
		slog.Error("Unexpected service error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// respondExecutorError maps turn executor rejections to HTTP responses.
// Queue-full and shutdown are transient; the client should retry.
func respondExecutorError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, queue.ErrTurnActive):
		c.JSON(http.StatusConflict, gin.H{"error": "a turn is already running for this case"})
	case errors.Is(err, queue.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "turn queue is full", "retryable": true})
	case errors.Is(err, queue.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is shutting down", "retryable": true})
	default:
		respondServiceError(c, err)
	}
}

// respondEngineError maps engine errors from the synchronous transition
// endpoints to HTTP responses. LLM outage is transient (503, retryable);
// an unparseable LLM response is a bad gateway.
func respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrPhaseGuardFailed):
		c.JSON(http.StatusConflict, gin.H{"error": "operation is not allowed in the case's current status"})
	case errors.Is(err, engine.ErrLLMUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "language model is unavailable", "retryable": true})
	case errors.Is(err, engine.ErrLLMMalformed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "language model returned an unusable response"})
	case errors.Is(err, engine.ErrInvariantViolation):
		slog.Error("Transition produced invalid state", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	case errors.Is(err, engine.ErrStatePersistFailed):
		slog.Error("Transition state persist failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		respondServiceError(c, err)
	}
}
