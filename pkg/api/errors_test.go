package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/faultmaven/faultmaven/pkg/engine"
	"github.com/faultmaven/faultmaven/pkg/queue"
	"github.com/faultmaven/faultmaven/pkg/services"
)

// respondWith runs one error mapper against a fresh context and returns
// the recorded response.
func respondWith(t *testing.T, respond func(*gin.Context, error), err error) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	respond(c, err)
	return rec
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"validation error", services.NewValidationError("title", "required"), http.StatusBadRequest, "title"},
		{"not found", services.ErrNotFound, http.StatusNotFound, "resource not found"},
		{"wrapped not found", fmt.Errorf("get case: %w", services.ErrNotFound), http.StatusNotFound, "resource not found"},
		{"case closed", services.ErrCaseClosed, http.StatusConflict, "case is closed"},
		{"not closeable", services.ErrNotCloseable, http.StatusConflict, "DOCUMENTING or RESOLVED"},
		{"wrong status", services.ErrWrongStatus, http.StatusConflict, "wrong status"},
		{"already exists", services.ErrAlreadyExists, http.StatusConflict, "already exists"},
		{"lease held", services.ErrLeaseHeld, http.StatusConflict, "currently running"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := respondWith(t, respondServiceError, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestRespondExecutorError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"turn active", queue.ErrTurnActive, http.StatusConflict, "already running"},
		{"queue full", queue.ErrQueueFull, http.StatusServiceUnavailable, "queue is full"},
		{"shutting down", queue.ErrShuttingDown, http.StatusServiceUnavailable, "shutting down"},
		{"falls back to service mapping", services.ErrNotFound, http.StatusNotFound, "resource not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := respondWith(t, respondExecutorError, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestRespondExecutorError_TransientRejectionsAreRetryable(t *testing.T) {
	for _, err := range []error{queue.ErrQueueFull, queue.ErrShuttingDown} {
		rec := respondWith(t, respondExecutorError, err)
		assert.Contains(t, rec.Body.String(), `"retryable":true`)
	}
}

func TestRespondEngineError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"phase guard", engine.ErrPhaseGuardFailed, http.StatusConflict, "not allowed"},
		{"llm unavailable", engine.ErrLLMUnavailable, http.StatusServiceUnavailable, "language model is unavailable"},
		{"llm malformed", engine.ErrLLMMalformed, http.StatusBadGateway, "unusable response"},
		{"invariant violation", engine.ErrInvariantViolation, http.StatusInternalServerError, "internal server error"},
		{"persist failed", engine.ErrStatePersistFailed, http.StatusInternalServerError, "internal server error"},
		{"falls back to service mapping", services.ErrLeaseHeld, http.StatusConflict, "currently running"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := respondWith(t, respondEngineError, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestRespondEngineError_LLMOutageIsRetryable(t *testing.T) {
	rec := respondWith(t, respondEngineError, engine.ErrLLMUnavailable)
	assert.Contains(t, rec.Body.String(), `"retryable":true`)
}
