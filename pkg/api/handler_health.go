package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// HealthCheck is one component's line in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// ConnStateReporter reports LLM transport connectivity without issuing
// an RPC.
type ConnStateReporter interface {
	State() string
}

// SetLLMConnState injects the LLM provider's connectivity reporter for
// the health endpoint.
func (s *Server) SetLLMConnState(r ConnStateReporter) {
	s.llmConn = r
}

// healthHandler handles GET /health and GET /api/v1/health.
// Database failure makes the service unhealthy (503). The executor and
// the LLM transport only degrade the status: an unreachable LLM must not
// make the orchestrator restart this pod.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	_, err := database.Health(reqCtx, s.db.DB())
	if err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.executor != nil {
		execHealth := s.executor.Health(reqCtx)
		if !execHealth.IsHealthy {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			msg := healthStatusUnhealthy
			if execHealth.DBError != "" {
				msg = execHealth.DBError
			}
			checks["executor"] = HealthCheck{Status: healthStatusDegraded, Message: msg}
		} else {
			checks["executor"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.llmConn != nil {
		connState := s.llmConn.State()
		switch connState {
		case "TRANSIENT_FAILURE", "SHUTDOWN":
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["llm"] = HealthCheck{Status: healthStatusDegraded, Message: "connection state: " + connState}
		default:
			// IDLE is normal: the gRPC client dials lazily.
			checks["llm"] = HealthCheck{Status: healthStatusHealthy, Message: "connection state: " + connState}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
