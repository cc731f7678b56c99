package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/pkg/engine"
	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

func TestTransitionHandlers_UnavailableWithoutEngine(t *testing.T) {
	s := &Server{}

	c, rec := testContext(t, http.MethodPost, "/api/v1/cases/case-1/transition/propose", "")
	s.proposeTransitionHandler(withCaseID(c, "case-1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not available")

	c, rec = testContext(t, http.MethodPost, "/api/v1/cases/case-1/transition/confirm",
		`{"temporal_state": "ONGOING", "urgency_level": "HIGH"}`)
	s.confirmTransitionHandler(withCaseID(c, "case-1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConfirmTransitionHandler_RejectsInvalidClassification(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown temporal state", `{"temporal_state": "SOMETIMES", "urgency_level": "HIGH"}`, "invalid temporal_state"},
		{"missing temporal state", `{"urgency_level": "HIGH"}`, "invalid temporal_state"},
		{"unknown urgency", `{"temporal_state": "ONGOING", "urgency_level": "MEH"}`, "invalid urgency_level"},
		{"missing urgency", `{"temporal_state": "ONGOING"}`, "invalid urgency_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Classification validation runs before the engine or any
			// service is touched.
			s := &Server{transitionEngine: &engine.Engine{}}
			c, rec := testContext(t, http.MethodPost, "/api/v1/cases/case-1/transition/confirm", tt.body)
			s.confirmTransitionHandler(withCaseID(c, "case-1"))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestEngineCaseFrom(t *testing.T) {
	fc := &ent.FaultCase{
		ID:            "case-1",
		Title:         "checkout latency spike",
		Description:   "p99 tripled since the 14:00 deploy",
		Status:        faultcase.StatusConsulting,
		TemporalState: "ONGOING",
		UrgencyLevel:  "HIGH",
		Strategy:      "MITIGATION_FIRST",
	}

	ec := engineCaseFrom(fc)
	assert.Equal(t, "case-1", ec.ID)
	assert.Equal(t, "checkout latency spike", ec.Title)
	assert.Equal(t, state.CaseStatusConsulting, ec.Status)
	assert.Equal(t, state.TemporalOngoing, ec.TemporalState)
	assert.Equal(t, state.UrgencyHigh, ec.UrgencyLevel)
	assert.Equal(t, state.StrategyMitigationFirst, ec.Strategy)
	assert.Empty(t, ec.History)
}
