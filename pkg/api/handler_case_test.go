package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateCaseHandler_RejectsMalformedJSON(t *testing.T) {
	s := &Server{}
	c, rec := testContext(t, http.MethodPost, "/api/v1/cases", `{"title": `)
	s.createCaseHandler(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCasesHandler_RejectsInvalidFilters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"unknown status", "status=EXPLODED", "invalid status"},
		{"lowercase status", "status=consulting", "invalid status"},
		{"bad escalated", "escalated=perhaps", "invalid escalated"},
		{"bad created_after", "created_after=yesterday", "invalid created_after"},
		{"bad created_before", "created_before=2026-13-45", "invalid created_before"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{}
			c, rec := testContext(t, http.MethodGet, "/api/v1/cases?"+tt.query, "")
			s.listCasesHandler(c)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}
