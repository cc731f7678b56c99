package api

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendMessageHandler_RejectsMalformedJSON(t *testing.T) {
	s := &Server{}
	c, rec := testContext(t, http.MethodPost, "/api/v1/cases/case-1/messages", `{"content": `)
	s.sendMessageHandler(withCaseID(c, "case-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageHandler_RejectsBlankContent(t *testing.T) {
	for _, body := range []string{`{}`, `{"content": ""}`, `{"content": "   \n\t "}`} {
		s := &Server{}
		c, rec := testContext(t, http.MethodPost, "/api/v1/cases/case-1/messages", body)
		s.sendMessageHandler(withCaseID(c, "case-1"))

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "content is required")
	}
}

func TestSendMessageHandler_RejectsOversizedContent(t *testing.T) {
	s := &Server{}
	body := fmt.Sprintf(`{"content": %q}`, strings.Repeat("a", 100_001))
	c, rec := testContext(t, http.MethodPost, "/api/v1/cases/case-1/messages", body)
	s.sendMessageHandler(withCaseID(c, "case-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "maximum length")
}
