// Package models contains request/response models and business domain types.
package models

import (
	"time"

	"github.com/faultmaven/faultmaven/ent"
)

// CreateCaseRequest contains fields for opening a new case
type CreateCaseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// Owner is resolved by the auth middleware, not taken from the body
	Owner string `json:"-"`
}

// CaseFilters contains filtering options for listing cases
type CaseFilters struct {
	Status        string     `json:"status,omitempty"`
	Owner         string     `json:"owner,omitempty"`
	Escalated     *bool      `json:"escalated,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}

// CaseResponse wraps a Case with optional loaded edges
type CaseResponse struct {
	*ent.FaultCase
}

// CaseListResponse contains a paginated case list
type CaseListResponse struct {
	Cases      []*ent.FaultCase `json:"cases"`
	TotalCount int         `json:"total_count"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}
