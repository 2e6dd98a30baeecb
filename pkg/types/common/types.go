// Package common holds shared identifier and transport types used across
// the MorphoScreen layers.
package common

import (
	"github.com/google/uuid"
)

// ID is a string alias for UUID v4.
type ID string

// NewID generates a fresh UUID v4 ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// CompoundID identifies a screened compound (perturbation) within a run.
type CompoundID string

// PopulationID identifies a single-cell population submitted to the
// clusterer: one compound's treated wells, or a control group. Cluster
// labels are only meaningful inside the population that produced them, so
// every cluster record is keyed by (PopulationID, label) rather than the
// bare label.
type PopulationID string

// Metadata is an open-ended key-value bag.
type Metadata map[string]interface{}

// Pagination defines parameters for paginated requests.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total,omitempty"`
}

// Normalize clamps the page to 1-based and the page size into [1, 200].
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 200 {
		p.PageSize = 200
	}
	return p
}

// Limit is the SQL LIMIT for the normalized pagination.
func (p Pagination) Limit() int {
	return p.Normalize().PageSize
}

// Offset is the SQL OFFSET for the normalized pagination.
func (p Pagination) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// ErrorDetail provides structured error information for API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
