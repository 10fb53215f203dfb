// Package dto defines request and response shapes for API v1.
package dto

// IDResponse is the standard response for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse is the standard response for operations without a body.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps a collection with its count.
type ListResponse struct {
	Items      any `json:"items"`
	TotalCount int `json:"totalCount"`
}
