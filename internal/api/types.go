package api

import (
	"github.com/MJE43/rps-canvas/internal/journal"
)

// APIError is the structured error body returned by every failing route.
type APIError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return e.Message
}

// Error types
const (
	// Inbound payload errors
	ErrTypeMalformedEnvelope = "malformed_envelope"
	ErrTypePayloadTooLarge   = "payload_too_large"
	ErrTypeInvalidParams     = "invalid_params"

	// System errors
	ErrTypeNotFound           = "not_found"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory groups error types for logging.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategorySystem     ErrorCategory = "system"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeMalformedEnvelope, ErrTypePayloadTooLarge, ErrTypeInvalidParams, ErrTypeNotFound:
		return CategoryValidation
	default:
		return CategorySystem
	}
}

// VersionInfo contains build version information
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// StatusResponse is the body of GET /.
type StatusResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
}

// DeliveriesResponse is a page of the delivery journal.
type DeliveriesResponse struct {
	Deliveries []journal.Delivery `json:"deliveries"`
	Counts     map[string]int64   `json:"counts"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
	Action     string             `json:"action,omitempty"`
}
