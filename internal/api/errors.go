package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/rps-canvas/internal/webhook"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records the underlying error message.
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final APIError
func (eb *ErrorBuilder) Build() APIError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return APIError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *log.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *log.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError writes err as a structured response. APIError values keep
// their type; anything else becomes an internal error.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, status int) {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		apiErr = NewError(ErrTypeInternal, err.Error()).
			WithRequestID(middleware.GetReqID(r.Context())).
			WithContext("path", r.URL.Path).
			WithContext("method", r.Method).
			Build()
	}
	eh.logError(r, apiErr, status)
	eh.writeErrorResponse(w, status, apiErr)
}

// HandleMalformedEnvelope answers 400 for a webhook body that cannot be
// dispatched.
func (eh *ErrorHandler) HandleMalformedEnvelope(w http.ResponseWriter, r *http.Request, err error) {
	eb := NewError(ErrTypeMalformedEnvelope, "Malformed webhook envelope").
		WithRequestID(middleware.GetReqID(r.Context())).
		WithCause(err)

	var malformed *webhook.MalformedEnvelopeError
	if errors.As(err, &malformed) {
		eb.WithContext("reason", malformed.Reason)
		if malformed.Field != "" {
			eb.WithContext("field", malformed.Field)
		}
	}

	apiErr := eb.Build()
	eh.logError(r, apiErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, apiErr)
}

// HandleValidationError answers 400 for a bad query parameter.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	apiErr := NewError(ErrTypeInvalidParams, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		Build()

	eh.logError(r, apiErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, apiErr)
}

func (eh *ErrorHandler) logError(r *http.Request, apiErr APIError, status int) {
	level := "ERROR"
	if GetErrorCategory(apiErr.Type) == CategoryValidation {
		level = "WARN"
	}
	eh.logger.Printf(
		"error_occurred level=%s type=%s status=%d request_id=%s method=%s path=%s message=%q context=%v",
		level, apiErr.Type, status, apiErr.RequestID, r.Method, r.URL.Path, apiErr.Message, apiErr.Context,
	)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, apiErr APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-App-Version", Version)
	w.Header().Set("X-Error-Type", apiErr.Type)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		eh.logger.Printf("error_response_encode_failed request_id=%s error=%q", apiErr.RequestID, err)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.logger.Printf(
					"panic_recovered request_id=%s path=%s method=%s panic=%v",
					requestID, r.URL.Path, r.Method, rvr,
				)

				apiErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, apiErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
