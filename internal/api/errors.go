package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MJE43/score-attest/internal/attest"
	"github.com/MJE43/score-attest/internal/batch"
	"github.com/MJE43/score-attest/internal/input"
	"github.com/MJE43/score-attest/internal/prover"
	"github.com/MJE43/score-attest/internal/store"
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

func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records err's message under "cause"
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

func (eb *ErrorBuilder) Build() EngineError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps a service error to a status, error type and public message
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, input.ErrMalformedInput):
		return http.StatusBadRequest, ErrTypeMalformedInput, err.Error()
	case errors.Is(err, batch.ErrTooLarge):
		return http.StatusBadRequest, ErrTypeValidation, fmt.Sprintf("batch exceeds %d submissions", batch.MaxBatchSize)
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound, "verification not found"
	case errors.Is(err, attest.ErrNoProof):
		return http.StatusNotFound, ErrTypeNotFound, "no proof stored for this verification"
	case errors.Is(err, attest.ErrQueueFull), errors.Is(err, attest.ErrClosed):
		return http.StatusServiceUnavailable, ErrTypeUnavailable, err.Error()
	case errors.Is(err, prover.ErrProofVerificationFailed),
		errors.Is(err, prover.ErrInvalidProof),
		errors.Is(err, prover.ErrVerifyingKeyMismatch):
		return http.StatusUnprocessableEntity, ErrTypeProofVerification, "proof verification failed"
	case errors.Is(err, prover.ErrProofGenerationFailed),
		errors.Is(err, prover.ErrCircuitCompilationFailed),
		errors.Is(err, prover.ErrSetupFailed),
		errors.Is(err, prover.ErrUnsatisfied):
		return http.StatusInternalServerError, ErrTypeProofGeneration, "proof generation failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrTypeTimeout, "operation timed out"
	default:
		return http.StatusInternalServerError, ErrTypeInternal, "internal server error"
	}
}

// ErrorHandler writes structured error responses and logs them
type ErrorHandler struct {
	logger *zap.Logger
}

func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError classifies err and writes the matching response
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType, message := classify(err)
	b := NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path)
	if status >= http.StatusInternalServerError || errType == ErrTypeProofVerification {
		b.WithCause(err)
	}
	engineErr := b.Build()

	eh.logError(r, engineErr, status, err)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError reports a bad request body or parameter
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		Build()

	eh.logError(r, engineErr, http.StatusBadRequest, nil)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

func (eh *ErrorHandler) HandleUnauthorized(w http.ResponseWriter, r *http.Request) {
	engineErr := NewError(ErrTypeUnauthorized, "missing or invalid X-API-Token").
		WithRequestID(middleware.GetReqID(r.Context())).
		Build()

	eh.logError(r, engineErr, http.StatusUnauthorized, nil)
	eh.writeErrorResponse(w, http.StatusUnauthorized, engineErr)
}

func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int, cause error) {
	fields := []zap.Field{
		zap.String("type", engineErr.Type),
		zap.String("category", string(GetErrorCategory(engineErr.Type))),
		zap.Int("status", status),
		zap.String("request_id", engineErr.RequestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}

	if status >= http.StatusInternalServerError {
		eh.logger.Error(engineErr.Message, fields...)
		return
	}
	eh.logger.Warn(engineErr.Message, fields...)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		eh.logger.Debug("failed to write error body", zap.Error(err))
	}
}

// RecoveryHandler turns a handler panic into a 500 response
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.logger.Error("panic recovered",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rvr),
					zap.Stack("stack"))

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					Build()
				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
