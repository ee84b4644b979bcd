// Package errors defines the application error type and its wire form.
// Every failure a caller can act on carries a stable code; the HTTP layer
// maps codes to status lines and serializes the rest.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Client errors (4xx).
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeRateLimited    = "RATE_LIMITED"

	// Server errors (5xx).
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"

	// Domain errors.
	CodeBallotInvalid = "BALLOT_INVALID"
	CodeEngineFailure = "ENGINE_FAILURE"
	CodeUnknownSystem = "UNKNOWN_SYSTEM"
)

// AppError is an error with a stable code and optional structured details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code onto an HTTP status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidRequest, CodeBallotInvalid:
		return http.StatusBadRequest
	case CodeNotFound, CodeUnknownSystem:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AppError with the given code.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError around an underlying cause.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// WithDetails replaces the error's detail map.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail attaches one detail key to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFoundError creates a not found error.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// InvalidRequestError creates an invalid request error.
func InvalidRequestError(message string) *AppError {
	return New(CodeInvalidRequest, message)
}

// BallotError creates a malformed-ballot error. The offending judge or
// competitor is attached via WithDetail by the caller.
func BallotError(message string) *AppError {
	return New(CodeBallotInvalid, message)
}

// EngineError creates an engine failure error for a voting system whose
// computation violated an internal invariant.
func EngineError(system string, err error) *AppError {
	return Wrap(CodeEngineFailure, fmt.Sprintf("%s engine failed", system), err).
		WithDetail("system", system)
}

// UnknownSystemError creates an error for an unregistered voting system name.
func UnknownSystemError(system string) *AppError {
	return New(CodeUnknownSystem, fmt.Sprintf("unknown voting system: %s", system)).
		WithDetail("system", system)
}

// RateLimitedError creates a rate limited error with retry information.
func RateLimitedError(retryAfterSeconds int) *AppError {
	err := New(CodeRateLimited, "rate limit exceeded")
	if retryAfterSeconds > 0 {
		err = err.WithDetail("retry_after", fmt.Sprintf("%d", retryAfterSeconds))
	}
	return err
}

// ServiceUnavailableError creates a service unavailable error.
func ServiceUnavailableError(service string) *AppError {
	message := "service unavailable"
	if service != "" {
		message = fmt.Sprintf("%s is unavailable", service)
	}
	return New(CodeUnavailable, message)
}

// hasCode reports whether err is an AppError with the given code.
func hasCode(err error, code string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsBallotInvalid checks if error is a malformed-ballot error.
func IsBallotInvalid(err error) bool {
	return hasCode(err, CodeBallotInvalid)
}

// IsEngineFailure checks if error is an engine failure.
func IsEngineFailure(err error) bool {
	return hasCode(err, CodeEngineFailure)
}

// ErrorResponse is the JSON body every error endpoint returns.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes an error response with the given status.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers already sent; nothing useful to do with an encode error.
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes err as a JSON response. AppErrors pick their own status
// and expose code and details; anything else is reported as an opaque
// internal error so wrapped causes never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*AppError); ok {
		WriteJSON(w, appErr.HTTPStatus(), appErrResponse(appErr))
		return
	}
	WriteJSON(w, http.StatusInternalServerError, internalResponse())
}

// WriteErrorWithStatus writes err with a caller-chosen status. Messages on
// 4xx responses are shown to the client; 5xx messages are replaced with an
// opaque internal error.
func WriteErrorWithStatus(w http.ResponseWriter, status int, err error) {
	if appErr, ok := err.(*AppError); ok {
		WriteJSON(w, status, appErrResponse(appErr))
		return
	}

	if status >= 400 && status < 500 {
		WriteJSON(w, status, ErrorResponse{
			Error:   err.Error(),
			Code:    codeForStatus(status),
			Message: err.Error(),
		})
		return
	}

	WriteJSON(w, status, internalResponse())
}

func appErrResponse(appErr *AppError) ErrorResponse {
	return ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}
}

func internalResponse() ErrorResponse {
	return ErrorResponse{
		Error:   "internal server error",
		Code:    CodeInternal,
		Message: "An unexpected error occurred",
	}
}

// codeForStatus returns an error code for common HTTP status codes.
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeInvalidRequest
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
