// Package common provides shared utilities used across all features
package common

import (
	"fmt"
	"net/http"
)

// Machine readable codes for outcomes a client handles differently from a plain status.
const (
	CodeNoRoute          = "NO_ROUTE"
	CodeSuperseded       = "SUPERSEDED"
	CodeApprovalRequired = "APPROVAL_REQUIRED"
)

// HttpError represents an HTTP error with status code and message
type HttpError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s %s", e.StatusCode, e.Code, e.Message)
}

// WithCode replaces the generic code of e.
func (e *HttpError) WithCode(code string) *HttpError {
	e.Code = code
	return e
}

func messageOrDefault(msg string, defaultMsg string) string {
	if msg != "" {
		return msg
	}
	return defaultMsg
}

func newHttpError(status int, code, msg string) *HttpError {
	return &HttpError{
		StatusCode: status,
		Code:       code,
		Message:    messageOrDefault(msg, http.StatusText(status)),
	}
}

// HTTP Error constructors

func HTTPErrorBadRequest(msg string) *HttpError {
	return newHttpError(http.StatusBadRequest, "BAD_REQUEST", msg)
}

func HTTPErrorNotFound(msg string) *HttpError {
	return newHttpError(http.StatusNotFound, "NOT_FOUND", msg)
}

func HTTPErrorInternalError(msg string) *HttpError {
	return newHttpError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", msg)
}

func HTTPErrorUnauthorized(msg string) *HttpError {
	return newHttpError(http.StatusUnauthorized, "UNAUTHORIZED", msg)
}

func HTTPErrorForbidden(msg string) *HttpError {
	return newHttpError(http.StatusForbidden, "FORBIDDEN", msg)
}

func HTTPErrorResourceConflict(msg string) *HttpError {
	return newHttpError(http.StatusConflict, "RESOURCE_CONFLICT", msg)
}

// HTTPErrorUnprocessable is for well-formed requests the chain or the signer refused.
func HTTPErrorUnprocessable(msg string) *HttpError {
	return newHttpError(http.StatusUnprocessableEntity, "UNPROCESSABLE", msg)
}

// HTTPErrorServiceUnavailable is for upstream node failures; the client may retry.
func HTTPErrorServiceUnavailable(msg string) *HttpError {
	return newHttpError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", msg)
}

func HTTPErrorTooManyRequests(msg string) *HttpError {
	return newHttpError(http.StatusTooManyRequests, "RATE_LIMITED", msg)
}
