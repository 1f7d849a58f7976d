package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Kind sentinels. An AppError matches its kind with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrUpstream       = errors.New("upstream service error")
	ErrClassification = errors.New("classification contract error")
	ErrModelFit       = errors.New("model fitting error")
	ErrConfig         = errors.New("configuration error")
	ErrInternal       = errors.New("internal error")
)

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Err     error
	Kind    error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the error's kind or matches the wrapped error.
func (e *AppError) Is(target error) bool {
	if e.Kind != nil && target == e.Kind {
		return true
	}
	return errors.Is(e.Err, target)
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Kind:    ErrInternal,
		Status:  status,
		Message: message,
	}
}

func newKind(kind error, status int, err error, message string) *AppError {
	return &AppError{Err: err, Kind: kind, Status: status, Message: message}
}

// Validation reports bad user input: file type, missing column, empty message.
func Validation(message string, err error) *AppError {
	return newKind(ErrValidation, http.StatusBadRequest, err, message)
}

// NotFound reports a lookup that produced no result.
func NotFound(message string, err error) *AppError {
	return newKind(ErrNotFound, http.StatusNotFound, err, message)
}

// Upstream reports a failed or timed out call to the LLM, captioning or catalog service.
func Upstream(message string, err error) *AppError {
	return newKind(ErrUpstream, http.StatusBadGateway, err, message)
}

// Classification reports an intent classifier output outside the registered vocabulary.
func Classification(message string, err error) *AppError {
	return newKind(ErrClassification, http.StatusInternalServerError, err, message)
}

// ModelFit reports a forecast model that could not be fitted to otherwise valid data.
func ModelFit(message string, err error) *AppError {
	return newKind(ErrModelFit, http.StatusUnprocessableEntity, err, message)
}

// Internal reports a failure the user cannot act on.
func Internal(message string, err error) *AppError {
	return newKind(ErrInternal, http.StatusInternalServerError, err, message)
}

// Config reports missing or invalid startup configuration.
func Config(message string, err error) *AppError {
	return newKind(ErrConfig, http.StatusInternalServerError, err, message)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var ae *AppError
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the safe message carried by err, or the system fallback.
func MessageOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return SystemErrorMessage
}
