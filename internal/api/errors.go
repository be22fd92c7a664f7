package api

import (
	"errors"
	"net/http"

	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/store"
	"github.com/reelsong/reelsong-api/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var perr *domain.PipelineError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case domain.ErrorKindInvalidURL:
			return http.StatusBadRequest
		case domain.ErrorKindRateLimited:
			return http.StatusTooManyRequests
		}
	}

	switch {
	case store.IsNotFoundError(err):
		return http.StatusNotFound

	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// The pipeline queue is saturated; callers should back off and resubmit.
	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message based
// on the error type. Internal details stay in the logs.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var perr *domain.PipelineError
	if errors.As(err, &perr) {
		// Pipeline messages are written for callers.
		return perr.Message
	}

	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrSongSearchNotFound):
		return "Song search not found"

	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return "Service is busy, please try again later"

	default:
		return "An unexpected error occurred"
	}
}

// GetErrorCode returns the machine-readable error code for a response, or
// the empty string when none applies.
func GetErrorCode(err error) string {
	var perr *domain.PipelineError
	if errors.As(err, &perr) {
		return string(perr.Kind)
	}
	if errors.Is(err, store.ErrTaskNotFound) {
		return "TASK_NOT_FOUND"
	}
	return ""
}
