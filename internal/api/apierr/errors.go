package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mcoot/roommatch/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeNotInRoom          = "NOT_IN_ROOM"
	CodeRoomNotFull        = "ROOM_NOT_FULL"
	CodeRoomFull           = "ROOM_FULL"
	CodeRoomAlreadyStarted = "ROOM_ALREADY_STARTED"
	CodeJoinFailed         = "JOIN_FAILED"
	CodeStorageTimeout     = "STORAGE_TIMEOUT"
	CodeStorageConflict    = "STORAGE_CONFLICT"
	CodePushUnavailable    = "PUSH_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// RetryAfterSeconds is advertised on transient failures
const RetryAfterSeconds = 1

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	if he.status == http.StatusServiceUnavailable || he.status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Resolve returns the status and API error an error maps to
func Resolve(err error) (int, APIError) {
	he := toHTTPError(err)
	return he.status, he.apiError
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	// Check for specific error types
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	// JoinFailed wraps the last room error, so it must be matched first
	switch {
	case errors.Is(err, model.ErrJoinFailed):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeJoinFailed, "Could not join room"}}
	case errors.Is(err, model.ErrInvalidPlayer):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, "display_name and player_id are required"}}
	case errors.Is(err, model.ErrRoomNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeRoomNotFound, "Room not found"}}
	case errors.Is(err, model.ErrNotInRoom):
		return &httpError{http.StatusNotFound, APIError{CodeNotInRoom, "Player is not in a room"}}
	case errors.Is(err, model.ErrRoomNotFull):
		return &httpError{http.StatusConflict, APIError{CodeRoomNotFull, "Room is not full yet"}}
	case errors.Is(err, model.ErrRoomFull):
		return &httpError{http.StatusConflict, APIError{CodeRoomFull, "Room is full"}}
	case errors.Is(err, model.ErrRoomAlreadyStarted):
		return &httpError{http.StatusConflict, APIError{CodeRoomAlreadyStarted, "Game already started"}}
	case errors.Is(err, model.ErrStorageTimeout):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeStorageTimeout, "Storage timed out, retry shortly"}}
	case errors.Is(err, model.ErrStorageConflict):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeStorageConflict, "Room is busy, retry shortly"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewPushUnavailableError is returned by push endpoints in poll mode
func NewPushUnavailableError() error {
	return &httpError{http.StatusNotFound, APIError{CodePushUnavailable, "Push delivery is disabled on this server"}}
}

// NewRateLimitedError creates a rate limit error
func NewRateLimitedError() error {
	return &httpError{http.StatusTooManyRequests, APIError{CodeRateLimited, "Too many requests"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
