package api

import (
	"errors"
	"net/http"
	"time"
)

// Machine-readable reason codes.
const (
	ReasonQuotaExhausted = "QUOTA_EXHAUSTED"
	ReasonAlreadyRunning = "RESET_ALREADY_RUNNING"
)

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
	Reason  string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized   = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbidden      = &AppError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrConflict       = &AppError{Code: http.StatusConflict, Message: "conflict"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidToken   = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrInvalidAdmin   = &AppError{Code: http.StatusUnauthorized, Message: "invalid admin key"}
	ErrValidation     = &AppError{Code: http.StatusBadRequest, Message: "validation error"}
	ErrUnavailable    = &AppError{Code: http.StatusServiceUnavailable, Message: "quota service unavailable"}
	ErrResetRunning   = &AppError{Code: http.StatusConflict, Message: "quota reset already running", Reason: ReasonAlreadyRunning}
)

// QuotaExhaustedDetails is the body detail of a QUOTA_EXHAUSTED error.
type QuotaExhaustedDetails struct {
	NextResetTimestamp time.Time `json:"next_reset_timestamp"`
	UnitsRemaining     int       `json:"units_remaining"`
}

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func NewConflictError(msg string) *AppError {
	return &AppError{Code: http.StatusConflict, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewQuotaExhaustedError(nextReset time.Time) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Message: "daily quota exhausted",
		Reason:  ReasonQuotaExhausted,
		Details: QuotaExhaustedDetails{NextResetTimestamp: nextReset, UnitsRemaining: 0},
	}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Code, Response{Error: appErr.Message, Code: appErr.Reason, Details: appErr.Details})
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
