package api

import (
	"errors"
	"net/http"
)

// AppError is a terminal request error. Flag, when set, is the name of a
// boolean field added to the JSON body so clients can branch without
// string-matching the message (e.g. "isRateLimited": true).
type AppError struct {
	Code    int
	Message string
	Flag    string
	Detail  string
}

func (e *AppError) Error() string {
	return e.Message
}

// WithDetail returns a copy carrying extra diagnostic text. The detail is
// only serialized when the caller asks for it (development mode).
func (e *AppError) WithDetail(detail string) *AppError {
	clone := *e
	clone.Detail = detail
	return &clone
}

var (
	ErrBadRequest  = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrAuth        = &AppError{Code: http.StatusUnauthorized, Message: "Invalid or missing demo password", Flag: "isAuthError"}
	ErrRateLimited = &AppError{Code: http.StatusTooManyRequests, Message: "Too many requests. Please wait a minute and try again.", Flag: "isRateLimited"}
	ErrDailyLimit  = &AppError{Code: http.StatusTooManyRequests, Message: "The daily demo limit has been reached. Please come back tomorrow.", Flag: "isDailyLimitReached"}
	ErrDemoExpired = &AppError{Code: http.StatusForbidden, Message: "The demo period has ended. Thanks for trying it out!", Flag: "isDemoExpired"}
	ErrNotFound    = &AppError{Code: http.StatusNotFound, Message: "Endpoint not found"}
	ErrUpstream    = &AppError{Code: http.StatusInternalServerError, Message: "AI service temporarily unavailable"}
)

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

// HandleError writes err as a JSON response. Unknown error types become a
// generic 500 so internal detail never leaks by accident. Detail is only
// present when the caller attached it via WithDetail, which the relay does
// exclusively in development mode.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	body := map[string]any{"error": appErr.Message}
	if appErr.Flag != "" {
		body[appErr.Flag] = true
	}
	if appErr.Detail != "" {
		body["detail"] = appErr.Detail
	}
	JSON(w, appErr.Code, body)
}
