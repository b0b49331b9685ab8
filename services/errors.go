package services

import "net/http"

// Kind classifies domain errors; each kind maps to one HTTP status.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindServer
)

// Status returns the HTTP status for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Error is a domain error safe to show to the caller. Code is the numeric error
// code returned next to the message.
type Error struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Invalid returns a validation error with a specific message.
func Invalid(msg string) *Error {
	return &Error{Kind: KindValidation, Code: 40001, Message: msg}
}

var (
	ErrInvalidEmailDomain = &Error{KindValidation, 40010, "email must belong to the university domain"}
	ErrCodeInvalid        = &Error{KindValidation, 40011, "invalid verification code"}
	ErrCodeExpired        = &Error{KindValidation, 40012, "verification code expired"}
	ErrWeakPassword       = &Error{KindValidation, 40013, "password must be at least 8 characters and contain an uppercase letter, a lowercase letter, a digit and one of #$@!%&*?"}
	ErrInvalidUsername    = &Error{KindValidation, 40014, "username must be 4-32 characters of letters, digits, _ . - @"}
	ErrCaptchaInvalid     = &Error{KindValidation, 40015, "invalid captcha"}
	ErrInvalidImage       = &Error{KindValidation, 40016, "image must be a jpeg, png, gif or webp of at most 10MB"}

	ErrInvalidCredentials = &Error{KindAuth, 40101, "invalid credentials"}
	ErrTokenExpired       = &Error{KindAuth, 40102, "token expired"}
	ErrTokenInvalid       = &Error{KindAuth, 40103, "invalid token"}

	ErrForbidden = &Error{KindForbidden, 40301, "forbidden"}

	ErrNotFound       = &Error{KindNotFound, 40401, "not found"}
	ErrBoardNotFound  = &Error{KindNotFound, 40402, "board not found"}
	ErrParentNotFound = &Error{KindNotFound, 40403, "parent post not found"}
	ErrPostNotFound   = &Error{KindNotFound, 40404, "post not found"}
	ErrUserNotFound   = &Error{KindNotFound, 40405, "user not found"}

	ErrUsernameTaken = &Error{KindConflict, 40901, "username already taken"}

	ErrTooManyRequests = &Error{KindRateLimited, 42901, "too many requests"}
)
