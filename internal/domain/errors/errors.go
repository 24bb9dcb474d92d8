package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")

	ErrEmailRequired       = errors.New("email is required")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrFirstNameRequired   = errors.New("first name is required")
	ErrPreferencesRequired = errors.New("preferences are required")
	ErrInvalidOrigin       = errors.New("invalid flow origin")

	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenAlreadyUsed = errors.New("token has already been used")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenNotExpired  = errors.New("token has not expired")

	ErrAlreadySubscribed  = errors.New("email is already subscribed")
	ErrDuplicateEmail     = errors.New("duplicate subscriber email")
	ErrDuplicateTokenHash = errors.New("duplicate token hash")

	ErrTokenGenerationExhausted = errors.New("unable to generate a unique token")
	ErrRateLimited              = errors.New("too many requests")
)

// Error codes reported to API clients
const (
	CodeBadRequest               = "BAD_REQUEST"
	CodeNotFound                 = "NOT_FOUND"
	CodeEmailRequired            = "EMAIL_REQUIRED"
	CodeInvalidEmail             = "INVALID_EMAIL"
	CodeFirstNameRequired        = "FIRST_NAME_REQUIRED"
	CodePreferencesRequired      = "PREFERENCES_REQUIRED"
	CodeInvalidOrigin            = "INVALID_ORIGIN"
	CodeInvalidToken             = "INVALID_TOKEN"
	CodeTokenAlreadyUsed         = "TOKEN_ALREADY_USED"
	CodeTokenExpired             = "TOKEN_EXPIRED"
	CodeTokenNotExpired          = "TOKEN_NOT_EXPIRED"
	CodeAlreadySubscribed        = "ALREADY_SUBSCRIBED"
	CodeTokenGenerationExhausted = "TOKEN_GENERATION_EXHAUSTED"
	CodeRateLimited              = "RATE_LIMITED"
	CodeInternal                 = "INTERNAL_ERROR"
)

// AppError represents application error with HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeBadRequest, message, ErrInvalidInput)
}

func TooManyRequests(message string) *AppError {
	return NewAppError(http.StatusTooManyRequests, CodeRateLimited, message, ErrRateLimited)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternal, "internal server error", err)
}

type mapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters only where one error could wrap another.
var mappings = []mapping{
	{ErrEmailRequired, http.StatusBadRequest, CodeEmailRequired, "Email is required."},
	{ErrInvalidEmail, http.StatusBadRequest, CodeInvalidEmail, "Invalid email format."},
	{ErrFirstNameRequired, http.StatusBadRequest, CodeFirstNameRequired, "First name is required."},
	{ErrPreferencesRequired, http.StatusBadRequest, CodePreferencesRequired, "Preferences are required."},
	{ErrInvalidOrigin, http.StatusBadRequest, CodeInvalidOrigin, "Invalid origin."},
	{ErrInvalidToken, http.StatusNotFound, CodeInvalidToken, "Invalid token."},
	{ErrTokenAlreadyUsed, http.StatusConflict, CodeTokenAlreadyUsed, "Token has already been used."},
	{ErrTokenExpired, http.StatusGone, CodeTokenExpired, "Token has expired."},
	{ErrTokenNotExpired, http.StatusBadRequest, CodeTokenNotExpired, "Token has not expired."},
	{ErrAlreadySubscribed, http.StatusConflict, CodeAlreadySubscribed, "Email is already subscribed."},
	{ErrDuplicateEmail, http.StatusConflict, CodeAlreadySubscribed, "Email is already subscribed."},
	{ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited, "Too many requests."},
	{ErrInvalidInput, http.StatusBadRequest, CodeBadRequest, "Invalid input."},
	{ErrNotFound, http.StatusNotFound, CodeNotFound, "Resource not found."},
}

// FromError maps any error returned by the usecases to an AppError. Errors
// outside the domain taxonomy, token generation exhaustion included, become
// internal errors.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return NewAppError(m.status, m.code, m.message, err)
		}
	}
	return InternalError(err)
}

// Code returns the client facing code for err. Exhaustion keeps its own code
// so it can be told apart in logs and metrics.
func Code(err error) string {
	if err == nil {
		return "OK"
	}
	if errors.Is(err, ErrTokenGenerationExhausted) {
		return CodeTokenGenerationExhausted
	}
	return FromError(err).Code
}
