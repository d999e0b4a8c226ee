package shared

import "errors"

var (
	// ErrInvalidCredentials indicates a failed credential check. The message is
	// identical whether the account is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("could not validate credentials")
	// ErrInvalidToken indicates a malformed or unverifiable bearer token.
	ErrInvalidToken = errors.New("invalid or missing authentication token")
	// ErrExpiredToken indicates a bearer token past its expiry claim.
	ErrExpiredToken = errors.New("authentication token has expired")
	// ErrPermissionDenied indicates the caller lacks the required role.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
	// ErrEmailExists indicates a create against an already registered email.
	ErrEmailExists = errors.New("user with this email already exists")
	// ErrBadRequest indicates a malformed request, e.g. an invalid client address.
	ErrBadRequest = errors.New("bad request")
	// ErrValidation indicates a payload that failed input validation.
	ErrValidation = errors.New("validation error")
	// ErrRateLimited indicates the caller exhausted a rate-limit quota.
	ErrRateLimited = errors.New("too many requests")
	// ErrUnavailable indicates a backing store could not be reached. Never
	// converted into a domain decision; always surfaces as 5xx.
	ErrUnavailable = errors.New("infrastructure unavailable")
)
