package service

import "errors"

// Expected outcomes of the login, refresh and logout flows. Anything else a
// service returns is an infrastructure failure.
var (
	ErrInvalidInput       = errors.New("invalid_request")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserInactive       = errors.New("account_inactive")
	ErrMFARequired        = errors.New("mfa_required")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrReplayDetected     = errors.New("refresh_token_reuse")
)
