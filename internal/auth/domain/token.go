package domain

import "time"

// TokenPair is what a successful login or rotation mints. The refresh token
// only ever leaves the service inside a cookie.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshJTI       string
	SessionID        string
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
}
