package authsdk

import "time"

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	// Error is the machine readable error code (e.g., "invalid_request")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Session Types
// ============================================================================

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"correct horse battery staple"`

	// OTP is the current TOTP code, required only for enrolled accounts
	OTP string `json:"otp,omitempty" example:"123456"`
}

// LoginResponse is returned by POST /auth/login. The refresh token is only
// ever sent as the refreshToken cookie.
type LoginResponse struct {
	AccessToken  string       `json:"accessToken"`
	SessionID    string       `json:"sessionId" example:"01JA2Z3N7WQ0C2V8Y5H1R4K6TB"`
	UserDocument UserDocument `json:"userDocument"`
}

// UserDocument is the sanitized user profile returned at login.
type UserDocument struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	PreferredName string    `json:"preferredName,omitempty"`
	Roles         []string  `json:"roles"`
	Active        bool      `json:"active"`
	MFAEnabled    bool      `json:"mfaEnabled"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SessionRequest names the session a refresh or logout is about. It is a
// hint only, the server trusts the cookie.
type SessionRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

// RefreshResponse is returned by /auth/refresh alongside a rotated cookie.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	SessionID   string `json:"sessionId"`
}

// SessionInfo is returned by GET /auth/session for a valid access token.
type SessionInfo struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains the status of individual components (readyz only)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of the service's dependencies.
type HealthChecks struct {
	// Store indicates the session and credential store connectivity
	Store string `json:"store"`
}
