/*
Package authsdk provides a client SDK for the tabauth session service, plus
the error and payload types the server itself writes.

# Overview

The refresh token never leaves the HTTP cookie jar. Login stores it as the
refreshToken cookie, every refresh replaces it, and logout clears it. The SDK
only ever holds the short lived access token and the session id.

# SDKClient vs Session

  - SDKClient: unauthenticated calls (login, health) and the raw refresh and
    logout endpoints
  - Session: one logged in session with automatic access token refresh

	client, err := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Login(ctx, authsdk.LoginRequest{
		Username: "alice",
		Password: "correct horse",
	})

	// Bearer calls refresh the access token first when it is close to expiry
	info, err := session.Info(ctx)

	// Rotation can also be forced
	err = session.Refresh(ctx)

	err = session.Logout(ctx)

# Errors

Every non-2xx response is returned as an *APIError carrying the HTTP status
and the error code from the body:

	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeMFARequired {
		// retry with a TOTP code
	}

A refresh that fails for any reason, including detected token reuse, comes
back as a 401 and the session must log in again.

# Thread Safety

SDKClient and Session are safe for concurrent use. Two concurrent refreshes
on one Session are serialized so the rotating cookie is only presented once.
*/
package authsdk
