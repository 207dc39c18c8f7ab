/*
Package authsdk keeps one user's session against the auth service: it signs
in, persists tokens, refreshes them transparently and tells the rest of the
application when the session is gone.

# Overview

The package is organized around SDKClient, which owns four pieces:

  - a tokenstore.Store: the persisted tokens and cached user (source of truth)
  - a State: an observable in-memory copy of the store for the UI to read
  - a Transport: the interceptor chain every authenticated request goes through
  - an Events bus: fires a SessionEvent when the session is torn down

	store, err := sqlite.Open(ctx, "session.db")
	client := authsdk.NewSDKClient("https://api.example.com",
		authsdk.WithStore(tokenstore.New(store)),
		authsdk.WithLogger(logger),
	)
	if err := client.Start(ctx); err != nil { ... }

# Logging In

Every login operation returns a LoginResult, which is a *FullSession or a
*PendingChallenge:

	res, err := client.Login(ctx, email, password)
	switch r := res.(type) {
	case *authsdk.FullSession:
		// persisted; State is authenticated
	case *authsdk.PendingChallenge:
		fs, err := client.VerifySecondFactor(ctx, r, code)
	}

A wrong second-factor code leaves the challenge usable. Magic links
(RequestMagicLink, RedeemMagicLink) and OAuth (OAuthLoginURL,
CompleteOAuthCallback) produce the same result shapes.

# Authenticated Requests

Send requests with client.HTTPClient. The chain attaches the stored bearer
token and an X-Request-ID header. On a 401 it refreshes once, shared by every
request that failed at the same time, and retries once. A second 401, or a
rejected refresh token, clears the store and publishes a SessionEvent:

	events, cancel := client.Events().Subscribe()
	defer cancel()
	go func() {
		for ev := range events {
			showLogin(ev.Reason)
		}
	}()

Network failures never clear the session; they come back as *NetworkError.

# Logging Out

Logout tells the server on a best-effort basis and always clears the local
session. It does not publish a SessionEvent.

# Errors

Server errors are *APIError and match the package sentinels with errors.Is:

	if errors.Is(err, authsdk.ErrInvalidCredentials) { ... }
	if errors.Is(err, authsdk.ErrSessionExpired) { ... }

# Thread Safety

SDKClient, State and Events are safe for concurrent use. A PendingChallenge
may be shared, but only one verification of it runs at a time.
*/
package authsdk
