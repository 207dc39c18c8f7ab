package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// RefreshUser fetches the profile of the signed-in user and writes it
// through to the store. Tokens are not touched.
func (c *SDKClient) RefreshUser(ctx context.Context) (*UserProfile, error) {
	var raw json.RawMessage
	if err := c.doAuthed(ctx, "me", http.MethodGet, "/auth/me", nil, &raw); err != nil {
		return nil, err
	}

	user, err := decodeProfile(raw)
	if err != nil {
		return nil, err
	}

	if err := c.store.UpdateUser(ctx, *user); err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}
	if _, err := c.reconciler.Reconcile(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to sync session state", "error", err)
	}
	return user, nil
}

// decodeProfile accepts both {"user": {...}} and a bare profile.
func decodeProfile(raw json.RawMessage) (*UserProfile, error) {
	var wrapped struct {
		User *UserProfile `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}

	var user UserProfile
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		return nil, fmt.Errorf("%w: response has no user", ErrUnexpectedResponse)
	}
	return &user, nil
}
