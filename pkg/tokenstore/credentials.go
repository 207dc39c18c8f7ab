package tokenstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Credentials is the persisted session record: the token pair plus the cached
// user profile. Absent fields are represented by their zero value.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         *UserProfile
}

// Authenticated reports whether the access token, refresh token and user are
// all present. It never inspects the tokens themselves.
func (c Credentials) Authenticated() bool {
	return c.AccessToken != "" && c.RefreshToken != "" && c.User != nil
}

// IsZero reports whether nothing at all is present.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && c.User == nil
}

// Equal compares two records field by field (the user by value).
func (c Credentials) Equal(o Credentials) bool {
	if c.AccessToken != o.AccessToken || c.RefreshToken != o.RefreshToken {
		return false
	}
	switch {
	case c.User == nil && o.User == nil:
		return true
	case c.User == nil || o.User == nil:
		return false
	default:
		return c.User.Equal(*o.User)
	}
}

// UserProfile is the cached snapshot of the authenticated user. It is only
// ever replaced as a whole.
type UserProfile struct {
	ID             UserID    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           string    `json:"role,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Equal compares profiles by value.
func (u UserProfile) Equal(o UserProfile) bool {
	return u.ID == o.ID &&
		u.Email == o.Email &&
		u.Name == o.Name &&
		u.Role == o.Role &&
		u.OrganizationID == o.OrganizationID &&
		u.CreatedAt.Equal(o.CreatedAt) &&
		u.UpdatedAt.Equal(o.UpdatedAt)
}

// UserID identifies a user. Servers disagree on whether ids are numbers or
// strings, so both JSON forms are accepted and the value is kept as text.
type UserID string

// String returns the id as text.
func (id UserID) String() string { return string(id) }

// UnmarshalJSON accepts a JSON string or number.
func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// MarshalJSON writes numeric ids back as numbers so a round trip preserves
// the server's representation.
func (id UserID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}
