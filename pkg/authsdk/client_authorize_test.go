package authsdk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOAuthCallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		url       string
		wantCode  string
		wantState string
		wantErr   error
	}{
		{
			name:      "code and state",
			url:       "https://app.example.com/callback?code=xyz&state=abc",
			wantCode:  "xyz",
			wantState: "abc",
		},
		{
			name:     "code only",
			url:      "myapp://callback?code=xyz",
			wantCode: "xyz",
		},
		{
			name:    "missing code",
			url:     "https://app.example.com/callback?state=abc",
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unparsable",
			url:     "://bad",
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, err := ParseOAuthCallback(tt.url)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantCode, cb.Code)
			require.Equal(t, tt.wantState, cb.State)
		})
	}
}

func TestParseOAuthCallback_ProviderError(t *testing.T) {
	t.Parallel()

	_, err := ParseOAuthCallback("https://app.example.com/callback?error=access_denied&error_description=User+denied+access")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "access_denied", apiErr.Code)
	require.Equal(t, "User denied access", apiErr.Description)
}

func TestOAuthCallback_CheckState(t *testing.T) {
	t.Parallel()

	cb := &OAuthCallback{Code: "xyz", State: "abc"}
	require.NoError(t, cb.CheckState("abc"))
	require.NoError(t, cb.CheckState(""))
	require.ErrorIs(t, cb.CheckState("other"), ErrInvalidInput)
}
