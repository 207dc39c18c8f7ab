package authsdk

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource adapts the session to oauth2.TokenSource, for libraries that
// take one. Each Token call reads the store, so refreshes done elsewhere are
// picked up. ctx is used for any refresh the call triggers.
//
// Requests sent this way do not get the 401 retry; prefer HTTPClient where
// possible.
func (c *SDKClient) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, client: c}
}

type sessionTokenSource struct {
	ctx    context.Context
	client *SDKClient
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.client.outboundToken(s.ctx, firstAttempt)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	exp, _ := s.client.inspect(token)
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      exp,
	}, nil
}
