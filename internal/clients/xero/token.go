package xero

import (
	"context"

	"golang.org/x/oauth2"
)

// Endpoint is the Xero OAuth2 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://login.xero.com/identity/connect/authorize",
	TokenURL: "https://identity.xero.com/connect/token",
}

// TokenSaver persists a token set whenever the client refreshes it.
type TokenSaver func(token *oauth2.Token) error

// NewTokenSource returns a token source that refreshes through the given
// OAuth2 config and hands every refreshed token to save, verbatim.
//
// The read-then-save sequence is not locked: two processes sharing the
// same stored token set can race each other on refresh. Single-process
// use is the supported mode.
func NewTokenSource(ctx context.Context, conf *oauth2.Config, stored *oauth2.Token, save TokenSaver) oauth2.TokenSource {
	return &persistingTokenSource{
		base: conf.TokenSource(ctx, stored),
		last: stored,
		save: save,
	}
}

type persistingTokenSource struct {
	base oauth2.TokenSource
	last *oauth2.Token
	save TokenSaver
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if s.last == nil || token.AccessToken != s.last.AccessToken {
		if s.save != nil {
			if err := s.save(token); err != nil {
				return nil, err
			}
		}
		s.last = token
	}
	return token, nil
}
