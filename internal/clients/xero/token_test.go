package xero

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type stubTokenSource struct {
	tokens []*oauth2.Token
	calls  int
	err    error
}

func (s *stubTokenSource) Token() (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	token := s.tokens[s.calls]
	if s.calls < len(s.tokens)-1 {
		s.calls++
	}
	return token, nil
}

func TestPersistingTokenSourceSavesOnRefresh(t *testing.T) {
	initial := &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(time.Hour)}
	refreshed := &oauth2.Token{AccessToken: "new", RefreshToken: "r2", Expiry: time.Now().Add(time.Hour)}

	var saved []*oauth2.Token
	source := &persistingTokenSource{
		base: &stubTokenSource{tokens: []*oauth2.Token{initial, refreshed}},
		last: initial,
		save: func(token *oauth2.Token) error {
			saved = append(saved, token)
			return nil
		},
	}

	// First call hands back the stored token unchanged, nothing to save.
	token, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "old", token.AccessToken)
	assert.Empty(t, saved)

	// The underlying source refreshed; the new token set is persisted.
	token, err = source.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", token.AccessToken)
	require.Len(t, saved, 1)
	assert.Equal(t, "new", saved[0].AccessToken)
	assert.Equal(t, "r2", saved[0].RefreshToken)

	// The same token again is not saved twice.
	_, err = source.Token()
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestPersistingTokenSourceSurfacesSaveErrors(t *testing.T) {
	refreshed := &oauth2.Token{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}

	source := &persistingTokenSource{
		base: &stubTokenSource{tokens: []*oauth2.Token{refreshed}},
		last: &oauth2.Token{AccessToken: "old"},
		save: func(token *oauth2.Token) error {
			return fmt.Errorf("secret store unavailable")
		},
	}

	_, err := source.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret store unavailable")
}

func TestPersistingTokenSourceSurfacesRefreshErrors(t *testing.T) {
	source := &persistingTokenSource{
		base: &stubTokenSource{err: fmt.Errorf("invalid_grant")},
	}

	_, err := source.Token()
	require.Error(t, err)
}
