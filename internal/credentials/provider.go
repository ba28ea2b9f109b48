// Package credentials resolves the accounting platform's OAuth client
// credentials and token set from a local connection file and a secret
// store, the way the xoauth CLI lays them out.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"shopify2xero/internal/secrets"
)

// tokenSetSuffix is appended to the connection name to form the secret
// store key holding the current token set.
const tokenSetSuffix = ":token_set"

// connectionConfig is one named connection in the connection file.
type connectionConfig struct {
	ClientID string   `json:"ClientId"`
	Scopes   []string `json:"Scopes"`
}

// Provider resolves OAuth client id, scopes, client secret and the
// current token set for one named connection.
type Provider struct {
	connectionName string
	clientID       string
	scopes         []string
	store          secrets.Store
}

// DefaultConfigPath returns the conventional connection file location,
// ~/.xoauth/xoauth.json.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".xoauth", "xoauth.json"), nil
}

// NewProvider loads the named connection from the connection file. The
// client secret and token set stay in the secret store and are fetched
// on demand.
func NewProvider(configPath, connectionName string, store secrets.Store) (*Provider, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read connection config %s: %w", configPath, err)
	}

	var connections map[string]connectionConfig
	if err := json.Unmarshal(data, &connections); err != nil {
		return nil, fmt.Errorf("failed to parse connection config %s: %w", configPath, err)
	}

	connection, ok := connections[connectionName]
	if !ok {
		return nil, fmt.Errorf("connection %q not found in %s", connectionName, configPath)
	}
	if connection.ClientID == "" {
		return nil, fmt.Errorf("connection %q has no client id", connectionName)
	}

	return &Provider{
		connectionName: connectionName,
		clientID:       connection.ClientID,
		scopes:         connection.Scopes,
		store:          store,
	}, nil
}

// ClientID returns the OAuth client id of the connection.
func (p *Provider) ClientID() string {
	return p.clientID
}

// Scopes returns the OAuth scopes of the connection.
func (p *Provider) Scopes() []string {
	return p.scopes
}

// ClientSecret fetches the OAuth client secret from the secret store.
func (p *Provider) ClientSecret(ctx context.Context) (string, error) {
	secret, err := p.store.Get(ctx, p.connectionName)
	if err != nil {
		return "", fmt.Errorf("failed to read client secret for %q: %w", p.connectionName, err)
	}
	return secret, nil
}

// tokenSet is the persisted JSON shape of a token set.
type tokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// GetToken returns the stored token set with the configured scopes
// injected.
func (p *Provider) GetToken(ctx context.Context) (*oauth2.Token, error) {
	raw, err := p.store.Get(ctx, p.connectionName+tokenSetSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to read token set for %q: %w", p.connectionName, err)
	}

	var ts tokenSet
	if err := json.Unmarshal([]byte(raw), &ts); err != nil {
		return nil, fmt.Errorf("failed to parse token set for %q: %w", p.connectionName, err)
	}

	token := &oauth2.Token{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		TokenType:    ts.TokenType,
	}
	if ts.ExpiresAt > 0 {
		token.Expiry = time.Unix(ts.ExpiresAt, 0)
	}
	return token, nil
}

// SetToken persists the full token set as JSON, replacing the previous
// one.
func (p *Provider) SetToken(ctx context.Context, token *oauth2.Token) error {
	ts := tokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scope:        strings.Join(p.scopes, " "),
	}
	if !token.Expiry.IsZero() {
		ts.ExpiresAt = token.Expiry.Unix()
	}

	data, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("failed to marshal token set: %w", err)
	}

	if err := p.store.Set(ctx, p.connectionName+tokenSetSuffix, string(data)); err != nil {
		return fmt.Errorf("failed to store token set for %q: %w", p.connectionName, err)
	}
	return nil
}
