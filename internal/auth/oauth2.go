package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Source wraps an oauth2.TokenSource. Refresh is coordinated by
// oauth2.ReuseTokenSource, so many sessions can share one source and only one
// of them triggers a refresh when the cached token expires.
type OAuth2Source struct {
	src oauth2.TokenSource
}

func NewOAuth2Source(src oauth2.TokenSource) *OAuth2Source {
	return &OAuth2Source{src: oauth2.ReuseTokenSource(nil, src)}
}

func (o *OAuth2Source) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := o.src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if !tok.Valid() {
		return "", fmt.Errorf("%w: token expired", ErrAuthentication)
	}
	return tok.AccessToken, nil
}

// ClientCredentialsConfig configures the OAuth2 client-credentials grant.
type ClientCredentialsConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

func (c ClientCredentialsConfig) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: missing client_id", ErrAuthentication)
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("%w: missing client_secret", ErrAuthentication)
	}
	if strings.TrimSpace(c.TokenURL) == "" {
		return fmt.Errorf("%w: missing token_url", ErrAuthentication)
	}
	return nil
}

// ClientCredentials returns a refreshing TokenSource for the grant. ctx bounds
// the HTTP client used for token requests, not individual Token calls.
func ClientCredentials(ctx context.Context, cfg ClientCredentialsConfig) (*OAuth2Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return NewOAuth2Source(cc.TokenSource(ctx)), nil
}
