// Package auth provides the token capability handed to every session and the
// token check used by the development server.
//
// Login flows and credential storage belong to whoever constructs the
// TokenSource.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthentication means no valid bearer token could be obtained.
	ErrAuthentication = errors.New("auth: no valid token")
	// ErrInvalidToken is returned by validators for a rejected token.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenSource returns the currently valid bearer token, refreshing on demand.
// Implementations must be safe for concurrent use by independent sessions.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken is a single fixed token. As a TokenSource it always returns the
// token; as a Validator it accepts only that token.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Static adapts a fixed token into a TokenSource.
func Static(token string) TokenSource {
	return staticSource(token)
}

type staticSource string

func (s staticSource) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", fmt.Errorf("%w: empty static token", ErrAuthentication)
	}
	return string(s), nil
}

// FuncSource adapts a function into a TokenSource.
type FuncSource func(ctx context.Context) (string, error)

func (f FuncSource) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// Resolve fetches a token from src and normalizes every failure to
// ErrAuthentication.
func Resolve(ctx context.Context, src TokenSource) (string, error) {
	if src == nil {
		return "", fmt.Errorf("%w: no token source configured", ErrAuthentication)
	}
	token, err := src.Token(ctx)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuthentication)
	}
	return token, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
