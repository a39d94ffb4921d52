package config

import (
	"context"
	"strings"

	"github.com/danmuck/techread/internal/auth"
	"github.com/danmuck/techread/internal/session"
	"github.com/rs/zerolog"
)

// TokenSource builds the token capability the profile describes.
func (p Profile) TokenSource(ctx context.Context) (auth.TokenSource, error) {
	if token := strings.TrimSpace(p.Auth.Token); token != "" {
		return auth.Static(token), nil
	}
	src, err := auth.ClientCredentials(ctx, auth.ClientCredentialsConfig{
		ClientID:     p.Auth.ClientID,
		ClientSecret: p.Auth.ClientSecret,
		TokenURL:     p.Auth.TokenURL,
		Scopes:       p.Auth.Scopes,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// SessionConfig converts the profile into a session configuration.
func (p Profile) SessionConfig(ctx context.Context, logger zerolog.Logger) (session.Config, error) {
	d, err := p.Timeouts.durations()
	if err != nil {
		return session.Config{}, err
	}
	tokens, err := p.TokenSource(ctx)
	if err != nil {
		return session.Config{}, err
	}
	mode := session.NormalizeSecurityMode(session.SecurityMode(p.SecurityMode))
	cfg := session.Config{
		ServerHTTPS:    strings.TrimSpace(p.ServerHTTPS),
		ServerWSS:      strings.TrimSpace(p.ServerWSS),
		Version:        p.Version,
		DevelopmentKey: p.DevelopmentKey,
		Tokens:         tokens,
		SecurityMode:   mode,
		TLS: session.TLSConfig{
			Enabled:            p.TLS.Enabled || mode == session.SecurityModeProduction,
			CAFile:             p.TLS.CAFile,
			ServerName:         p.TLS.ServerName,
			InsecureSkipVerify: p.TLS.InsecureSkipVerify,
		},
		ConnectTimeout:    d.connect,
		HandshakeTimeout:  d.handshake,
		ReadTimeout:       d.read,
		WriteTimeout:      d.write,
		HeartbeatInterval: d.heartbeat,
		TransferTimeout:   d.transfer,
		Logger:            logger,
	}
	return cfg.WithDefaults(), nil
}
