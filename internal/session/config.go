package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/techread/internal/auth"
	"github.com/rs/zerolog"
)

const (
	DefaultVersion       = "v1"
	DefaultClientVersion = "techread-go/0.2.0"
)

var (
	ErrServerHTTPSRequired = errors.New("session: https server required")
	ErrServerWSSRequired   = errors.New("session: wss server required")
	ErrVersionRequired     = errors.New("session: protocol version required")

	// ErrHeartbeatTooSlow means no pong can extend the read deadline in time.
	ErrHeartbeatTooSlow = errors.New("session: heartbeat interval must be shorter than read timeout")
)

// SecurityMode selects plaintext development transport or TLS production transport.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

type TLSConfig struct {
	Enabled            bool
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// BackoffConfig defines retry backoff behavior for OpenWithRetry.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines the servers, identity and transport limits of a client.
type Config struct {
	// ServerHTTPS and ServerWSS are host[:port] of the data and control channels.
	ServerHTTPS    string
	ServerWSS      string
	Version        string
	ClientVersion  string
	DevelopmentKey string

	// Tokens is captured by each session at open time.
	Tokens auth.TokenSource

	SecurityMode SecurityMode
	TLS          TLSConfig

	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	TransferTimeout   time.Duration
	MaxMessageBytes   int64
	Backoff           BackoffConfig

	Logger zerolog.Logger
}

// DefaultConfig returns production defaults. Servers have no default.
func DefaultConfig() Config {
	return Config{
		Version:           DefaultVersion,
		ClientVersion:     DefaultClientVersion,
		SecurityMode:      SecurityModeProduction,
		TLS:               TLSConfig{Enabled: true},
		ConnectTimeout:    10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      15 * time.Second,
		HeartbeatInterval: 20 * time.Second,
		TransferTimeout:   120 * time.Second,
		MaxMessageBytes:   1 << 20,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Logger: zerolog.Nop(),
	}
}

// WithDefaults fills zero-valued limits from DefaultConfig. Servers, mode and
// TLS are left as given.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	c.Version = strings.Trim(strings.TrimSpace(c.Version), "/")
	if c.Version == "" {
		c.Version = def.Version
	}
	if strings.TrimSpace(c.ClientVersion) == "" {
		c.ClientVersion = def.ClientVersion
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HeartbeatInterval >= c.ReadTimeout {
		c.HeartbeatInterval = c.ReadTimeout / 2
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = def.TransferTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = def.MaxMessageBytes
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerHTTPS) == "" {
		return ErrServerHTTPSRequired
	}
	if strings.TrimSpace(c.ServerWSS) == "" {
		return ErrServerWSSRequired
	}
	if strings.TrimSpace(c.Version) == "" {
		return ErrVersionRequired
	}
	if c.ReadTimeout > 0 && c.HeartbeatInterval >= c.ReadTimeout {
		return fmt.Errorf("%w: heartbeat=%s read=%s", ErrHeartbeatTooSlow, c.HeartbeatInterval, c.ReadTimeout)
	}
	return c.ValidateClientTransport()
}
