package session

import (
	"context"
	"crypto/tls"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/techread/internal/auth"
	"github.com/danmuck/techread/internal/observability"
	"github.com/danmuck/techread/internal/protocol"
	"github.com/danmuck/techread/internal/transfer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client opens sessions against one techread server pair.
type Client struct {
	cfg    Config
	log    zerolog.Logger
	tls    *tls.Config
	http   *http.Client
	dialer *websocket.Dialer

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.clientTLSConfig()
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		log:    cfg.Logger,
		tls:    tlsCfg,
		http:   cfg.httpClient(tlsCfg),
		dialer: cfg.wsDialer(tlsCfg),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (c *Client) Config() Config {
	return c.cfg
}

// Open authenticates and establishes the control channel. The token source is
// resolved once; nothing is sent on failure.
func (c *Client) Open(ctx context.Context) (*Session, error) {
	tokens := c.cfg.Tokens
	token, err := auth.Resolve(ctx, tokens)
	if err != nil {
		observability.RecordSessionOpen("auth_error")
		return nil, err
	}

	control, err := dialControl(ctx, c.dialer, c.cfg, token)
	if err != nil {
		observability.RecordSessionOpen(openResult(err))
		c.log.Warn().Str("server", c.cfg.ServerWSS).Err(err).Msg("session.Open control channel failed")
		return nil, err
	}

	data, err := c.transfer(tokens)
	if err != nil {
		_ = control.Close()
		observability.RecordSessionOpen("error")
		return nil, err
	}

	s := &Session{
		id:       uuid.New(),
		cfg:      c.cfg,
		control:  control,
		transfer: data,
		newID:    uuid.New,
		state:    stateOpen,
	}
	s.log = c.log.With().Str("session_id", s.id.String()).Logger()
	observability.RecordSessionOpen("ok")
	s.log.Info().Str("server_wss", c.cfg.ServerWSS).Str("server_https", c.cfg.ServerHTTPS).Msg("session.Open established")
	return s, nil
}

// Do opens a session, runs fn and always releases the session.
func (c *Client) Do(ctx context.Context, fn func(*Session) error) error {
	s, err := c.Open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// ArchitectureStatus queries the data channel without opening a control channel.
func (c *Client) ArchitectureStatus(ctx context.Context, arch protocol.Architecture) (protocol.ArchitectureStatus, error) {
	data, err := c.transfer(c.cfg.Tokens)
	if err != nil {
		return "", err
	}
	return data.ArchitectureStatus(ctx, arch)
}

// Close releases pooled HTTP connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) transfer(tokens auth.TokenSource) (*transfer.Client, error) {
	return transfer.New(transfer.Config{
		Server:           c.cfg.ServerHTTPS,
		Version:          c.cfg.Version,
		Scheme:           c.cfg.httpScheme(),
		HTTPClient:       c.http,
		Tokens:           tokens,
		MaxResponseBytes: transfer.DefaultMaxResponseBytes,
		Logger:           c.log,
	})
}

func openResult(err error) string {
	switch {
	case Retryable(err):
		return "connection_error"
	case isUnauthorized(err):
		return "unauthorized"
	default:
		return "error"
	}
}
