// Package transfer is the stateless data channel: uploads of associated files,
// payload downloads and architecture status queries.
package transfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/techread/internal/auth"
	"github.com/danmuck/techread/internal/observability"
	"github.com/danmuck/techread/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultMaxResponseBytes int64 = 64 << 20

var ErrServerRequired = errors.New("transfer: server required")

type Config struct {
	// Server is the host[:port] of the data channel. Payload URLs must point here.
	Server  string
	Version string
	// Scheme is "https" unless the session runs in development mode.
	Scheme           string
	// HTTPClient is owned by the caller, which also releases its idle pool.
	HTTPClient       *http.Client
	Tokens           auth.TokenSource
	MaxResponseBytes int64
	Logger           zerolog.Logger
}

type Client struct {
	server  string
	version string
	scheme  string
	http    *http.Client
	tokens  auth.TokenSource
	limit   int64
	log     zerolog.Logger
}

func New(cfg Config) (*Client, error) {
	server := strings.TrimSpace(cfg.Server)
	if server == "" {
		return nil, ErrServerRequired
	}
	scheme := strings.ToLower(strings.TrimSpace(cfg.Scheme))
	if scheme == "" {
		scheme = "https"
	}
	if scheme != "https" && scheme != "http" {
		return nil, fmt.Errorf("transfer: unsupported scheme %q", cfg.Scheme)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limit := cfg.MaxResponseBytes
	if limit <= 0 {
		limit = DefaultMaxResponseBytes
	}
	return &Client{
		server:  server,
		version: strings.Trim(strings.TrimSpace(cfg.Version), "/"),
		scheme:  scheme,
		http:    httpClient,
		tokens:  cfg.Tokens,
		limit:   limit,
		log:     cfg.Logger,
	}, nil
}

// Upload posts content as {"<kind>": base64} for requestID. Empty content is
// a no-op: optional attachments may be omitted.
func (c *Client) Upload(ctx context.Context, requestID uuid.UUID, kind protocol.FileKind, content []byte) error {
	if len(content) == 0 {
		c.log.Debug().Str("request_id", requestID.String()).Str("kind", string(kind)).Msg("transfer.Upload skipped empty attachment")
		return nil
	}
	body, err := protocol.EncodeUpload(kind, content)
	if err != nil {
		return err
	}
	endpoint := c.endpoint("upload", requestID.String())
	if _, err := c.do(ctx, "upload", http.MethodPost, endpoint, body); err != nil {
		return err
	}
	c.log.Debug().
		Str("request_id", requestID.String()).
		Str("kind", string(kind)).
		Int("bytes", len(content)).
		Str("attachment_hash", protocol.AttachmentHash(content)).
		Msg("transfer.Upload done")
	return nil
}

// Fetch downloads the payload behind rawURL and base64-decodes it. The URL
// must share the data channel's origin; otherwise no request is made.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if _, err := c.CheckOrigin(rawURL); err != nil {
		observability.RecordUntrustedPayload()
		c.log.Error().Str("payload_url", rawURL).Str("server", c.server).Msg("transfer.Fetch refused untrusted payload source")
		return nil, err
	}
	body, err := c.do(ctx, "fetch", http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, &protocol.ServerError{URL: rawURL, Err: fmt.Errorf("decode payload: %w", err)}
	}
	return payload, nil
}

// ArchitectureStatus reports the deployment state of arch. A status string
// outside the known set is a ServerError.
func (c *Client) ArchitectureStatus(ctx context.Context, arch protocol.Architecture) (protocol.ArchitectureStatus, error) {
	endpoint := c.endpoint("architecture_status", string(arch))
	body, err := c.do(ctx, "architecture_status", http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &protocol.ServerError{URL: endpoint, Err: fmt.Errorf("decode status: %w", err)}
	}
	status, ok := protocol.ParseArchitectureStatus(out.Status)
	if !ok {
		return "", &protocol.ServerError{URL: endpoint, Err: fmt.Errorf("unknown architecture status %q", out.Status)}
	}
	return status, nil
}

// CheckOrigin verifies that rawURL targets this client's scheme and host.
func (c *Client) CheckOrigin(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", protocol.ErrUntrustedPayloadSource, rawURL, err)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: %q carries userinfo", protocol.ErrUntrustedPayloadSource, rawURL)
	}
	if !strings.EqualFold(u.Scheme, c.scheme) {
		return nil, fmt.Errorf("%w: %q scheme %q want %q", protocol.ErrUntrustedPayloadSource, rawURL, u.Scheme, c.scheme)
	}
	if u.Host == "" || !strings.EqualFold(u.Host, c.server) {
		return nil, fmt.Errorf("%w: %q host %q want %q", protocol.ErrUntrustedPayloadSource, rawURL, u.Host, c.server)
	}
	return u, nil
}

func (c *Client) endpoint(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	if c.version != "" {
		segments = append(segments, c.version)
	}
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return (&url.URL{Scheme: c.scheme, Host: c.server, Path: "/" + strings.Join(segments, "/")}).String()
}

// do issues one authenticated request and returns the body of a 200 response.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	token, err := auth.Resolve(ctx, c.tokens)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.RecordTransfer(op, 0, time.Since(start), false)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", protocol.ErrConnection, method, endpoint, err)
	}
	defer resp.Body.Close()

	if err := protocol.CheckStatus(endpoint, resp.StatusCode); err != nil {
		observability.RecordTransfer(op, resp.StatusCode, time.Since(start), false)
		c.log.Warn().Str("op", op).Str("url", endpoint).Int("status", resp.StatusCode).Msg("transfer request rejected")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.limit+1))
	if err != nil {
		observability.RecordTransfer(op, resp.StatusCode, time.Since(start), false)
		return nil, fmt.Errorf("%w: read %s: %v", protocol.ErrConnection, endpoint, err)
	}
	if int64(len(data)) > c.limit {
		observability.RecordTransfer(op, resp.StatusCode, time.Since(start), false)
		return nil, &protocol.ServerError{URL: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("%w: response exceeds %d bytes", protocol.ErrPayloadTooLarge, c.limit)}
	}
	observability.RecordTransfer(op, resp.StatusCode, time.Since(start), true)
	return data, nil
}
