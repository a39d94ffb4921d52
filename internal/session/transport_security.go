package session

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrInvalidSecurityMode     = errors.New("session: invalid security mode")
	ErrTLSRequired             = errors.New("session: tls required")
	ErrTLSInsecureSkipNotAllow = errors.New("session: insecure skip verify not allowed")
)

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	if strings.TrimSpace(string(mode)) == "" {
		return SecurityModeProduction
	}
	return SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

// ValidateClientTransport rejects plaintext or unverified transport in
// production mode. Bearer tokens never cross an unencrypted channel there.
func (c Config) ValidateClientTransport() error {
	mode := NormalizeSecurityMode(c.SecurityMode)
	switch mode {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}

	if mode == SecurityModeProduction {
		if !c.TLS.Enabled {
			return ErrTLSRequired
		}
		if c.TLS.InsecureSkipVerify {
			return ErrTLSInsecureSkipNotAllow
		}
	}
	return nil
}

// httpScheme and wsScheme follow TLS.Enabled.
func (c Config) httpScheme() string {
	if c.TLS.Enabled {
		return "https"
	}
	return "http"
}

func (c Config) wsScheme() string {
	if c.TLS.Enabled {
		return "wss"
	}
	return "ws"
}

func (c Config) controlURL() string {
	return fmt.Sprintf("%s://%s/%s", c.wsScheme(), c.ServerWSS, c.Version)
}

// clientTLSConfig returns nil when TLS is disabled. System roots are used
// unless CAFile names a bundle.
func (c Config) clientTLSConfig() (*tls.Config, error) {
	if !c.TLS.Enabled {
		return nil, nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify,
		ServerName:         strings.TrimSpace(c.TLS.ServerName),
	}
	if caPath := strings.TrimSpace(c.TLS.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("session: parse tls ca bundle: %s", caPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func (c Config) netDialer() *net.Dialer {
	return &net.Dialer{Timeout: c.ConnectTimeout, KeepAlive: 30 * time.Second}
}

func (c Config) httpClient(tlsCfg *tls.Config) *http.Client {
	return &http.Client{
		Timeout: c.TransferTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         c.netDialer().DialContext,
			TLSClientConfig:     tlsCfg,
			TLSHandshakeTimeout: c.HandshakeTimeout,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func (c Config) wsDialer(tlsCfg *tls.Config) *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext:   c.netDialer().DialContext,
		TLSClientConfig:  tlsCfg,
		HandshakeTimeout: c.HandshakeTimeout,
	}
}
