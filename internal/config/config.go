package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Profile is a client connection profile.
type Profile struct {
	ServerHTTPS    string         `toml:"server_https"`
	ServerWSS      string         `toml:"server_wss"`
	Version        string         `toml:"version"`
	DevelopmentKey string         `toml:"development_key"`
	SecurityMode   string         `toml:"security_mode"`
	TLS            TLSProfile     `toml:"tls"`
	Timeouts       TimeoutProfile `toml:"timeouts"`
	Auth           AuthProfile    `toml:"auth"`
}

type TLSProfile struct {
	Enabled            bool   `toml:"enabled"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// TimeoutProfile holds Go duration strings; empty means default.
type TimeoutProfile struct {
	Connect   string `toml:"connect"`
	Handshake string `toml:"handshake"`
	Read      string `toml:"read"`
	Write     string `toml:"write"`
	Heartbeat string `toml:"heartbeat"`
	Transfer  string `toml:"transfer"`
}

// AuthProfile selects a static token or OAuth2 client credentials.
type AuthProfile struct {
	Token        string   `toml:"token"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	TokenURL     string   `toml:"token_url"`
	Scopes       []string `toml:"scopes"`
}

// DevProfile configures cmd/techread-dev.
type DevProfile struct {
	Name             string   `toml:"name"`
	Addr             string   `toml:"addr"`
	Version          string   `toml:"version"`
	Token            string   `toml:"token"`
	CorsOrigins      []string `toml:"cors_origins"`
	MaxDocumentBytes int      `toml:"max_document_bytes"`
	PayloadHost      string   `toml:"payload_host"`
	TLSCertFile      string   `toml:"tls_cert_file"`
	TLSKeyFile       string   `toml:"tls_key_file"`
}

func LoadProfile(path string) (Profile, error) {
	var cfg Profile
	if err := loadToml(path, &cfg); err != nil {
		return Profile{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidateProfile(cfg); err != nil {
		return Profile{}, err
	}
	return cfg, nil
}

func LoadDevProfile(path string) (DevProfile, error) {
	var cfg DevProfile
	if err := loadToml(path, &cfg); err != nil {
		return DevProfile{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidateDevProfile(cfg); err != nil {
		return DevProfile{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func (p Profile) withDefaults() Profile {
	if strings.TrimSpace(p.Version) == "" {
		p.Version = "v1"
	}
	if strings.TrimSpace(p.SecurityMode) == "" {
		p.SecurityMode = "production"
	}
	return p
}

func (p DevProfile) withDefaults() DevProfile {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "techread-dev"
	}
	if strings.TrimSpace(p.Addr) == "" {
		p.Addr = ":8024"
	}
	if strings.TrimSpace(p.Version) == "" {
		p.Version = "v1"
	}
	return p
}

// Merge returns p with every non-empty field of override applied. Booleans
// can only be switched on by an override.
func (p Profile) Merge(override Profile) Profile {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&p.ServerHTTPS, override.ServerHTTPS)
	set(&p.ServerWSS, override.ServerWSS)
	set(&p.Version, override.Version)
	set(&p.DevelopmentKey, override.DevelopmentKey)
	set(&p.SecurityMode, override.SecurityMode)
	set(&p.TLS.CAFile, override.TLS.CAFile)
	set(&p.TLS.ServerName, override.TLS.ServerName)
	p.TLS.Enabled = p.TLS.Enabled || override.TLS.Enabled
	p.TLS.InsecureSkipVerify = p.TLS.InsecureSkipVerify || override.TLS.InsecureSkipVerify
	set(&p.Timeouts.Connect, override.Timeouts.Connect)
	set(&p.Timeouts.Handshake, override.Timeouts.Handshake)
	set(&p.Timeouts.Read, override.Timeouts.Read)
	set(&p.Timeouts.Write, override.Timeouts.Write)
	set(&p.Timeouts.Heartbeat, override.Timeouts.Heartbeat)
	set(&p.Timeouts.Transfer, override.Timeouts.Transfer)
	set(&p.Auth.Token, override.Auth.Token)
	set(&p.Auth.ClientID, override.Auth.ClientID)
	set(&p.Auth.ClientSecret, override.Auth.ClientSecret)
	set(&p.Auth.TokenURL, override.Auth.TokenURL)
	if len(override.Auth.Scopes) > 0 {
		p.Auth.Scopes = append([]string(nil), override.Auth.Scopes...)
	}
	return p
}

func ValidateProfile(cfg Profile) error {
	if strings.TrimSpace(cfg.ServerHTTPS) == "" {
		return fmt.Errorf("profile missing server_https")
	}
	if strings.TrimSpace(cfg.ServerWSS) == "" {
		return fmt.Errorf("profile missing server_wss")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.SecurityMode)) {
	case "", "development", "production":
	default:
		return fmt.Errorf("profile security_mode must be development or production, got %q", cfg.SecurityMode)
	}
	if _, err := cfg.Timeouts.durations(); err != nil {
		return err
	}
	if err := ValidateAuth(cfg.Auth); err != nil {
		return fmt.Errorf("auth invalid: %w", err)
	}
	return nil
}

func ValidateAuth(cfg AuthProfile) error {
	if strings.TrimSpace(cfg.Token) != "" {
		return nil
	}
	if strings.TrimSpace(cfg.ClientID) == "" && strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("token or client credentials required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return fmt.Errorf("client_id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("client_secret is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return fmt.Errorf("token_url is required")
	}
	return nil
}

func ValidateDevProfile(cfg DevProfile) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("dev profile missing addr")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return fmt.Errorf("dev profile missing token")
	}
	if cfg.MaxDocumentBytes < 0 {
		return fmt.Errorf("dev profile max_document_bytes must be >= 0")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return fmt.Errorf("dev profile tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

type timeouts struct {
	connect, handshake, read, write, heartbeat, transfer time.Duration
}

func (t TimeoutProfile) durations() (timeouts, error) {
	var out timeouts
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect", t.Connect, &out.connect},
		{"handshake", t.Handshake, &out.handshake},
		{"read", t.Read, &out.read},
		{"write", t.Write, &out.write},
		{"heartbeat", t.Heartbeat, &out.heartbeat},
		{"transfer", t.Transfer, &out.transfer},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return timeouts{}, fmt.Errorf("timeouts.%s invalid duration %q", f.name, f.raw)
		}
		*f.dst = d
	}
	return out, nil
}
