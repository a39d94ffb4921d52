package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvPrefix      = "TECHREAD_"
	DefaultEnvFile = ".techread"
)

type envProfile struct {
	ServerHTTPS    string        `env:"SERVER_HTTPS"`
	ServerWSS      string        `env:"SERVER_WSS"`
	Version        string        `env:"VERSION"`
	DevelopmentKey string        `env:"DEVELOPMENT_KEY"`
	SecurityMode   string        `env:"SECURITY_MODE"`
	TLSEnabled     bool          `env:"TLS_ENABLED"`
	TLSCAFile      string        `env:"TLS_CA_FILE"`
	TLSServerName  string        `env:"TLS_SERVER_NAME"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT"`
	Token          string        `env:"TOKEN"`
	ClientID       string        `env:"CLIENT_ID"`
	ClientSecret   string        `env:"CLIENT_SECRET"`
	TokenURL       string        `env:"TOKEN_URL"`
	Scopes         []string      `env:"SCOPES" envSeparator:","`
}

// FromEnv reads TECHREAD_* variables into a partial profile for Merge.
func FromEnv() (Profile, error) {
	var raw envProfile
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: EnvPrefix}); err != nil {
		return Profile{}, err
	}
	p := Profile{
		ServerHTTPS:    raw.ServerHTTPS,
		ServerWSS:      raw.ServerWSS,
		Version:        raw.Version,
		DevelopmentKey: raw.DevelopmentKey,
		SecurityMode:   raw.SecurityMode,
		TLS: TLSProfile{
			Enabled:    raw.TLSEnabled,
			CAFile:     raw.TLSCAFile,
			ServerName: raw.TLSServerName,
		},
		Auth: AuthProfile{
			Token:        raw.Token,
			ClientID:     raw.ClientID,
			ClientSecret: raw.ClientSecret,
			TokenURL:     raw.TokenURL,
			Scopes:       raw.Scopes,
		},
	}
	if raw.ReadTimeout > 0 {
		p.Timeouts.Read = raw.ReadTimeout.String()
	}
	return p, nil
}

// LoadDotenv loads path into the process environment without overriding
// variables already set. An empty path means DefaultEnvFile, which may be absent.
func LoadDotenv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Resolve builds the effective profile: dotenv, then the TOML file at path
// (optional), then TECHREAD_* variables on top.
func Resolve(path, envFile string) (Profile, error) {
	if err := LoadDotenv(envFile); err != nil {
		return Profile{}, err
	}
	var base Profile
	if strings.TrimSpace(path) != "" {
		if err := loadToml(path, &base); err != nil {
			return Profile{}, err
		}
	}
	override, err := FromEnv()
	if err != nil {
		return Profile{}, err
	}
	cfg := base.Merge(override).withDefaults()
	if err := ValidateProfile(cfg); err != nil {
		return Profile{}, err
	}
	return cfg, nil
}
