package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/techread/internal/session"
	"github.com/danmuck/techread/internal/testutil/testlog"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestTemplatesLoadAndValidate(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{"profile", "dev"} {
		path := filepath.Join(t.TempDir(), kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		if err := WriteTemplate(path, kind, false); err == nil {
			t.Fatalf("expected refusal to overwrite %s", kind)
		}
		if err := Validate(path, kind); err != nil {
			t.Fatalf("expected %s template to validate, got %v", kind, err)
		}
	}
	if _, err := Template("ghost"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLoadProfileDefaultsAndConversion(t *testing.T) {
	logger := testlog.Start(t)
	path := writeFile(t, "profile.toml", `
server_https = "api.example"
server_wss = "ws.example"

[timeouts]
read = "30s"

[auth]
token = "tok"
`)
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if p.Version != "v1" || p.SecurityMode != "production" {
		t.Fatalf("expected defaults, got version=%q mode=%q", p.Version, p.SecurityMode)
	}

	cfg, err := p.SessionConfig(context.Background(), logger)
	if err != nil {
		t.Fatalf("session config: %v", err)
	}
	if !cfg.TLS.Enabled || cfg.SecurityMode != session.SecurityModeProduction {
		t.Fatalf("expected production tls, got %+v", cfg.TLS)
	}
	if cfg.ReadTimeout != 30*time.Second || cfg.ConnectTimeout != session.DefaultConfig().ConnectTimeout {
		t.Fatalf("unexpected timeouts read=%v connect=%v", cfg.ReadTimeout, cfg.ConnectTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid session config, got %v", err)
	}
	token, err := cfg.Tokens.Token(context.Background())
	if err != nil || token != "tok" {
		t.Fatalf("expected static token, got %q err=%v", token, err)
	}
}

func TestValidateProfileErrors(t *testing.T) {
	base := Profile{ServerHTTPS: "a", ServerWSS: "b", Auth: AuthProfile{Token: "t"}}
	cases := []struct {
		name   string
		mutate func(*Profile)
		want   string
	}{
		{"missing https", func(p *Profile) { p.ServerHTTPS = "" }, "server_https"},
		{"missing wss", func(p *Profile) { p.ServerWSS = "" }, "server_wss"},
		{"bad mode", func(p *Profile) { p.SecurityMode = "staging" }, "security_mode"},
		{"bad duration", func(p *Profile) { p.Timeouts.Read = "soon" }, "timeouts.read"},
		{"no credentials", func(p *Profile) { p.Auth = AuthProfile{} }, "token or client credentials"},
		{"partial credentials", func(p *Profile) { p.Auth = AuthProfile{ClientID: "id", ClientSecret: "s"} }, "token_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			p := base
			tc.mutate(&p)
			err := ValidateProfile(p)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestResolveLayersDotenvFileAndEnv(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "profile.toml", `
server_https = "file.example"
server_wss = "file-ws.example"
security_mode = "development"

[auth]
token = "file-token"
`)
	envFile := writeFile(t, ".techread", "TECHREAD_SERVER_WSS=dotenv-ws.example\nTECHREAD_SCOPES=read,write\n")

	t.Setenv("TECHREAD_TOKEN", "env-token")
	t.Setenv("TECHREAD_READ_TIMEOUT", "45s")
	// Registered so t cleans up the variables godotenv sets.
	t.Setenv("TECHREAD_SERVER_WSS", "")
	os.Unsetenv("TECHREAD_SERVER_WSS")
	t.Setenv("TECHREAD_SCOPES", "")
	os.Unsetenv("TECHREAD_SCOPES")

	p, err := Resolve(path, envFile)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.ServerHTTPS != "file.example" {
		t.Fatalf("expected file server_https, got %q", p.ServerHTTPS)
	}
	if p.ServerWSS != "dotenv-ws.example" {
		t.Fatalf("expected dotenv server_wss, got %q", p.ServerWSS)
	}
	if p.Auth.Token != "env-token" {
		t.Fatalf("expected env token, got %q", p.Auth.Token)
	}
	if p.Timeouts.Read != "45s" {
		t.Fatalf("expected env read timeout, got %q", p.Timeouts.Read)
	}
	if strings.Join(p.Auth.Scopes, ",") != "read,write" {
		t.Fatalf("expected scopes from dotenv, got %v", p.Auth.Scopes)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	testlog.Start(t)
	t.Chdir(t.TempDir())
	if err := LoadDotenv(""); err != nil {
		t.Fatalf("expected missing default file to be ignored, got %v", err)
	}
	if err := LoadDotenv("nope.env"); err == nil {
		t.Fatalf("expected explicit missing file error")
	}
}

func TestLoadDevProfile(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "dev.toml", `token = "x"
tls_cert_file = "cert.pem"
`)
	if _, err := LoadDevProfile(path); err == nil || !strings.Contains(err.Error(), "together") {
		t.Fatalf("expected cert/key pairing error, got %v", err)
	}

	path = writeFile(t, "dev.toml", `token = "x"`)
	p, err := LoadDevProfile(path)
	if err != nil {
		t.Fatalf("load dev profile: %v", err)
	}
	if p.Addr != ":8024" || p.Version != "v1" || p.Name != "techread-dev" {
		t.Fatalf("expected defaults, got %+v", p)
	}
}
