package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "profile":
		return profileTemplate, nil
	case "dev":
		return devTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as kind and reports the first problem.
func Validate(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "profile":
		_, err := LoadProfile(path)
		return err
	case "dev":
		_, err := LoadDevProfile(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const profileTemplate = `server_https = "localhost:8024"
server_wss = "localhost:8024"
version = "v1"
security_mode = "development"
development_key = ""

[tls]
enabled = false
ca_file = ""
server_name = ""

[timeouts]
connect = "10s"
read = "90s"
heartbeat = "20s"

[auth]
token = "dev-token"
# client_id = ""
# client_secret = ""
# token_url = ""
# scopes = []
`

const devTemplate = `name = "techread-dev"
addr = ":8024"
version = "v1"
token = "dev-token"
cors_origins = ["http://localhost:3000"]
max_document_bytes = 0
payload_host = ""
`
