package protocol

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnauthorized    = errors.New("protocol: unauthorized")
	ErrServer          = errors.New("protocol: server error")
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
	ErrInvalidMessage  = errors.New("protocol: invalid message")

	// ErrConnection is a transport failure establishing or using a channel.
	ErrConnection = errors.New("protocol: connection failed")
	// ErrConnectionLost is the control channel dropping before a terminal message.
	ErrConnectionLost = errors.New("protocol: connection lost")
	// ErrUntrustedPayloadSource is a payload URL outside the session's server
	// origin. It is never retried or downgraded.
	ErrUntrustedPayloadSource = errors.New("protocol: untrusted payload source")
)

// ServerError reports an unexpected status code or an unusable response.
// It always matches ErrServer; a 413 status also matches ErrPayloadTooLarge.
type ServerError struct {
	URL    string
	Status int
	Err    error
}

func (e *ServerError) Error() string {
	var b strings.Builder
	b.WriteString("protocol: server error")
	if e.URL != "" {
		fmt.Fprintf(&b, " url=%q", e.URL)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ServerError) Unwrap() []error {
	out := []error{ErrServer}
	if e.Status == http.StatusRequestEntityTooLarge {
		out = append(out, ErrPayloadTooLarge)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// CheckStatus is the one status rule for every techread endpoint:
// 401/403 are unauthorized, 200 is success, anything else is a ServerError.
func CheckStatus(url string, status int) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: url=%q status=%d", ErrUnauthorized, url, status)
	default:
		return &ServerError{URL: url, Status: status}
	}
}
