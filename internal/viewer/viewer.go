// Package viewer shows payloads for debugging. The CLI injects a Viewer;
// nothing in the client core depends on one.
package viewer

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var ErrDirRequired = errors.New("viewer: directory required")

type Viewer interface {
	Show(data []byte, label string) error
}

// Dir writes every shown payload into a directory, one file per call, named
// after the label with an extension sniffed from the content.
type Dir struct {
	path string
	log  zerolog.Logger
	seq  atomic.Int64
}

func NewDir(path string, logger zerolog.Logger) (*Dir, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrDirRequired
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &Dir{path: path, log: logger}, nil
}

func (d *Dir) Show(data []byte, label string) error {
	n := d.seq.Add(1)
	name := fmt.Sprintf("%03d-%s%s", n, sanitize(label), extension(data))
	target := filepath.Join(d.path, name)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return err
	}
	d.log.Info().Str("label", label).Str("file", target).Int("bytes", len(data)).Msg("viewer.Show wrote payload")
	return nil
}

// Log only records that a payload was shown.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Show(data []byte, label string) error {
	l.Logger.Info().Str("label", label).Int("bytes", len(data)).Str("content_type", http.DetectContentType(data)).Msg("viewer.Show")
	return nil
}

func extension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/svg+xml":
		return ".svg"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}

func sanitize(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "payload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, label)
}
