// Package hooks routes streamed messages to caller callbacks by message
// type, subtype or ask.
package hooks

import (
	"context"
	"fmt"

	"github.com/danmuck/techread/internal/protocol"
	"github.com/danmuck/techread/internal/session"
)

// Hook binds Func to messages it matches. Set Ask to receive the results of
// one ask kind, which also adds that ask to the request. Otherwise
// MessageType and MessageSubtype filter; an empty field matches anything.
type Hook struct {
	MessageType    protocol.MessageType
	MessageSubtype protocol.MessageSubtype
	Ask            protocol.Ask
	Func           func(protocol.Message) error
}

// Matches reports whether h applies to msg.
func (h Hook) Matches(msg protocol.Message) bool {
	if h.Ask != nil {
		kind, ok := msg.AskKind()
		return ok && kind == h.Ask.Kind()
	}
	if h.MessageType != "" && h.MessageType != msg.Type {
		return false
	}
	if h.MessageSubtype != "" && h.MessageSubtype != msg.Subtype {
		return false
	}
	return true
}

// Asks collects the asks hooks subscribe to, first hook wins per kind.
func Asks(hooks []Hook) []protocol.Ask {
	seen := make(map[protocol.AskKind]struct{}, len(hooks))
	out := make([]protocol.Ask, 0, len(hooks))
	for _, h := range hooks {
		if h.Ask == nil {
			continue
		}
		if _, dup := seen[h.Ask.Kind()]; dup {
			continue
		}
		seen[h.Ask.Kind()] = struct{}{}
		out = append(out, h.Ask)
	}
	return out
}

// Dispatch calls every matching hook in registration order. The first hook
// error stops dispatch and is returned.
func Dispatch(hooks []Hook, msg protocol.Message) error {
	for i, h := range hooks {
		if h.Func == nil || !h.Matches(msg) {
			continue
		}
		if err := h.Func(msg); err != nil {
			return fmt.Errorf("hooks: hook %d on %s/%s: %w", i, msg.Type, msg.Subtype, err)
		}
	}
	return nil
}

// ReadDrawing submits document on s with the asks named by hooks and
// dispatches every message until the terminal one. A transport failure or a
// hook error ends the read and closes the session.
func ReadDrawing(ctx context.Context, s *session.Session, document []byte, hooks []Hook, opts ...session.ReadOption) error {
	stream, err := s.ReadDrawing(ctx, document, Asks(hooks), opts...)
	if err != nil {
		return err
	}
	for msg, err := range stream.All(ctx) {
		if err != nil {
			return err
		}
		if err := Dispatch(hooks, msg); err != nil {
			return err
		}
	}
	return nil
}
