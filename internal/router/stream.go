// Package router turns one submitted request into an ordered, single-pass
// sequence of fully materialized messages.
//
// The stream owns no connection. It drives a Control port for commands and
// inbound messages and a Transfer port for uploads and payload downloads, and
// reports failures through Options.OnAbort so the owner can tear the channel
// down.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/danmuck/techread/internal/observability"
	"github.com/danmuck/techread/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrAbandoned is reported to OnAbort when a consumer stops ranging over
	// a stream before its terminal message.
	ErrAbandoned     = errors.New("router: stream abandoned before terminal message")
	ErrEmptyDocument = errors.New("router: document is empty")
)

// Control is the persistent control channel.
type Control interface {
	Send(ctx context.Context, cmd protocol.Command) error
	Receive(ctx context.Context) (protocol.Message, error)
}

// Transfer is the stateless data channel.
type Transfer interface {
	Upload(ctx context.Context, requestID uuid.UUID, kind protocol.FileKind, content []byte) error
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Submission is everything sent for one request.
type Submission struct {
	Request  protocol.Request
	Document []byte
	// Model is an optional 3D model attachment.
	Model []byte
}

type Options struct {
	Logger zerolog.Logger
	// OnAbort runs once when the stream fails or is abandoned.
	OnAbort func(err error)
	// OnFinish runs once when the stream ends, cleanly or not.
	OnFinish func()
}

type streamState int

const (
	stateIdle streamState = iota
	stateStreaming
	stateDone
	stateFailed
)

// Stream is the lazy message sequence of one request. It is single-pass and
// not safe for concurrent consumers; Next calls are serialized.
type Stream struct {
	mu       sync.Mutex
	sub      Submission
	control  Control
	transfer Transfer
	opts     Options
	log      zerolog.Logger

	state streamState
	err   error
	// pending holds a terminal message received during the handshake.
	pending *protocol.Message

	finished   atomic.Bool
	finishOnce sync.Once
}

func NewStream(sub Submission, control Control, transfer Transfer, opts Options) *Stream {
	return &Stream{
		sub:      sub,
		control:  control,
		transfer: transfer,
		opts:     opts,
		log:      opts.Logger.With().Str("request_id", sub.Request.RequestID.String()).Logger(),
	}
}

func (s *Stream) RequestID() uuid.UUID {
	return s.sub.Request.RequestID
}

// Finished reports whether the stream reached a terminal message or failed.
func (s *Stream) Finished() bool {
	return s.finished.Load()
}

// Next returns the next message in receipt order. After the terminal message
// it returns io.EOF; after a failure it keeps returning that failure.
func (s *Stream) Next(ctx context.Context) (protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateDone:
		return protocol.Message{}, io.EOF
	case stateFailed:
		return protocol.Message{}, s.err
	case stateIdle:
		if err := s.start(ctx); err != nil {
			return protocol.Message{}, s.fail(err)
		}
		if s.pending != nil {
			msg := *s.pending
			s.pending = nil
			return s.deliver(ctx, msg)
		}
	case stateStreaming:
	}

	msg, err := s.control.Receive(ctx)
	if err != nil {
		return protocol.Message{}, s.fail(err)
	}
	if msg.RequestID != s.sub.Request.RequestID {
		return protocol.Message{}, s.fail(&protocol.ServerError{
			Err: fmt.Errorf("%w: message for request %s on stream %s", protocol.ErrInvalidMessage, msg.RequestID, s.sub.Request.RequestID),
		})
	}
	return s.deliver(ctx, msg)
}

// All ranges over the remaining messages. A transport or protocol failure is
// yielded once as the final pair. Breaking out early abandons the request.
func (s *Stream) All(ctx context.Context) iter.Seq2[protocol.Message, error] {
	return func(yield func(protocol.Message, error) bool) {
		for {
			msg, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(protocol.Message{}, err)
				return
			}
			if !yield(msg, nil) {
				s.abandon()
				return
			}
		}
	}
}

// start runs INITIALIZE, waits for the handshake, uploads attachments and
// sends READ.
func (s *Stream) start(ctx context.Context) error {
	if len(s.sub.Document) == 0 {
		return ErrEmptyDocument
	}
	if err := s.sub.Request.Validate(); err != nil {
		return err
	}
	cmd, err := protocol.NewCommand(protocol.ActionInitialize, s.sub.Request)
	if err != nil {
		return err
	}
	if err := s.control.Send(ctx, cmd); err != nil {
		return err
	}

	ack, err := s.control.Receive(ctx)
	if err != nil {
		return err
	}
	if ack.RequestID != s.sub.Request.RequestID {
		return &protocol.ServerError{Err: fmt.Errorf("%w: handshake for request %s", protocol.ErrInvalidMessage, ack.RequestID)}
	}
	switch {
	case ack.Type == protocol.MessageTypeProgress && ack.Subtype == protocol.SubtypeProgressInitializationSuccess:
	case ack.Type == protocol.MessageTypeError || ack.Type == protocol.MessageTypeRejection:
		s.log.Warn().Str("type", string(ack.Type)).Str("subtype", string(ack.Subtype)).Msg("router.start initialization refused")
		s.state = stateStreaming
		s.pending = &ack
		return nil
	default:
		return &protocol.ServerError{Err: fmt.Errorf("%w: unexpected handshake %s/%s", protocol.ErrInvalidMessage, ack.Type, ack.Subtype)}
	}

	id := s.sub.Request.RequestID
	if err := s.transfer.Upload(ctx, id, protocol.FileKindDrawing, s.sub.Document); err != nil {
		return err
	}
	if err := s.transfer.Upload(ctx, id, protocol.FileKindModel, s.sub.Model); err != nil {
		return err
	}
	read, err := protocol.NewCommand(protocol.ActionRead, protocol.ReadRequest{RequestID: id})
	if err != nil {
		return err
	}
	if err := s.control.Send(ctx, read); err != nil {
		return err
	}
	s.state = stateStreaming
	s.log.Debug().Int("asks", len(s.sub.Request.Asks)).Int("document_bytes", len(s.sub.Document)).Msg("router.start submitted")
	return nil
}

// deliver resolves the payload reference, if any, before the caller sees msg.
func (s *Stream) deliver(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	if msg.HasPayloadReference() {
		payload, err := s.transfer.Fetch(ctx, msg.PayloadURL)
		if err != nil {
			return protocol.Message{}, s.fail(err)
		}
		msg.PayloadBytes = payload
	}
	observability.RecordMessage(string(msg.Type), string(msg.Subtype))
	if msg.Terminal() {
		s.state = stateDone
		s.log.Debug().Str("type", string(msg.Type)).Str("subtype", string(msg.Subtype)).Msg("router.Next terminal message")
		s.finish()
	}
	return msg, nil
}

func (s *Stream) fail(err error) error {
	s.state = stateFailed
	s.err = err
	s.log.Warn().Err(err).Msg("router.Next stream failed")
	if s.opts.OnAbort != nil {
		s.opts.OnAbort(err)
	}
	s.finish()
	return err
}

func (s *Stream) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateDone || s.state == stateFailed {
		return
	}
	s.fail(ErrAbandoned)
}

func (s *Stream) finish() {
	s.finishOnce.Do(func() {
		s.finished.Store(true)
		if s.opts.OnFinish != nil {
			s.opts.OnFinish()
		}
	})
}
