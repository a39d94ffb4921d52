package session

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/techread/internal/protocol"
	"github.com/danmuck/techread/internal/router"
	"github.com/danmuck/techread/internal/transfer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrSessionNotActive = errors.New("session: not active")
	ErrSessionBusy      = errors.New("session: a read is already in flight")
	ErrEmptyDocument    = router.ErrEmptyDocument
)

type sessionState int

const (
	stateClosed sessionState = iota
	stateOpen
)

// Session is one open connection. At most one read is in flight at a time.
type Session struct {
	id       uuid.UUID
	cfg      Config
	log      zerolog.Logger
	control  *controlChannel
	transfer *transfer.Client
	newID    func() uuid.UUID

	mu     sync.Mutex
	state  sessionState
	active *router.Stream

	closeOnce sync.Once
}

type readOptions struct {
	model     []byte
	requestID uuid.UUID
}

type ReadOption func(*readOptions)

// WithModel attaches a 3D model to the read.
func WithModel(model []byte) ReadOption {
	return func(o *readOptions) { o.model = model }
}

// WithRequestID fixes the request id instead of generating one.
func WithRequestID(id uuid.UUID) ReadOption {
	return func(o *readOptions) { o.requestID = id }
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpen
}

// ReadDrawing submits document with asks and returns the lazy message stream.
// Nothing is sent until the first Next. Any stream failure closes the session;
// a clean terminal message leaves it open for another read.
func (s *Session) ReadDrawing(ctx context.Context, document []byte, asks []protocol.Ask, opts ...ReadOption) (*router.Stream, error) {
	if s == nil {
		return nil, ErrSessionNotActive
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return nil, ErrSessionNotActive
	}
	if len(document) == 0 {
		return nil, ErrEmptyDocument
	}
	if s.active != nil && !s.active.Finished() {
		return nil, ErrSessionBusy
	}

	var ro readOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.requestID == uuid.Nil {
		ro.requestID = s.newID()
	}
	req := protocol.NewRequest(ro.requestID, asks, s.cfg.ClientVersion, s.cfg.DevelopmentKey)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	stream := router.NewStream(router.Submission{
		Request:  req,
		Document: document,
		Model:    ro.model,
	}, s.control, s.transfer, router.Options{
		Logger: s.log,
		OnAbort: func(err error) {
			s.log.Warn().Str("request_id", req.RequestID.String()).Err(err).Msg("session.ReadDrawing aborted, closing session")
			_ = s.Close()
		},
	})
	s.active = stream
	s.log.Info().Str("request_id", req.RequestID.String()).Int("asks", len(req.Asks)).Msg("session.ReadDrawing prepared")
	return stream, nil
}

// ArchitectureStatus queries the data channel bound to this session.
func (s *Session) ArchitectureStatus(ctx context.Context, arch protocol.Architecture) (protocol.ArchitectureStatus, error) {
	if !s.Active() {
		return "", ErrSessionNotActive
	}
	return s.transfer.ArchitectureStatus(ctx, arch)
}

// Close drops the control channel. The data channel's HTTP pool belongs to
// the Client and outlives the session. Close is nil-safe and idempotent.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()
		if s.control != nil {
			_ = s.control.Close()
		}
		s.log.Info().Msg("session.Close released")
	})
	return nil
}
