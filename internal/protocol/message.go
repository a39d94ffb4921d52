package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Message is one server->client unit on the control channel.
//
// PayloadBytes is client-local: it is filled by the router after resolving
// PayloadURL and is never read from or written to the wire.
type Message struct {
	RequestID    uuid.UUID      `json:"request_id"`
	Type         MessageType    `json:"message_type"`
	Subtype      MessageSubtype `json:"message_subtype"`
	PayloadDict  map[string]any `json:"payload_dict,omitempty"`
	PayloadURL   string         `json:"payload_url,omitempty"`
	PayloadBytes []byte         `json:"-"`
}

// AskKind returns the ask kind of an ASK message.
func (m Message) AskKind() (AskKind, bool) {
	if m.Type != MessageTypeAsk {
		return "", false
	}
	return ParseAskKind(string(m.Subtype))
}

func (m Message) HasPayloadReference() bool {
	return m.PayloadURL != ""
}

// Terminal reports whether m ends a read: COMPLETED, any ERROR, any REJECTION.
func (m Message) Terminal() bool {
	switch m.Type {
	case MessageTypeProgress:
		return m.Subtype == SubtypeProgressCompleted
	case MessageTypeError, MessageTypeRejection:
		return true
	case MessageTypeAsk:
		return false
	default:
		return false
	}
}

func (m Message) Validate() error {
	if m.RequestID == uuid.Nil {
		return fmt.Errorf("%w: missing request_id", ErrInvalidMessage)
	}
	if !ValidSubtype(m.Type, m.Subtype) {
		return fmt.Errorf("%w: subtype %q not valid for type %q", ErrInvalidMessage, m.Subtype, m.Type)
	}
	if m.PayloadDict != nil && m.PayloadURL != "" {
		return fmt.Errorf("%w: both payload_dict and payload_url set", ErrInvalidMessage)
	}
	return nil
}

// DecodeMessage parses and validates one control-channel frame.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, &ServerError{Err: fmt.Errorf("%w: %v", ErrInvalidMessage, err)}
	}
	if err := msg.Validate(); err != nil {
		return Message{}, &ServerError{Err: err}
	}
	return msg, nil
}

// Request is the immutable description of one analysis job.
type Request struct {
	RequestID      uuid.UUID
	Asks           []Ask
	ClientVersion  string
	DevelopmentKey string
}

// NewRequest copies asks so later caller mutations cannot reach the request.
func NewRequest(id uuid.UUID, asks []Ask, clientVersion, developmentKey string) Request {
	own := make([]Ask, len(asks))
	copy(own, asks)
	return Request{
		RequestID:      id,
		Asks:           own,
		ClientVersion:  clientVersion,
		DevelopmentKey: developmentKey,
	}
}

func (r Request) Validate() error {
	if r.RequestID == uuid.Nil {
		return fmt.Errorf("%w: request missing request_id", ErrInvalidMessage)
	}
	for i, ask := range r.Asks {
		if ask == nil {
			return fmt.Errorf("%w: asks[%d] is nil", ErrInvalidMessage, i)
		}
	}
	return nil
}

type wireRequest struct {
	RequestID      uuid.UUID         `json:"request_id"`
	Asks           []json.RawMessage `json:"asks"`
	ClientVersion  string            `json:"client_version,omitempty"`
	DevelopmentKey string            `json:"development_key,omitempty"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	wire := wireRequest{
		RequestID:      r.RequestID,
		Asks:           make([]json.RawMessage, 0, len(r.Asks)),
		ClientVersion:  r.ClientVersion,
		DevelopmentKey: r.DevelopmentKey,
	}
	for _, ask := range r.Asks {
		raw, err := MarshalAsk(ask)
		if err != nil {
			return nil, err
		}
		wire.Asks = append(wire.Asks, raw)
	}
	return json.Marshal(wire)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var wire wireRequest
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	asks := make([]Ask, 0, len(wire.Asks))
	for _, raw := range wire.Asks {
		ask, err := UnmarshalAsk(raw)
		if err != nil {
			return err
		}
		asks = append(asks, ask)
	}
	*r = Request{
		RequestID:      wire.RequestID,
		Asks:           asks,
		ClientVersion:  wire.ClientVersion,
		DevelopmentKey: wire.DevelopmentKey,
	}
	return nil
}

// ReadRequest is the body of the READ command sent after uploads finish.
type ReadRequest struct {
	RequestID uuid.UUID `json:"request_id"`
}
