package protocol

import (
	"encoding/json"
	"fmt"
)

// Command is the client->server control envelope. Message carries the
// JSON-encoded body as a string.
type Command struct {
	Action  Action `json:"action"`
	Message string `json:"message"`
}

// NewCommand encodes body into a command envelope.
func NewCommand(action Action, body any) (Command, error) {
	switch action {
	case ActionInitialize, ActionRead:
	default:
		return Command{}, fmt.Errorf("%w: unknown action %q", ErrInvalidMessage, action)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Command{}, err
	}
	return Command{Action: action, Message: string(payload)}, nil
}

// Decode unmarshals the command body into out.
func (c Command) Decode(out any) error {
	if err := json.Unmarshal([]byte(c.Message), out); err != nil {
		return fmt.Errorf("%w: %s body: %v", ErrInvalidMessage, c.Action, err)
	}
	return nil
}
