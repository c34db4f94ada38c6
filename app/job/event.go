package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Message is a named message emitted by a worker. Payload is kept as raw json and never
// interpreted by the supervisor.
type Message struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventType distinguishes worker messages from the exit notification
type EventType int

// event types
const (
	EventMessage EventType = iota
	EventExit
)

// Event is delivered by a running handle to the supervisor's sink. Events of one handle arrive
// in emission order and the EventExit one is always the last.
type Event struct {
	Kind     Kind
	HandleID string
	Type     EventType
	Message  Message
	ExitCode int
	Err      error // wait error, informational only
}

// Emit writes a single message in worker wire format (one json object per line).
// Workers use it to talk back to the supervisor over stdout.
func Emit(w io.Writer, name string, payload any) error {
	if name == "" {
		return errors.New("empty message name")
	}
	msg := Message{Name: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("can't marshal payload for %s: %w", name, err)
		}
		msg.Payload = data
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("can't marshal message %s: %w", name, err)
	}
	if _, err = w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("can't write message %s: %w", name, err)
	}
	return nil
}

// Decode parses one line of worker output
func Decode(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Message{}, errors.New("empty line")
	}
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{}, fmt.Errorf("can't decode worker message: %w", err)
	}
	if msg.Name == "" {
		return Message{}, errors.New("worker message without name")
	}
	return msg, nil
}
