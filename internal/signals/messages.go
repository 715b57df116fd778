package signals

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/birbparty/nestlink/sdk"
)

// Message is the wire form of an sdk.Signal
type Message struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Connectivity string    `json:"connectivity,omitempty"`
	Path         string    `json:"path,omitempty"`
	Source       string    `json:"source,omitempty"`
	At           time.Time `json:"at"`
}

// NewMessage converts a signal for publishing
func NewMessage(s sdk.Signal, source string) *Message {
	m := &Message{
		ID:     uuid.New().String(),
		Type:   s.Type.String(),
		Path:   s.Path,
		Source: source,
		At:     s.At,
	}
	if s.Type == sdk.SignalConnectivity {
		m.Connectivity = s.Connectivity.String()
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}
	return m
}

// Marshal converts the message to JSON
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMessage parses a published message
func UnmarshalMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
