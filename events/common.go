package events

import "encoding/json"
import nanoid "github.com/matoous/go-nanoid/v2"

// BaseEvent carries the fields shared by every client-sent command.
type BaseEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

func NewBaseEvent(eventType string) BaseEvent {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return BaseEvent{
		EventID: id,
		Type:    eventType,
	}
}

// NewID returns a fresh identifier usable for conversation items.
func NewID() string {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return id
}

// ServerEvent is implemented by every event the server can emit.
type ServerEvent interface {
	EventType() string
	ID() string
}

// ServerEventBase carries the fields shared by every server event.
type ServerEventBase struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

func (e ServerEventBase) EventType() string { return e.Type }

// ID returns the server-assigned event id.
func (e ServerEventBase) ID() string { return e.EventID }

func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}
