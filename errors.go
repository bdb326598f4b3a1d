package rtclient

import (
	"fmt"

	"github.com/codewandler/rtclient-go/events"
)

// RealtimeError is a server-reported protocol error surfaced as a Go error.
// Once one is observed, the session is poisoned: every pending and future
// operation on the same client returns the same error, and a new client must
// be connected to continue.
type RealtimeError struct {
	Type    string
	Code    string
	Message string
	Param   string
	EventID string
}

func (e *RealtimeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func newRealtimeError(detail events.ErrorDetail) *RealtimeError {
	return &RealtimeError{
		Type:    detail.Type,
		Code:    detail.Code,
		Message: detail.Message,
		Param:   detail.Param,
		EventID: detail.EventID,
	}
}

// asError converts an error-classified event to its error value, or returns
// nil for any other event.
func asError(msg events.ServerEvent) error {
	switch e := msg.(type) {
	case *events.ErrorEvent:
		return newRealtimeError(e.ErrorDetail)
	}
	return nil
}

// UsageError reports local misuse of the client API, such as mixing the two
// consumption modes of a function call item. It never involves the server.
type UsageError struct {
	Op     string
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// ErrClosed is returned by operations issued after Close.
var ErrClosed = &UsageError{Op: "rtclient", Reason: "client is closed"}

// ErrNotConnected is returned by operations issued before Connect.
var ErrNotConnected = &UsageError{Op: "rtclient", Reason: "not connected"}
