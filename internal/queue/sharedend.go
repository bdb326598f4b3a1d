package queue

import (
	"context"

	"github.com/codewandler/rtclient-go/events"
)

// SharedEnd lets several concurrent readers share one upstream pull source,
// each consuming only the events its predicate selects, while a designated
// end event stays visible to every reader: the end marker is buffered but
// never removed, so a reader arriving after another has already observed it
// still terminates.
//
// Pulls are serialized through a capacity-1 channel gate acquired in request
// order, so only one reader drains the upstream at a time.
type SharedEnd struct {
	receive ReceiveFunc
	errPred Predicate
	endPred Predicate
	gate    chan struct{}
	buffer  []events.ServerEvent
}

func NewSharedEnd(receive ReceiveFunc, errPred, endPred Predicate) *SharedEnd {
	return &SharedEnd{
		receive: receive,
		errPred: errPred,
		endPred: endPred,
		gate:    make(chan struct{}, 1),
	}
}

// Receive returns the next event matching the predicate, or the end/error
// event if one arrives first. The end event is returned to every caller and
// is never consumed; error events and upstream results pass through as-is.
func (q *SharedEnd) Receive(ctx context.Context, predicate Predicate) (events.ServerEvent, error) {
	select {
	case q.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-q.gate }()

	for i, msg := range q.buffer {
		if predicate(msg) {
			q.buffer = append(q.buffer[:i], q.buffer[i+1:]...)
			return msg, nil
		}
		if q.endPred(msg) {
			return msg, nil
		}
	}

	for {
		msg, err := q.receive(ctx)
		if err != nil || msg == nil {
			return msg, err
		}
		if q.errPred(msg) || predicate(msg) {
			return msg, nil
		}
		q.buffer = append(q.buffer, msg)
		if q.endPred(msg) {
			return msg, nil
		}
	}
}
