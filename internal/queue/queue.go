// Package queue turns one ordered stream of server events into many
// independently awaitable receives, each addressed by its own predicate.
package queue

import (
	"context"
	"io"
	"sync"

	"github.com/codewandler/rtclient-go/events"
)

// Predicate selects the events a receiver is interested in.
type Predicate func(events.ServerEvent) bool

// ReceiveFunc pulls the next event from the upstream source. It returns
// io.EOF once the upstream is exhausted.
type ReceiveFunc func(ctx context.Context) (events.ServerEvent, error)

type waiter struct {
	predicate Predicate
	ch        chan result
}

type result struct {
	msg events.ServerEvent
	err error
}

// Queue demultiplexes one ordered event stream across concurrent receivers.
//
// Events already pulled but not yet claimed are buffered in arrival order.
// When several pending receives could match the same event, the one
// registered first wins. Error-classified events are broadcast to every
// pending receive and poison the queue permanently: all later receives
// return the same error event without touching the upstream again.
//
// Unmatched events are buffered without bound. Control-plane volume is
// small and high-volume deltas always have an active reader, so no
// eviction policy is applied.
type Queue struct {
	receive  ReceiveFunc
	errPred  Predicate
	mu       sync.Mutex
	buffered []events.ServerEvent
	waiters  []*waiter
	polling  bool
	err      events.ServerEvent // poisoning error event, sticky once set
	ended    bool
}

// New builds a queue over the given upstream. errPred classifies the events
// that terminate every outstanding and future receive.
func New(receive ReceiveFunc, errPred Predicate) *Queue {
	return &Queue{receive: receive, errPred: errPred}
}

// Len reports the number of buffered, unclaimed events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffered)
}

// Receive resolves with the next event matching the predicate. It returns
// (nil, nil) when the upstream has ended, the poisoning error event once the
// queue is poisoned, or ctx.Err() if the context is done first.
func (q *Queue) Receive(ctx context.Context, predicate Predicate) (events.ServerEvent, error) {
	q.mu.Lock()

	if q.err != nil {
		defer q.mu.Unlock()
		return q.err, nil
	}

	for i, msg := range q.buffered {
		if predicate(msg) {
			q.buffered = append(q.buffered[:i], q.buffered[i+1:]...)
			q.mu.Unlock()
			return msg, nil
		}
	}

	if q.ended {
		q.mu.Unlock()
		return nil, nil
	}

	w := &waiter{predicate: predicate, ch: make(chan result, 1)}
	q.waiters = append(q.waiters, w)
	if !q.polling {
		q.polling = true
		// The pump outlives the receive that started it: cancelling one
		// receiver must not fail the others, so the upstream pull is not
		// bound to any caller's context. The pump exits on upstream EOF.
		go q.poll(context.Background())
	}
	q.mu.Unlock()

	select {
	case r := <-w.ch:
		return r.msg, r.err
	case <-ctx.Done():
		q.remove(w)
		// The poll loop may have resolved the waiter while we were
		// cancelling; prefer the delivered result over ctx.Err().
		select {
		case r := <-w.ch:
			return r.msg, r.err
		default:
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) remove(w *waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, x := range q.waiters {
		if x == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// poll drains the upstream while receivers are pending. It stops once no
// receiver remains so nothing accumulates while nobody is listening.
func (q *Queue) poll(ctx context.Context) {
	for {
		msg, err := q.receive(ctx)

		q.mu.Lock()
		switch {
		case err == io.EOF || (err == nil && msg == nil):
			q.ended = true
			q.notifyAll(result{})
			q.polling = false
			q.mu.Unlock()
			return
		case err != nil:
			q.notifyAll(result{err: err})
			q.polling = false
			q.mu.Unlock()
			return
		case q.errPred(msg):
			q.err = msg
			q.notifyAll(result{msg: msg})
			q.polling = false
			q.mu.Unlock()
			return
		}

		delivered := false
		for i, w := range q.waiters {
			if w.predicate(msg) {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				w.ch <- result{msg: msg}
				delivered = true
				break
			}
		}
		if !delivered {
			q.buffered = append(q.buffered, msg)
		}

		if len(q.waiters) == 0 {
			q.polling = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
	}
}

// notifyAll resolves every pending waiter with the same result. Callers must
// hold q.mu.
func (q *Queue) notifyAll(r result) {
	for _, w := range q.waiters {
		w.ch <- r
	}
	q.waiters = nil
}
