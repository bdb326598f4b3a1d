package rtclient

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/codewandler/rtclient-go/events"
	"github.com/codewandler/rtclient-go/internal/queue"
)

// OutputItem is one item of a response: a *MessageItem or a
// *FunctionCallItem.
type OutputItem interface {
	ID() string
	ResponseID() string
	// PreviousItemID is the id of the item this one follows in the
	// conversation, nil for the first.
	PreviousItemID() *string
	outputItem()
}

// Response is one generation turn. Items are yielded by Next as they stream
// in; the status, output snapshot and usage counters are final once Next has
// returned io.EOF.
type Response struct {
	client   *Client
	queue    *queue.Queue
	response events.Response
	done     bool
}

func newResponse(response events.Response, client *Client, q *queue.Queue) *Response {
	return &Response{
		client:   client,
		queue:    q,
		response: response,
	}
}

func (r *Response) sessionEvent() {}

func (r *Response) ID() string { return r.response.ID }

func (r *Response) Status() events.ResponseStatus { return r.response.Status }

func (r *Response) StatusDetails() *events.ResponseStatusDetails { return r.response.StatusDetails }

// Output is the server's item snapshot, authoritative after the response is
// done.
func (r *Response) Output() []events.Item { return r.response.Output }

// Usage is nil until the response is done.
func (r *Response) Usage() *events.Usage { return r.response.Usage }

// Next yields the response's output items in emission order and returns
// io.EOF once the response is done. An item is only yielded after its
// conversation.item.created event confirmed the authoritative initial
// snapshot.
func (r *Response) Next(ctx context.Context) (OutputItem, error) {
	if r.done {
		return nil, io.EOF
	}
	msg, err := r.queue.Receive(ctx, func(m events.ServerEvent) bool {
		switch e := m.(type) {
		case *events.ResponseDoneEvent:
			return e.Response.ID == r.response.ID
		case *events.ResponseOutputItemAddedEvent:
			return e.ResponseID == r.response.ID
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		r.done = true
		return nil, io.EOF
	}
	if err := asError(msg); err != nil {
		return nil, err
	}

	switch e := msg.(type) {
	case *events.ResponseDoneEvent:
		r.done = true
		r.response = e.Response
		return nil, io.EOF
	case *events.ResponseOutputItemAddedEvent:
		return r.awaitItemCreated(ctx, e.Item.ID)
	}
	return nil, fmt.Errorf("unexpected event type %q", msg.EventType())
}

// awaitItemCreated resolves the conversation.item.created event that carries
// the added item's initial content.
func (r *Response) awaitItemCreated(ctx context.Context, itemID string) (OutputItem, error) {
	msg, err := r.queue.Receive(ctx, func(m events.ServerEvent) bool {
		e, ok := m.(*events.ConversationItemCreatedEvent)
		return ok && e.Item.ID == itemID
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		r.done = true
		return nil, io.EOF
	}
	if err := asError(msg); err != nil {
		return nil, err
	}
	created := msg.(*events.ConversationItemCreatedEvent)

	switch created.Item.Type {
	case events.ItemTypeMessage:
		return newMessageItem(r.response.ID, created.Item, created.PreviousItemID, r.queue), nil
	case events.ItemTypeFunctionCall:
		return newFunctionCallItem(r.response.ID, created.Item, created.PreviousItemID, r.queue), nil
	}
	return nil, fmt.Errorf("unexpected item type %q", created.Item.Type)
}

// Cancel requests cancellation and drains the remaining events of this
// response so nothing stays buffered in the demultiplexer. The final status
// may still be completed if the server finished before the cancel arrived.
func (r *Response) Cancel(ctx context.Context) error {
	if err := r.client.Send(ctx, events.NewResponseCancelEvent(r.response.ID)); err != nil {
		return err
	}
	for {
		_, err := r.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// MessageItem is a streamed message output item. Next yields its content
// parts in index order.
type MessageItem struct {
	responseID string
	previousID *string
	item       events.Item
	queue      *queue.Queue
	done       bool
}

func newMessageItem(responseID string, item events.Item, previousID *string, q *queue.Queue) *MessageItem {
	return &MessageItem{
		responseID: responseID,
		previousID: previousID,
		item:       item,
		queue:      q,
	}
}

func (m *MessageItem) outputItem() {}

func (m *MessageItem) ID() string { return m.item.ID }

func (m *MessageItem) ResponseID() string { return m.responseID }

func (m *MessageItem) PreviousItemID() *string { return m.previousID }

func (m *MessageItem) Role() string { return m.item.Role }

func (m *MessageItem) Status() string { return m.item.Status }

// Item is the server's item snapshot, authoritative after Next returned
// io.EOF.
func (m *MessageItem) Item() events.Item { return m.item }

// Next yields the item's content parts and returns io.EOF after
// output_item.done supplied the final item snapshot.
func (m *MessageItem) Next(ctx context.Context) (Content, error) {
	if m.done {
		return nil, io.EOF
	}
	msg, err := m.queue.Receive(ctx, func(ev events.ServerEvent) bool {
		switch e := ev.(type) {
		case *events.ResponseContentPartAddedEvent:
			return e.ItemID == m.item.ID
		case *events.ResponseOutputItemDoneEvent:
			return e.Item.ID == m.item.ID
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		m.done = true
		return nil, io.EOF
	}
	if err := asError(msg); err != nil {
		return nil, err
	}

	switch e := msg.(type) {
	case *events.ResponseOutputItemDoneEvent:
		m.done = true
		m.item = e.Item
		return nil, io.EOF
	case *events.ResponseContentPartAddedEvent:
		switch e.Part.Type {
		case events.ContentPartTypeText:
			return newTextContent(e, m.queue), nil
		case events.ContentPartTypeAudio:
			return newAudioContent(e, m.queue), nil
		}
		return nil, fmt.Errorf("unexpected content part type %q", e.Part.Type)
	}
	return nil, fmt.Errorf("unexpected event type %q", msg.EventType())
}

// FunctionCallItem is a streamed function call. Its argument chunks can be
// consumed either incrementally with Next or in one blocking
// WaitForCompletion; the two modes are mutually exclusive per instance.
type FunctionCallItem struct {
	responseID string
	previousID *string
	queue      *queue.Queue

	mu       sync.Mutex
	item     events.Item
	awaited  bool
	iterated bool
	done     bool
}

func newFunctionCallItem(responseID string, item events.Item, previousID *string, q *queue.Queue) *FunctionCallItem {
	return &FunctionCallItem{
		responseID: responseID,
		previousID: previousID,
		item:       item,
		queue:      q,
	}
}

func (f *FunctionCallItem) outputItem() {}

func (f *FunctionCallItem) ID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.item.ID
}

func (f *FunctionCallItem) ResponseID() string { return f.responseID }

func (f *FunctionCallItem) PreviousItemID() *string { return f.previousID }

func (f *FunctionCallItem) FunctionName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.item.Name
}

func (f *FunctionCallItem) CallID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.item.CallID
}

// Arguments is the accumulated argument string, complete once the item is
// done.
func (f *FunctionCallItem) Arguments() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.item.Arguments
}

// Next yields incremental argument chunks and returns io.EOF once the item
// is done. It fails with a *UsageError after WaitForCompletion has been
// called.
func (f *FunctionCallItem) Next(ctx context.Context) (string, error) {
	f.mu.Lock()
	if f.awaited {
		f.mu.Unlock()
		return "", &UsageError{Op: "FunctionCallItem.Next", Reason: "cannot iterate after waiting for completion"}
	}
	f.iterated = true
	f.mu.Unlock()
	return f.nextDelta(ctx)
}

// WaitForCompletion drains the argument chunks and returns once the final
// arguments are available. It fails with a *UsageError after Next has been
// called.
func (f *FunctionCallItem) WaitForCompletion(ctx context.Context) error {
	f.mu.Lock()
	if f.iterated {
		f.mu.Unlock()
		return &UsageError{Op: "FunctionCallItem.WaitForCompletion", Reason: "cannot wait for completion after iterating"}
	}
	f.awaited = true
	f.mu.Unlock()

	for {
		_, err := f.nextDelta(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (f *FunctionCallItem) nextDelta(ctx context.Context) (string, error) {
	for {
		f.mu.Lock()
		if f.done {
			f.mu.Unlock()
			return "", io.EOF
		}
		id := f.item.ID
		f.mu.Unlock()

		msg, err := f.queue.Receive(ctx, func(ev events.ServerEvent) bool {
			switch e := ev.(type) {
			case *events.ResponseFunctionCallArgumentsDeltaEvent:
				return e.ItemID == id
			case *events.ResponseFunctionCallArgumentsDoneEvent:
				return e.ItemID == id
			case *events.ResponseOutputItemDoneEvent:
				return e.Item.ID == id
			}
			return false
		})
		if err != nil {
			return "", err
		}
		if msg == nil {
			f.mu.Lock()
			f.done = true
			f.mu.Unlock()
			return "", io.EOF
		}
		if err := asError(msg); err != nil {
			return "", err
		}

		switch e := msg.(type) {
		case *events.ResponseOutputItemDoneEvent:
			f.mu.Lock()
			f.done = true
			f.item = e.Item
			f.mu.Unlock()
			return "", io.EOF
		case *events.ResponseFunctionCallArgumentsDeltaEvent:
			return e.Delta, nil
		case *events.ResponseFunctionCallArgumentsDoneEvent:
			// The final snapshot arrives with output_item.done, which
			// also ends the iteration. Skip.
			continue
		}
	}
}
