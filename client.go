// Package rtclient is a client for the bidirectional realtime speech/text
// protocol spoken by the OpenAI and Azure OpenAI realtime endpoints.
//
// One websocket carries a single ordered stream of server events in which
// many logical operations interleave. The client demultiplexes that stream
// by the identity fields embedded in each event and exposes the results as
// independently consumable structured objects: committed input audio items,
// responses, output items and content parts. All iteration is pull-based;
// Next-style methods return io.EOF once a stream is finished.
package rtclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/codewandler/rtclient-go/events"
	"github.com/codewandler/rtclient-go/internal/queue"
	"github.com/codewandler/rtclient-go/internal/websocket"
)

// Transport is the byte-level connection the client runs over. Recv returns
// io.EOF once the connection is closed. Implementations must allow Send and
// Recv to be called from different goroutines.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

type wsTransport struct {
	ws *websocket.Client
}

func (t *wsTransport) Send(_ context.Context, data []byte) error {
	t.ws.WriteText(data)
	return nil
}

func (t *wsTransport) Recv(ctx context.Context) ([]byte, error) {
	return t.ws.Recv(ctx)
}

func (t *wsTransport) Close(ctx context.Context) error {
	return t.ws.Close(ctx)
}

// SessionEvent is an ambient event yielded by NextEvent: either an
// *InputAudioItem (speech started) or a *Response (generation started).
type SessionEvent interface {
	sessionEvent()
}

// Client is the session façade. It owns the transport and the event
// demultiplexer and exposes one imperative operation per protocol command.
type Client struct {
	config    *clientConfig
	logger    *slog.Logger
	transport Transport
	queue     *queue.Queue
	requestID uuid.UUID

	sessionMu    sync.Mutex
	session      *events.Session
	eventsActive bool
	closed       bool
}

func New(opts ...ClientOption) *Client {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	return &Client{
		config: config,
		logger: config.logger,
	}
}

// attach binds the client to a transport and builds the demultiplexer over
// it. Split from Connect so tests can drive the client over a fake.
func (c *Client) attach(t Transport) {
	c.transport = t
	c.queue = queue.New(c.receiveEvent, events.IsError)
}

// Connect dials the endpoint and waits for the server's session.created
// event. The resulting session snapshot is available via Session.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.requestID = uuid.New()

	wsURL, headers := c.dialTarget()
	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:         wsURL,
		DialTimeout: c.config.dialTimeout,
		Headers:     headers,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.attach(&wsTransport{ws: ws})

	msg, err := c.queue.Receive(ctx, func(m events.ServerEvent) bool {
		_, ok := m.(*events.SessionCreatedEvent)
		return ok
	})
	if err != nil {
		return err
	}
	if err := asError(msg); err != nil {
		return err
	}
	created, ok := msg.(*events.SessionCreatedEvent)
	if !ok {
		return fmt.Errorf("connection closed before session.created")
	}

	c.sessionMu.Lock()
	c.session = &created.Session
	c.sessionMu.Unlock()

	c.logger.Debug("session created", slog.String("session_id", created.Session.ID))
	return nil
}

func (c *Client) dialTarget() (string, http.Header) {
	headers := http.Header{}
	if c.config.isAzure() {
		headers.Set("api-key", c.config.apiKey)
		headers.Set("x-ms-client-request-id", c.requestID.String())
		q := url.Values{}
		q.Set("api-version", c.config.azureAPIVersion)
		q.Set("deployment", c.config.azureDeployment)
		return fmt.Sprintf("%s/openai/realtime?%s", c.config.endpoint, q.Encode()), headers
	}
	headers.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.apiKey))
	headers.Set("OpenAI-Beta", "realtime=v1")
	return fmt.Sprintf("wss://api.openai.com/v1/realtime?model=%s", url.QueryEscape(c.config.model)), headers
}

// RequestID identifies this connection attempt for server-side diagnostics.
func (c *Client) RequestID() uuid.UUID {
	return c.requestID
}

// Session returns the latest session snapshot, nil before Connect completes.
func (c *Client) Session() *events.Session {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.session
}

// receiveEvent is the demultiplexer's upstream delegate: one decoded,
// schema-validated event per call. A frame that fails validation closes the
// transport; the protocol's event set is closed and an unknown frame means
// the two sides no longer agree.
func (c *Client) receiveEvent(ctx context.Context) (events.ServerEvent, error) {
	data, err := c.transport.Recv(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := events.ParseServerEvent(data)
	if err != nil {
		c.logger.Error("invalid server event", slog.Any("err", err))
		_ = c.transport.Close(ctx)
		return nil, err
	}
	return msg, nil
}

// Send serializes and sends any protocol command.
func (c *Client) Send(ctx context.Context, evt any) error {
	if c.transport == nil {
		return ErrNotConnected
	}
	c.sessionMu.Lock()
	closed := c.closed
	c.sessionMu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, data)
}

// receiveChecked resolves the next event matching the predicate and converts
// error events and end-of-stream into errors.
func (c *Client) receiveChecked(ctx context.Context, predicate queue.Predicate) (events.ServerEvent, error) {
	msg, err := c.queue.Receive(ctx, predicate)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("connection closed")
	}
	if err := asError(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Configure applies session settings and waits for the server's updated
// snapshot.
func (c *Client) Configure(ctx context.Context, params events.SessionUpdateParams) (*events.Session, error) {
	if err := c.Send(ctx, events.NewSessionUpdateEvent(params)); err != nil {
		return nil, err
	}
	msg, err := c.receiveChecked(ctx, func(m events.ServerEvent) bool {
		_, ok := m.(*events.SessionUpdatedEvent)
		return ok
	})
	if err != nil {
		return nil, err
	}
	updated := msg.(*events.SessionUpdatedEvent)

	c.sessionMu.Lock()
	c.session = &updated.Session
	c.sessionMu.Unlock()
	return &updated.Session, nil
}

// SendAudio appends audio to the session's single input buffer. It is
// fire-and-forget: nothing is acknowledged until the buffer is committed.
func (c *Client) SendAudio(ctx context.Context, audio []byte) error {
	return c.Send(ctx, events.NewInputAudioBufferAppendEvent(base64.StdEncoding.EncodeToString(audio)))
}

// CommitAudio commits the input buffer and returns the resulting item. If
// the session has transcription configured, the item completes only once a
// transcription event arrives; the commit acknowledgement alone does not
// carry the transcript.
func (c *Client) CommitAudio(ctx context.Context) (*InputAudioItem, error) {
	if err := c.Send(ctx, events.NewInputAudioBufferCommitEvent()); err != nil {
		return nil, err
	}
	msg, err := c.receiveChecked(ctx, func(m events.ServerEvent) bool {
		_, ok := m.(*events.InputAudioBufferCommittedEvent)
		return ok
	})
	if err != nil {
		return nil, err
	}
	committed := msg.(*events.InputAudioBufferCommittedEvent)
	return newInputAudioItem(committed.ItemID, nil, c.hasTranscription(), c.queue), nil
}

// ClearAudio discards the uncommitted input buffer. Clearing an empty buffer
// is rejected by the server and surfaces as a *RealtimeError.
func (c *Client) ClearAudio(ctx context.Context) error {
	if err := c.Send(ctx, events.NewInputAudioBufferClearEvent()); err != nil {
		return err
	}
	_, err := c.receiveChecked(ctx, func(m events.ServerEvent) bool {
		_, ok := m.(*events.InputAudioBufferClearedEvent)
		return ok
	})
	return err
}

// SendItem creates a conversation item and waits for the server's
// authoritative copy. A missing id is assigned client-side so the
// acknowledgement can be correlated.
func (c *Client) SendItem(ctx context.Context, item events.Item, previousItemID string) (*events.Item, error) {
	if item.ID == "" {
		item.ID = events.NewID()
	}
	if err := c.Send(ctx, events.NewConversationItemCreateEvent(item, previousItemID)); err != nil {
		return nil, err
	}
	msg, err := c.receiveChecked(ctx, func(m events.ServerEvent) bool {
		e, ok := m.(*events.ConversationItemCreatedEvent)
		return ok && e.Item.ID == item.ID
	})
	if err != nil {
		return nil, err
	}
	created := msg.(*events.ConversationItemCreatedEvent)
	return &created.Item, nil
}

// RemoveItem deletes a conversation item by id.
func (c *Client) RemoveItem(ctx context.Context, itemID string) error {
	if err := c.Send(ctx, events.NewConversationItemDeleteEvent(itemID)); err != nil {
		return err
	}
	_, err := c.receiveChecked(ctx, func(m events.ServerEvent) bool {
		e, ok := m.(*events.ConversationItemDeletedEvent)
		return ok && e.ItemID == itemID
	})
	return err
}

// TruncateItem drops already-sent assistant audio after audioEndMs, keeping
// the conversation consistent with what the user actually heard after an
// interruption.
func (c *Client) TruncateItem(ctx context.Context, itemID string, contentIndex int, audioEndMs int64) error {
	if err := c.Send(ctx, events.NewConversationItemTruncateEvent(itemID, contentIndex, audioEndMs)); err != nil {
		return err
	}
	_, err := c.receiveChecked(ctx, func(m events.ServerEvent) bool {
		e, ok := m.(*events.ConversationItemTruncatedEvent)
		return ok && e.ItemID == itemID
	})
	return err
}

// GenerateResponse requests a generation turn.
//
// When the ambient NextEvent loop is active the started response surfaces
// there instead, and GenerateResponse returns (nil, nil) after sending the
// command; waiting here as well would consume the response.created event the
// loop is about to deliver.
func (c *Client) GenerateResponse(ctx context.Context) (*Response, error) {
	if err := c.Send(ctx, events.NewResponseCreateEvent(nil)); err != nil {
		return nil, err
	}

	c.sessionMu.Lock()
	ambient := c.eventsActive
	c.sessionMu.Unlock()
	if ambient {
		return nil, nil
	}

	msg, err := c.receiveChecked(ctx, func(m events.ServerEvent) bool {
		_, ok := m.(*events.ResponseCreatedEvent)
		return ok
	})
	if err != nil {
		return nil, err
	}
	created := msg.(*events.ResponseCreatedEvent)
	return newResponse(created.Response, c, c.queue), nil
}

// NextEvent yields the session's ambient events: an *InputAudioItem when
// server VAD detects speech, a *Response when a generation turn starts. It
// returns io.EOF once the connection has ended. The loop is single-consumer
// and switches GenerateResponse into its fire-and-forget mode.
func (c *Client) NextEvent(ctx context.Context) (SessionEvent, error) {
	if c.queue == nil {
		return nil, ErrNotConnected
	}
	c.sessionMu.Lock()
	c.eventsActive = true
	c.sessionMu.Unlock()

	msg, err := c.queue.Receive(ctx, func(m events.ServerEvent) bool {
		switch m.(type) {
		case *events.InputAudioBufferSpeechStartedEvent, *events.ResponseCreatedEvent:
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, io.EOF
	}
	if err := asError(msg); err != nil {
		return nil, err
	}

	switch e := msg.(type) {
	case *events.InputAudioBufferSpeechStartedEvent:
		start := e.AudioStartMs
		return newInputAudioItem(e.ItemID, &start, c.hasTranscription(), c.queue), nil
	case *events.ResponseCreatedEvent:
		return newResponse(e.Response, c, c.queue), nil
	}
	return nil, fmt.Errorf("unexpected event type %q", msg.EventType())
}

func (c *Client) hasTranscription() bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.session != nil && c.session.InputAudioTranscription != nil
}

// Close tears down the transport. It is idempotent.
func (c *Client) Close(ctx context.Context) error {
	c.sessionMu.Lock()
	if c.closed {
		c.sessionMu.Unlock()
		return nil
	}
	c.closed = true
	c.sessionMu.Unlock()

	if c.transport == nil {
		return nil
	}
	return c.transport.Close(ctx)
}
