package rtclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/rtclient-go/events"
	"github.com/codewandler/rtclient-go/tool"
)

type M = map[string]any

// fakeTransport scripts the server side: pushed events queue up for Recv,
// and handlers react to sent commands by type.
type fakeTransport struct {
	in     chan []byte
	done   chan struct{}
	once   sync.Once
	nextID atomic.Int64

	mu       sync.Mutex
	sent     []M
	handlers map[string]func(cmd M)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:       make(chan []byte, 256),
		done:     make(chan struct{}),
		handlers: map[string]func(cmd M){},
	}
}

func (f *fakeTransport) on(cmdType string, h func(cmd M)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[cmdType] = h
}

func (f *fakeTransport) push(eventType string, fields M) {
	evt := M{
		"type":     eventType,
		"event_id": fmt.Sprintf("evt_%d", f.nextID.Add(1)),
	}
	for k, v := range fields {
		evt[k] = v
	}
	data, err := json.Marshal(evt)
	if err != nil {
		panic(err)
	}
	f.in <- data
}

func (f *fakeTransport) Send(_ context.Context, data []byte) error {
	var cmd M
	if err := json.Unmarshal(data, &cmd); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, cmd)
	h := f.handlers[cmd["type"].(string)]
	f.mu.Unlock()
	if h != nil {
		h(cmd)
	}
	return nil
}

func (f *fakeTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	default:
	}
	select {
	case data := <-f.in:
		return data, nil
	case <-f.done:
		select {
		case data := <-f.in:
			return data, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close(_ context.Context) error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.sent))
	for i, cmd := range f.sent {
		types[i] = cmd["type"].(string)
	}
	return types
}

func newTestClient(f *fakeTransport) *Client {
	c := New(WithKey("test-key"), WithModel("test-model"))
	c.attach(f)
	return c
}

func TestConfigureUpdatesSession(t *testing.T) {
	f := newFakeTransport()
	f.on("session.update", func(cmd M) {
		session := cmd["session"].(M)
		require.Equal(t, "none", session["turn_detection"].(M)["type"])
		f.push("session.updated", M{"session": M{
			"id":             "sess_1",
			"model":          "test-model",
			"turn_detection": M{"type": "none"},
		}})
	})
	c := newTestClient(f)

	session, err := c.Configure(context.Background(), events.SessionUpdateParams{
		TurnDetection: &events.TurnDetection{Type: "none"},
	})
	require.NoError(t, err)
	require.Equal(t, "sess_1", session.ID)
	require.Same(t, c.Session(), session)
}

func pushTextResponse(f *fakeTransport, responseID, itemID, text string, deltas ...string) {
	f.push("response.created", M{"response": M{"id": responseID, "status": "in_progress"}})
	f.push("response.output_item.added", M{
		"response_id": responseID, "output_index": 0,
		"item": M{"id": itemID, "type": "message"},
	})
	f.push("conversation.item.created", M{
		"item": M{"id": itemID, "type": "message", "role": "assistant", "status": "in_progress"},
	})
	f.push("response.content_part.added", M{
		"response_id": responseID, "item_id": itemID, "output_index": 0, "content_index": 0,
		"part": M{"type": "text"},
	})
	for _, delta := range deltas {
		f.push("response.text.delta", M{
			"response_id": responseID, "item_id": itemID, "output_index": 0, "content_index": 0,
			"delta": delta,
		})
	}
	f.push("response.text.done", M{
		"response_id": responseID, "item_id": itemID, "output_index": 0, "content_index": 0,
		"text": text,
	})
	f.push("response.content_part.done", M{
		"response_id": responseID, "item_id": itemID, "output_index": 0, "content_index": 0,
		"part": M{"type": "text", "text": text},
	})
	f.push("response.output_item.done", M{
		"response_id": responseID, "output_index": 0,
		"item": M{
			"id": itemID, "type": "message", "role": "assistant", "status": "completed",
			"content": []M{{"type": "text", "text": text}},
		},
	})
	f.push("response.done", M{"response": M{
		"id": responseID, "status": "completed",
		"output": []M{{"id": itemID, "type": "message"}},
		"usage":  M{"total_tokens": 42, "input_tokens": 30, "output_tokens": 12},
	}})
}

func TestTextRoundtrip(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("conversation.item.create", func(cmd M) {
		f.push("conversation.item.created", M{"item": cmd["item"]})
	})
	f.on("response.create", func(cmd M) {
		pushTextResponse(f, "resp_1", "item_1", "Hello, world!", "Hello, ", "world!")
	})
	c := newTestClient(f)

	item, err := c.SendItem(ctx, events.UserMessage("Repeat exactly: Hello, world!"), "")
	require.NoError(t, err)
	require.NotEmpty(t, item.ID)

	response, err := c.GenerateResponse(ctx)
	require.NoError(t, err)
	require.Equal(t, "resp_1", response.ID())

	var texts []string
	for {
		out, err := response.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		message, ok := out.(*MessageItem)
		require.True(t, ok)
		require.Equal(t, "assistant", message.Role())

		for {
			content, err := message.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)

			text, ok := content.(*TextContent)
			require.True(t, ok)
			full := ""
			for {
				delta, err := text.Next(ctx)
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
				full += delta
			}
			require.Equal(t, "Hello, world!", full)
			require.Equal(t, "Hello, world!", text.Text())
			texts = append(texts, full)
		}
		require.Equal(t, "completed", message.Status())
	}

	require.Len(t, texts, 1)
	require.Equal(t, events.ResponseStatusCompleted, response.Status())
	require.NotNil(t, response.Usage())
	require.Equal(t, 42, response.Usage().TotalTokens)
}

func TestCommitAudioWithoutTranscription(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("input_audio_buffer.commit", func(cmd M) {
		f.push("input_audio_buffer.committed", M{"item_id": "item_audio"})
		f.push("conversation.item.created", M{"item": M{"id": "item_audio", "type": "message", "role": "user"}})
	})
	c := newTestClient(f)

	require.NoError(t, c.SendAudio(ctx, []byte{0, 0, 1, 1}))

	item, err := c.CommitAudio(ctx)
	require.NoError(t, err)
	require.Equal(t, "item_audio", item.ID())

	require.NoError(t, item.WaitForCompletion(ctx))
	require.Nil(t, item.Transcript)

	require.Equal(t, []string{"input_audio_buffer.append", "input_audio_buffer.commit"}, f.sentTypes())
}

func TestCommitAudioWithTranscription(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("session.update", func(cmd M) {
		f.push("session.updated", M{"session": M{
			"id":                        "sess_1",
			"input_audio_transcription": M{"model": "whisper-1"},
		}})
	})
	f.on("input_audio_buffer.commit", func(cmd M) {
		f.push("input_audio_buffer.committed", M{"item_id": "item_audio"})
		f.push("conversation.item.created", M{"item": M{"id": "item_audio", "type": "message", "role": "user"}})
		f.push("input_audio_buffer.speech_stopped", M{"item_id": "item_audio", "audio_end_ms": 1200})
		f.push("conversation.item.input_audio_transcription.completed", M{
			"item_id": "item_audio", "content_index": 0, "transcript": "hello there",
		})
	})
	c := newTestClient(f)

	_, err := c.Configure(ctx, events.SessionUpdateParams{
		InputAudioTranscription: &events.InputAudioTranscription{Model: "whisper-1"},
	})
	require.NoError(t, err)

	item, err := c.CommitAudio(ctx)
	require.NoError(t, err)

	require.NoError(t, item.WaitForCompletion(ctx))
	require.NotNil(t, item.Transcript)
	require.Equal(t, "hello there", *item.Transcript)
	require.NotNil(t, item.AudioEndMs)
	require.Equal(t, int64(1200), *item.AudioEndMs)
}

func TestClearAudioErrorPoisonsClient(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("input_audio_buffer.clear", func(cmd M) {
		f.push("error", M{"error": M{
			"type": "invalid_request_error", "code": "input_audio_buffer_empty",
			"message": "buffer is empty", "event_id": cmd["event_id"],
		}})
	})
	c := newTestClient(f)

	err := c.ClearAudio(ctx)
	var rtErr *RealtimeError
	require.ErrorAs(t, err, &rtErr)
	require.Equal(t, "input_audio_buffer_empty", rtErr.Code)

	// Poisoned: unrelated operations now fail with the same error.
	_, err = c.CommitAudio(ctx)
	require.ErrorAs(t, err, &rtErr)
	require.Equal(t, "input_audio_buffer_empty", rtErr.Code)
}

func TestRemoveItem(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("conversation.item.delete", func(cmd M) {
		f.push("conversation.item.deleted", M{"item_id": cmd["item_id"]})
	})
	c := newTestClient(f)

	require.NoError(t, c.RemoveItem(ctx, "item_1"))
}

func TestTruncateItem(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("conversation.item.truncate", func(cmd M) {
		f.push("conversation.item.truncated", M{
			"item_id": cmd["item_id"], "content_index": 0, "audio_end_ms": cmd["audio_end_ms"],
		})
	})
	c := newTestClient(f)

	require.NoError(t, c.TruncateItem(ctx, "item_1", 0, 1500))
}

func TestCancelResponse(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("response.create", func(cmd M) {
		f.push("response.created", M{"response": M{"id": "resp_1", "status": "in_progress"}})
	})
	f.on("response.cancel", func(cmd M) {
		require.Equal(t, "resp_1", cmd["response_id"])
		f.push("response.done", M{"response": M{"id": "resp_1", "status": "cancelled"}})
	})
	c := newTestClient(f)

	response, err := c.GenerateResponse(ctx)
	require.NoError(t, err)

	require.NoError(t, response.Cancel(ctx))
	require.Equal(t, events.ResponseStatusCancelled, response.Status())

	// Fully drained: no items were exposed and iteration stays finished.
	_, err = response.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func pushFunctionCallResponse(f *fakeTransport, responseID, itemID, name, callID, arguments string, deltas ...string) {
	f.push("response.created", M{"response": M{"id": responseID, "status": "in_progress"}})
	f.push("response.output_item.added", M{
		"response_id": responseID, "output_index": 0,
		"item": M{"id": itemID, "type": "function_call"},
	})
	f.push("conversation.item.created", M{"item": M{
		"id": itemID, "type": "function_call", "name": name, "call_id": callID,
	}})
	for _, delta := range deltas {
		f.push("response.function_call_arguments.delta", M{
			"response_id": responseID, "item_id": itemID, "output_index": 0, "call_id": callID,
			"delta": delta,
		})
	}
	f.push("response.function_call_arguments.done", M{
		"response_id": responseID, "item_id": itemID, "output_index": 0, "call_id": callID,
		"arguments": arguments,
	})
	f.push("response.output_item.done", M{
		"response_id": responseID, "output_index": 0,
		"item": M{
			"id": itemID, "type": "function_call", "status": "completed",
			"name": name, "call_id": callID, "arguments": arguments,
		},
	})
	f.push("response.done", M{"response": M{"id": responseID, "status": "completed"}})
}

func TestFunctionCallItemWait(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("response.create", func(cmd M) {
		pushFunctionCallResponse(f, "resp_1", "fc_1", "get_weather", "call_1",
			`{"location":"Paris"}`, `{"location":`, `"Paris"}`)
	})
	c := newTestClient(f)

	response, err := c.GenerateResponse(ctx)
	require.NoError(t, err)

	out, err := response.Next(ctx)
	require.NoError(t, err)
	call, ok := out.(*FunctionCallItem)
	require.True(t, ok)
	require.Equal(t, "get_weather", call.FunctionName())
	require.Equal(t, "call_1", call.CallID())

	require.NoError(t, call.WaitForCompletion(ctx))

	var args M
	require.NoError(t, json.Unmarshal([]byte(call.Arguments()), &args))
	require.Equal(t, "Paris", args["location"])

	// Modes are mutually exclusive per instance.
	_, err = call.Next(ctx)
	var usageErr *UsageError
	require.ErrorAs(t, err, &usageErr)

	_, err = response.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, events.ResponseStatusCompleted, response.Status())
}

func TestConfigureToolThenFunctionCall(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("session.update", func(cmd M) {
		session := cmd["session"].(M)
		tools := session["tools"].([]any)
		require.Len(t, tools, 1)
		fn := tools[0].(M)
		require.Equal(t, "function", fn["type"])
		require.Equal(t, "get_weather", fn["name"])
		params := fn["parameters"].(M)
		require.Equal(t, "object", params["type"])
		require.Equal(t, []any{"location"}, params["required"])
		require.Contains(t, params["properties"].(M), "location")
		f.push("session.updated", M{"session": M{"id": "sess_1", "tools": tools, "tool_choice": "auto"}})
	})
	f.on("response.create", func(cmd M) {
		pushFunctionCallResponse(f, "resp_1", "fc_1", "get_weather", "call_1",
			`{"location":"Berlin"}`, `{"location":"Berlin"}`)
	})
	c := newTestClient(f)

	session, err := c.Configure(ctx, events.SessionUpdateParams{
		Tools: []tool.Tool{tool.Function("get_weather", "Look up the current weather for a city.",
			tool.Properties{"location": {Type: "string", Description: "city name"}})},
		ToolChoice: tool.ChoiceAuto,
	})
	require.NoError(t, err)
	require.Len(t, session.Tools, 1)
	require.Equal(t, "get_weather", session.Tools[0].Name)

	response, err := c.GenerateResponse(ctx)
	require.NoError(t, err)
	out, err := response.Next(ctx)
	require.NoError(t, err)
	call := out.(*FunctionCallItem)
	require.Equal(t, session.Tools[0].Name, call.FunctionName())

	require.NoError(t, call.WaitForCompletion(ctx))
	require.JSONEq(t, `{"location":"Berlin"}`, call.Arguments())
}

func TestFunctionCallIterateThenWaitFails(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("response.create", func(cmd M) {
		f.push("response.created", M{"response": M{"id": "resp_1", "status": "in_progress"}})
		f.push("response.output_item.added", M{
			"response_id": "resp_1", "output_index": 0,
			"item": M{"id": "fc_1", "type": "function_call"},
		})
		f.push("conversation.item.created", M{"item": M{
			"id": "fc_1", "type": "function_call", "name": "noop", "call_id": "call_1",
		}})
		f.push("response.function_call_arguments.delta", M{
			"response_id": "resp_1", "item_id": "fc_1", "output_index": 0, "call_id": "call_1",
			"delta": "{}",
		})
	})
	c := newTestClient(f)

	response, err := c.GenerateResponse(ctx)
	require.NoError(t, err)

	out, err := response.Next(ctx)
	require.NoError(t, err)
	call := out.(*FunctionCallItem)

	delta, err := call.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "{}", delta)

	var usageErr *UsageError
	require.ErrorAs(t, call.WaitForCompletion(ctx), &usageErr)
}

func TestInterleavedContentParts(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	part := func(idx int, field string, value any) M {
		return M{
			"response_id": "resp_1", "item_id": "item_1", "output_index": 0, "content_index": idx,
			field: value,
		}
	}
	f.on("response.create", func(cmd M) {
		f.push("response.created", M{"response": M{"id": "resp_1", "status": "in_progress"}})
		f.push("response.output_item.added", M{
			"response_id": "resp_1", "output_index": 0,
			"item": M{"id": "item_1", "type": "message"},
		})
		f.push("conversation.item.created", M{"item": M{"id": "item_1", "type": "message", "role": "assistant"}})
		f.push("response.content_part.added", part(0, "part", M{"type": "text"}))
		f.push("response.content_part.added", part(1, "part", M{"type": "text"}))
		// Deltas of the two parts interleave arbitrarily.
		f.push("response.text.delta", part(0, "delta", "A1"))
		f.push("response.text.delta", part(1, "delta", "B1"))
		f.push("response.text.delta", part(0, "delta", "A2"))
		f.push("response.text.delta", part(1, "delta", "B2"))
		f.push("response.content_part.done", part(0, "part", M{"type": "text", "text": "A1A2"}))
		f.push("response.content_part.done", part(1, "part", M{"type": "text", "text": "B1B2"}))
		f.push("response.output_item.done", M{
			"response_id": "resp_1", "output_index": 0,
			"item": M{"id": "item_1", "type": "message", "status": "completed"},
		})
		f.push("response.done", M{"response": M{"id": "resp_1", "status": "completed"}})
	})
	c := newTestClient(f)

	response, err := c.GenerateResponse(ctx)
	require.NoError(t, err)
	out, err := response.Next(ctx)
	require.NoError(t, err)
	message := out.(*MessageItem)

	var parts []*TextContent
	drained := make(map[int][]string)
	for i := 0; i < 2; i++ {
		content, err := message.Next(ctx)
		require.NoError(t, err)
		parts = append(parts, content.(*TextContent))
	}
	// Draining part 0 to the end must not consume part 1's deltas.
	for _, text := range parts {
		for {
			delta, err := text.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			drained[text.ContentIndex()] = append(drained[text.ContentIndex()], delta)
		}
	}

	require.Equal(t, []string{"A1", "A2"}, drained[0])
	require.Equal(t, []string{"B1", "B2"}, drained[1])
	require.Equal(t, "A1A2", parts[0].Text())
	require.Equal(t, "B1B2", parts[1].Text())
}

func TestAudioContentDualStreams(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	chunk1 := []byte{1, 2, 3, 4}
	chunk2 := []byte{5, 6, 7, 8}
	part := func(field string, value any) M {
		return M{
			"response_id": "resp_1", "item_id": "item_1", "output_index": 0, "content_index": 0,
			field: value,
		}
	}
	f.on("response.create", func(cmd M) {
		f.push("response.created", M{"response": M{"id": "resp_1", "status": "in_progress"}})
		f.push("response.output_item.added", M{
			"response_id": "resp_1", "output_index": 0,
			"item": M{"id": "item_1", "type": "message"},
		})
		f.push("conversation.item.created", M{"item": M{"id": "item_1", "type": "message", "role": "assistant"}})
		f.push("response.content_part.added", part("part", M{"type": "audio"}))
		f.push("response.audio.delta", part("delta", base64.StdEncoding.EncodeToString(chunk1)))
		f.push("response.audio_transcript.delta", part("delta", "Hel"))
		f.push("response.audio.delta", part("delta", base64.StdEncoding.EncodeToString(chunk2)))
		f.push("response.audio_transcript.delta", part("delta", "lo"))
		f.push("response.audio.done", part("output_index", 0))
		f.push("response.audio_transcript.done", part("transcript", "Hello"))
		f.push("response.content_part.done", part("part", M{"type": "audio", "transcript": "Hello"}))
		f.push("response.output_item.done", M{
			"response_id": "resp_1", "output_index": 0,
			"item": M{"id": "item_1", "type": "message", "status": "completed"},
		})
		f.push("response.done", M{"response": M{"id": "resp_1", "status": "completed"}})
	})
	c := newTestClient(f)

	response, err := c.GenerateResponse(ctx)
	require.NoError(t, err)
	out, err := response.Next(ctx)
	require.NoError(t, err)
	message := out.(*MessageItem)

	content, err := message.Next(ctx)
	require.NoError(t, err)
	audio, ok := content.(*AudioContent)
	require.True(t, ok)

	var pcm []byte
	for {
		chunk, err := audio.NextChunk(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		pcm = append(pcm, chunk...)
	}
	require.Equal(t, append(append([]byte{}, chunk1...), chunk2...), pcm)

	// The transcript stream is still fully available: the end marker was
	// observed by the audio reader but not consumed.
	transcript := ""
	for {
		delta, err := audio.NextTranscript(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		transcript += delta
	}
	require.Equal(t, "Hello", transcript)
	require.Equal(t, "Hello", audio.Transcript())
}

func TestEventsLoopAndDualMode(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransport()
	f.on("response.create", func(cmd M) {
		f.push("response.created", M{"response": M{"id": "resp_ambient", "status": "in_progress"}})
	})
	c := newTestClient(f)

	f.push("input_audio_buffer.speech_started", M{"item_id": "spk_1", "audio_start_ms": 100})

	evt, err := c.NextEvent(ctx)
	require.NoError(t, err)
	item, ok := evt.(*InputAudioItem)
	require.True(t, ok)
	require.Equal(t, "spk_1", item.ID())
	require.NotNil(t, item.AudioStartMs)
	require.Equal(t, int64(100), *item.AudioStartMs)

	// With the ambient loop active, GenerateResponse only sends the
	// command; the started response surfaces through NextEvent.
	response, err := c.GenerateResponse(ctx)
	require.NoError(t, err)
	require.Nil(t, response)

	evt, err = c.NextEvent(ctx)
	require.NoError(t, err)
	ambient, ok := evt.(*Response)
	require.True(t, ok)
	require.Equal(t, "resp_ambient", ambient.ID())
}

func TestNextEventEndOfStream(t *testing.T) {
	f := newFakeTransport()
	c := newTestClient(f)
	require.NoError(t, f.Close(context.Background()))

	_, err := c.NextEvent(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestOperationsBeforeConnect(t *testing.T) {
	c := New(WithKey("test-key"), WithModel("test-model"))

	_, err := c.Configure(context.Background(), events.SessionUpdateParams{})
	require.ErrorIs(t, err, ErrNotConnected)

	require.ErrorIs(t, c.SendAudio(context.Background(), []byte{0}), ErrNotConnected)

	_, err = c.NextEvent(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseIdempotent(t *testing.T) {
	f := newFakeTransport()
	c := newTestClient(f)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	require.ErrorIs(t, c.SendAudio(context.Background(), []byte{0}), ErrClosed)
}

func TestInvalidServerEventClosesTransport(t *testing.T) {
	f := newFakeTransport()
	c := newTestClient(f)
	f.push("conversation.renamed", M{})

	_, err := c.queue.Receive(context.Background(), func(events.ServerEvent) bool { return true })
	require.Error(t, err)

	select {
	case <-f.done:
	default:
		t.Fatal("transport should be closed after an invalid event")
	}
}
