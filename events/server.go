package events

import (
	"encoding/json"
	"fmt"
)

type ErrorEvent struct {
	ServerEventBase
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of a server-reported error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	ServerEventBase
	Session Session `json:"session"`
}

type SessionUpdatedEvent struct {
	ServerEventBase
	Session Session `json:"session"`
}

type InputAudioBufferCommittedEvent struct {
	ServerEventBase
	PreviousItemID string `json:"previous_item_id,omitempty"`
	ItemID         string `json:"item_id"`
}

type InputAudioBufferClearedEvent struct {
	ServerEventBase
}

type InputAudioBufferSpeechStartedEvent struct {
	ServerEventBase
	AudioStartMs int64  `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type InputAudioBufferSpeechStoppedEvent struct {
	ServerEventBase
	AudioEndMs int64  `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

type ConversationItemCreatedEvent struct {
	ServerEventBase
	PreviousItemID *string `json:"previous_item_id"`
	Item           Item    `json:"item"`
}

type ConversationItemTruncatedEvent struct {
	ServerEventBase
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

type ConversationItemDeletedEvent struct {
	ServerEventBase
	ItemID string `json:"item_id"`
}

type InputAudioTranscriptionCompletedEvent struct {
	ServerEventBase
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type InputAudioTranscriptionFailedEvent struct {
	ServerEventBase
	ItemID       string      `json:"item_id"`
	ContentIndex int         `json:"content_index"`
	ErrorDetail  ErrorDetail `json:"error"`
}

func (e *InputAudioTranscriptionFailedEvent) Error() string {
	return e.ErrorDetail.Error()
}

type ResponseCreatedEvent struct {
	ServerEventBase
	Response Response `json:"response"`
}

type ResponseDoneEvent struct {
	ServerEventBase
	Response Response `json:"response"`
}

type ResponseOutputItemAddedEvent struct {
	ServerEventBase
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        Item   `json:"item"`
}

type ResponseOutputItemDoneEvent struct {
	ServerEventBase
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        Item   `json:"item"`
}

type ResponseContentPartAddedEvent struct {
	ServerEventBase
	ResponseID   string      `json:"response_id"`
	ItemID       string      `json:"item_id"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Part         ContentPart `json:"part"`
}

type ResponseContentPartDoneEvent struct {
	ServerEventBase
	ResponseID   string      `json:"response_id"`
	ItemID       string      `json:"item_id"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Part         ContentPart `json:"part"`
}

type ResponseTextDeltaEvent struct {
	ServerEventBase
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseTextDoneEvent struct {
	ServerEventBase
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Text         string `json:"text"`
}

type ResponseAudioTranscriptDeltaEvent struct {
	ServerEventBase
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseAudioTranscriptDoneEvent struct {
	ServerEventBase
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type ResponseAudioDeltaEvent struct {
	ServerEventBase
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"` // base64-encoded audio
}

type ResponseAudioDoneEvent struct {
	ServerEventBase
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}

type ResponseFunctionCallArgumentsDeltaEvent struct {
	ServerEventBase
	ResponseID  string `json:"response_id"`
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
	CallID      string `json:"call_id"`
	Delta       string `json:"delta"`
}

type ResponseFunctionCallArgumentsDoneEvent struct {
	ServerEventBase
	ResponseID  string `json:"response_id"`
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
	CallID      string `json:"call_id"`
	Name        string `json:"name,omitempty"`
	Arguments   string `json:"arguments"`
}

type RateLimitsUpdatedEvent struct {
	ServerEventBase
	RateLimits []RateLimit `json:"rate_limits"`
}

func parseAs[T any](data []byte) (ServerEvent, error) {
	x, err := Parse[T](data)
	if err != nil {
		return nil, err
	}
	return any(x).(ServerEvent), nil
}

// ParseServerEvent classifies a decoded frame by its wire "type" field and
// unmarshals it into the corresponding event struct. Unknown types are an
// error: the protocol's event set is closed.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed server event: %w", err)
	}

	switch envelope.Type {
	case "error":
		return parseAs[ErrorEvent](data)
	case "session.created":
		return parseAs[SessionCreatedEvent](data)
	case "session.updated":
		return parseAs[SessionUpdatedEvent](data)
	case "input_audio_buffer.committed":
		return parseAs[InputAudioBufferCommittedEvent](data)
	case "input_audio_buffer.cleared":
		return parseAs[InputAudioBufferClearedEvent](data)
	case "input_audio_buffer.speech_started":
		return parseAs[InputAudioBufferSpeechStartedEvent](data)
	case "input_audio_buffer.speech_stopped":
		return parseAs[InputAudioBufferSpeechStoppedEvent](data)
	case "conversation.item.created":
		return parseAs[ConversationItemCreatedEvent](data)
	case "conversation.item.truncated":
		return parseAs[ConversationItemTruncatedEvent](data)
	case "conversation.item.deleted":
		return parseAs[ConversationItemDeletedEvent](data)
	case "conversation.item.input_audio_transcription.completed":
		return parseAs[InputAudioTranscriptionCompletedEvent](data)
	case "conversation.item.input_audio_transcription.failed":
		return parseAs[InputAudioTranscriptionFailedEvent](data)
	case "response.created":
		return parseAs[ResponseCreatedEvent](data)
	case "response.done":
		return parseAs[ResponseDoneEvent](data)
	case "response.output_item.added":
		return parseAs[ResponseOutputItemAddedEvent](data)
	case "response.output_item.done":
		return parseAs[ResponseOutputItemDoneEvent](data)
	case "response.content_part.added":
		return parseAs[ResponseContentPartAddedEvent](data)
	case "response.content_part.done":
		return parseAs[ResponseContentPartDoneEvent](data)
	case "response.text.delta":
		return parseAs[ResponseTextDeltaEvent](data)
	case "response.text.done":
		return parseAs[ResponseTextDoneEvent](data)
	case "response.audio_transcript.delta":
		return parseAs[ResponseAudioTranscriptDeltaEvent](data)
	case "response.audio_transcript.done":
		return parseAs[ResponseAudioTranscriptDoneEvent](data)
	case "response.audio.delta":
		return parseAs[ResponseAudioDeltaEvent](data)
	case "response.audio.done":
		return parseAs[ResponseAudioDoneEvent](data)
	case "response.function_call_arguments.delta":
		return parseAs[ResponseFunctionCallArgumentsDeltaEvent](data)
	case "response.function_call_arguments.done":
		return parseAs[ResponseFunctionCallArgumentsDoneEvent](data)
	case "rate_limits.updated":
		return parseAs[RateLimitsUpdatedEvent](data)
	default:
		return nil, fmt.Errorf("unknown server event type %q", envelope.Type)
	}
}

// IsError reports whether an event is error-classified. Error events poison
// every outstanding receive on the queue they flow through.
func IsError(e ServerEvent) bool {
	_, ok := e.(*ErrorEvent)
	return ok
}
