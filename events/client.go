package events

// Client-sent commands. Every command carries a client-generated event_id
// which the server echoes back in error events for correlation.

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionUpdateParams `json:"session"`
}

func NewSessionUpdateEvent(params SessionUpdateParams) SessionUpdateEvent {
	return SessionUpdateEvent{
		BaseEvent: NewBaseEvent("session.update"),
		Session:   params,
	}
}

type InputAudioBufferAppendEvent struct {
	BaseEvent
	Audio string `json:"audio"` // base64-encoded audio in the session's input format
}

func NewInputAudioBufferAppendEvent(audio string) InputAudioBufferAppendEvent {
	return InputAudioBufferAppendEvent{
		BaseEvent: NewBaseEvent("input_audio_buffer.append"),
		Audio:     audio,
	}
}

type InputAudioBufferCommitEvent struct {
	BaseEvent
}

func NewInputAudioBufferCommitEvent() InputAudioBufferCommitEvent {
	return InputAudioBufferCommitEvent{BaseEvent: NewBaseEvent("input_audio_buffer.commit")}
}

type InputAudioBufferClearEvent struct {
	BaseEvent
}

func NewInputAudioBufferClearEvent() InputAudioBufferClearEvent {
	return InputAudioBufferClearEvent{BaseEvent: NewBaseEvent("input_audio_buffer.clear")}
}

type ConversationItemCreateEvent struct {
	BaseEvent
	PreviousItemID string `json:"previous_item_id,omitempty"`
	Item           Item   `json:"item"`
}

func NewConversationItemCreateEvent(item Item, previousItemID string) ConversationItemCreateEvent {
	return ConversationItemCreateEvent{
		BaseEvent:      NewBaseEvent("conversation.item.create"),
		PreviousItemID: previousItemID,
		Item:           item,
	}
}

type ConversationItemDeleteEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

func NewConversationItemDeleteEvent(itemID string) ConversationItemDeleteEvent {
	return ConversationItemDeleteEvent{
		BaseEvent: NewBaseEvent("conversation.item.delete"),
		ItemID:    itemID,
	}
}

type ConversationItemTruncateEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

func NewConversationItemTruncateEvent(itemID string, contentIndex int, audioEndMs int64) ConversationItemTruncateEvent {
	return ConversationItemTruncateEvent{
		BaseEvent:    NewBaseEvent("conversation.item.truncate"),
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMs:   audioEndMs,
	}
}

type ResponseCreateEvent struct {
	BaseEvent
	Response *ResponseCreateParams `json:"response,omitempty"`
}

func NewResponseCreateEvent(params *ResponseCreateParams) ResponseCreateEvent {
	return ResponseCreateEvent{
		BaseEvent: NewBaseEvent("response.create"),
		Response:  params,
	}
}

type ResponseCancelEvent struct {
	BaseEvent
	ResponseID string `json:"response_id,omitempty"`
}

func NewResponseCancelEvent(responseID string) ResponseCancelEvent {
	return ResponseCancelEvent{
		BaseEvent:  NewBaseEvent("response.cancel"),
		ResponseID: responseID,
	}
}
