package rtclient

import (
	"context"

	"github.com/codewandler/rtclient-go/events"
	"github.com/codewandler/rtclient-go/internal/queue"
)

// InputAudioItem is one committed span of user audio. AudioStartMs is only
// set when the item originated from a VAD speech-start event; AudioEndMs and
// Transcript are filled in by WaitForCompletion as the matching events
// arrive. Transcript stays nil unless the session had transcription
// configured when the item was created.
type InputAudioItem struct {
	id               string
	AudioStartMs     *int64
	AudioEndMs       *int64
	Transcript       *string
	hasTranscription bool
	queue            *queue.Queue
}

func newInputAudioItem(id string, audioStartMs *int64, hasTranscription bool, q *queue.Queue) *InputAudioItem {
	return &InputAudioItem{
		id:               id,
		AudioStartMs:     audioStartMs,
		hasTranscription: hasTranscription,
		queue:            q,
	}
}

func (i *InputAudioItem) sessionEvent() {}

func (i *InputAudioItem) ID() string { return i.id }

// WaitForCompletion blocks until the item is final. Without transcription
// the commit acknowledgement chain ends at speech-stop or item creation;
// with transcription it ends when the transcription completes or fails.
func (i *InputAudioItem) WaitForCompletion(ctx context.Context) error {
	for {
		msg, err := i.queue.Receive(ctx, func(m events.ServerEvent) bool {
			switch e := m.(type) {
			case *events.InputAudioBufferSpeechStoppedEvent:
				return e.ItemID == i.id
			case *events.InputAudioTranscriptionCompletedEvent:
				return e.ItemID == i.id
			case *events.InputAudioTranscriptionFailedEvent:
				return e.ItemID == i.id
			case *events.ConversationItemCreatedEvent:
				return e.Item.ID == i.id
			}
			return false
		})
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		if err := asError(msg); err != nil {
			return err
		}

		switch e := msg.(type) {
		case *events.InputAudioBufferSpeechStoppedEvent:
			end := e.AudioEndMs
			i.AudioEndMs = &end
			if !i.hasTranscription {
				return nil
			}
		case *events.ConversationItemCreatedEvent:
			if !i.hasTranscription {
				return nil
			}
		case *events.InputAudioTranscriptionCompletedEvent:
			transcript := e.Transcript
			i.Transcript = &transcript
			return nil
		case *events.InputAudioTranscriptionFailedEvent:
			return newRealtimeError(e.ErrorDetail)
		}
	}
}
