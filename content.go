package rtclient

import (
	"context"
	"encoding/base64"
	"io"

	"github.com/codewandler/rtclient-go/events"
	"github.com/codewandler/rtclient-go/internal/queue"
)

// Content is one modality-typed part of a message item: a *TextContent or an
// *AudioContent.
type Content interface {
	ItemID() string
	ContentIndex() int
	contentPart()
}

// TextContent streams one text content part. Next yields the incremental
// deltas exactly once; after the part is done the full text is available via
// Text.
type TextContent struct {
	itemID       string
	contentIndex int
	part         events.ContentPart
	queue        *queue.Queue
	done         bool
}

func newTextContent(added *events.ResponseContentPartAddedEvent, q *queue.Queue) *TextContent {
	return &TextContent{
		itemID:       added.ItemID,
		contentIndex: added.ContentIndex,
		part:         added.Part,
		queue:        q,
	}
}

func (t *TextContent) contentPart() {}

func (t *TextContent) ItemID() string { return t.itemID }

func (t *TextContent) ContentIndex() int { return t.contentIndex }

// Text is the accumulated text, authoritative once Next returned io.EOF.
func (t *TextContent) Text() string { return t.part.Text }

// Next yields the next text delta and returns io.EOF once the content part
// is done. The sequence is finite and not restartable.
func (t *TextContent) Next(ctx context.Context) (string, error) {
	for {
		if t.done {
			return "", io.EOF
		}
		msg, err := t.queue.Receive(ctx, func(ev events.ServerEvent) bool {
			switch e := ev.(type) {
			case *events.ResponseTextDeltaEvent:
				return e.ItemID == t.itemID && e.ContentIndex == t.contentIndex
			case *events.ResponseTextDoneEvent:
				return e.ItemID == t.itemID && e.ContentIndex == t.contentIndex
			case *events.ResponseContentPartDoneEvent:
				return e.ItemID == t.itemID && e.ContentIndex == t.contentIndex
			}
			return false
		})
		if err != nil {
			return "", err
		}
		if msg == nil {
			t.done = true
			return "", io.EOF
		}
		if err := asError(msg); err != nil {
			return "", err
		}

		switch e := msg.(type) {
		case *events.ResponseTextDeltaEvent:
			return e.Delta, nil
		case *events.ResponseTextDoneEvent:
			// content_part.done carries the same text and is the better
			// end-of-stream signal. Skip.
			continue
		case *events.ResponseContentPartDoneEvent:
			t.done = true
			t.part = e.Part
			return "", io.EOF
		}
	}
}

// AudioContent streams one audio content part as two independent sequences:
// binary audio chunks and transcript text chunks. Both share one underlying
// pull source; the terminating content_part.done event stays visible to both
// readers. Each sequence is consumed at most once.
type AudioContent struct {
	itemID         string
	contentIndex   int
	part           events.ContentPart
	queue          *queue.Queue
	content        *queue.SharedEnd
	audioDone      bool
	transcriptDone bool
}

func newAudioContent(added *events.ResponseContentPartAddedEvent, q *queue.Queue) *AudioContent {
	a := &AudioContent{
		itemID:       added.ItemID,
		contentIndex: added.ContentIndex,
		part:         added.Part,
		queue:        q,
	}
	a.content = queue.NewSharedEnd(a.receiveContent, events.IsError, func(m events.ServerEvent) bool {
		_, ok := m.(*events.ResponseContentPartDoneEvent)
		return ok
	})
	return a
}

func (a *AudioContent) contentPart() {}

func (a *AudioContent) ItemID() string { return a.itemID }

func (a *AudioContent) ContentIndex() int { return a.contentIndex }

// Transcript is the accumulated transcript, authoritative once either
// sequence returned io.EOF.
func (a *AudioContent) Transcript() string { return a.part.Transcript }

// receiveContent pulls this part's events from the session queue: audio and
// transcript deltas interleave arbitrarily across parts and are scoped here
// by (item id, content index).
func (a *AudioContent) receiveContent(ctx context.Context) (events.ServerEvent, error) {
	return a.queue.Receive(ctx, func(ev events.ServerEvent) bool {
		switch e := ev.(type) {
		case *events.ResponseAudioDeltaEvent:
			return e.ItemID == a.itemID && e.ContentIndex == a.contentIndex
		case *events.ResponseAudioDoneEvent:
			return e.ItemID == a.itemID && e.ContentIndex == a.contentIndex
		case *events.ResponseAudioTranscriptDeltaEvent:
			return e.ItemID == a.itemID && e.ContentIndex == a.contentIndex
		case *events.ResponseAudioTranscriptDoneEvent:
			return e.ItemID == a.itemID && e.ContentIndex == a.contentIndex
		case *events.ResponseContentPartDoneEvent:
			return e.ItemID == a.itemID && e.ContentIndex == a.contentIndex
		}
		return false
	})
}

// NextChunk yields the next decoded audio chunk and returns io.EOF once the
// content part is done.
func (a *AudioContent) NextChunk(ctx context.Context) ([]byte, error) {
	for {
		if a.audioDone {
			return nil, io.EOF
		}
		msg, err := a.content.Receive(ctx, func(ev events.ServerEvent) bool {
			switch ev.(type) {
			case *events.ResponseAudioDeltaEvent, *events.ResponseAudioDoneEvent:
				return true
			}
			return false
		})
		if err != nil {
			return nil, err
		}
		if msg == nil {
			a.audioDone = true
			return nil, io.EOF
		}
		if err := asError(msg); err != nil {
			return nil, err
		}

		switch e := msg.(type) {
		case *events.ResponseContentPartDoneEvent:
			a.audioDone = true
			a.part = e.Part
			return nil, io.EOF
		case *events.ResponseAudioDeltaEvent:
			return base64.StdEncoding.DecodeString(e.Delta)
		case *events.ResponseAudioDoneEvent:
			// content_part.done is the better end-of-stream signal. Skip.
			continue
		}
	}
}

// NextTranscript yields the next transcript delta and returns io.EOF once
// the content part is done.
func (a *AudioContent) NextTranscript(ctx context.Context) (string, error) {
	for {
		if a.transcriptDone {
			return "", io.EOF
		}
		msg, err := a.content.Receive(ctx, func(ev events.ServerEvent) bool {
			switch ev.(type) {
			case *events.ResponseAudioTranscriptDeltaEvent, *events.ResponseAudioTranscriptDoneEvent:
				return true
			}
			return false
		})
		if err != nil {
			return "", err
		}
		if msg == nil {
			a.transcriptDone = true
			return "", io.EOF
		}
		if err := asError(msg); err != nil {
			return "", err
		}

		switch e := msg.(type) {
		case *events.ResponseContentPartDoneEvent:
			a.transcriptDone = true
			a.part = e.Part
			return "", io.EOF
		case *events.ResponseAudioTranscriptDeltaEvent:
			return e.Delta, nil
		case *events.ResponseAudioTranscriptDoneEvent:
			continue
		}
	}
}
