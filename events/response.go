package events

import "github.com/codewandler/rtclient-go/tool"

type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusCancelled  ResponseStatus = "cancelled"
	ResponseStatusIncomplete ResponseStatus = "incomplete"
	ResponseStatusFailed     ResponseStatus = "failed"
)

// Response is the server-side snapshot of one generation turn.
type Response struct {
	ID            string                 `json:"id"`
	Object        string                 `json:"object,omitempty"`
	Status        ResponseStatus         `json:"status,omitempty"`
	StatusDetails *ResponseStatusDetails `json:"status_details,omitempty"`
	Output        []Item                 `json:"output,omitempty"`
	Usage         *Usage                 `json:"usage,omitempty"`
}

type ResponseStatusDetails struct {
	Type   string       `json:"type,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

type Usage struct {
	TotalTokens       int                `json:"total_tokens"`
	InputTokens       int                `json:"input_tokens"`
	OutputTokens      int                `json:"output_tokens"`
	InputTokenDetails *InputTokenDetails `json:"input_token_details,omitempty"`
}

type InputTokenDetails struct {
	CachedTokens int `json:"cached_tokens"`
	TextTokens   int `json:"text_tokens"`
	AudioTokens  int `json:"audio_tokens"`
}

// ResponseCreateParams overrides session defaults for a single response.
type ResponseCreateParams struct {
	Modalities        []Modality  `json:"modalities,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
	Voice             string      `json:"voice,omitempty"`
	OutputAudioFormat AudioFormat `json:"output_audio_format,omitempty"`
	Tools             []tool.Tool `json:"tools,omitempty"`
	ToolChoice        tool.Choice `json:"tool_choice,omitempty"`
	Temperature       float64     `json:"temperature,omitempty"`
	MaxOutputTokens   int         `json:"max_output_tokens,omitempty"`
}

type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}
