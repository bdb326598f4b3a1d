package events

const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	ItemStatusInProgress = "in_progress"
	ItemStatusCompleted  = "completed"
	ItemStatusIncomplete = "incomplete"
)

const (
	ContentPartTypeInputText  = "input_text"
	ContentPartTypeInputAudio = "input_audio"
	ContentPartTypeText       = "text"
	ContentPartTypeAudio      = "audio"
)

// Item is a unit of conversation content: a message, a function call or a
// function call output. Which fields are meaningful depends on Type.
type Item struct {
	ID     string `json:"id,omitempty"`
	Object string `json:"object,omitempty"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`

	// message
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// function_call / function_call_output
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// ContentPart is one modality-typed piece of a message item.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"` // base64
	Transcript string `json:"transcript,omitempty"`
}

// UserMessage builds a user message item with a single text content part.
func UserMessage(text string) Item {
	return Item{
		Type:    ItemTypeMessage,
		Role:    RoleUser,
		Content: []ContentPart{{Type: ContentPartTypeInputText, Text: text}},
	}
}

// SystemMessage builds a system message item with a single text content part.
func SystemMessage(text string) Item {
	return Item{
		Type:    ItemTypeMessage,
		Role:    RoleSystem,
		Content: []ContentPart{{Type: ContentPartTypeInputText, Text: text}},
	}
}

// FunctionCallOutput builds the item that feeds a tool result back into the
// conversation.
func FunctionCallOutput(callID, output string) Item {
	return Item{
		Type:   ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: output,
	}
}
