// Package events defines the JSON control-channel frames exchanged with the
// realtime endpoint and the decoder that classifies inbound frames.
package events

import (
	"encoding/json"
)

// Wire type discriminators.
const (
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeSessionUpdate          = "session.update"
	TypeTextDelta              = "response.text.delta"
	TypeTranscriptDone         = "response.audio_transcript.done"
	TypeFunctionCall           = "response.function.call"
	TypeFunctionResponse       = "response.function.response"
)

// Event is the interface for all control-channel events.
type Event interface {
	// EventType returns the wire type discriminator.
	EventType() string
}

// --- Outbound frames ---

// ItemContent is one content block of a conversation item.
type ItemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Item is the inner item object of a conversation.item.create frame.
type Item struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ItemContent `json:"content"`
}

// ConversationItemCreate appends a conversation item on the remote side.
type ConversationItemCreate struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

func (e ConversationItemCreate) EventType() string { return TypeConversationItemCreate }

// NewUserText builds a conversation.item.create frame carrying one user
// text block.
func NewUserText(id, text string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: Item{
			ID:   id,
			Type: "message",
			Role: "user",
			Content: []ItemContent{
				{Type: "input_text", Text: text},
			},
		},
	}
}

// ResponseCreate asks the remote peer to produce a response.
type ResponseCreate struct {
	Type     string         `json:"type"`
	Response ResponseConfig `json:"response"`
}

// ResponseConfig selects the modalities of a requested response.
type ResponseConfig struct {
	Modalities []string `json:"modalities"`
}

func (e ResponseCreate) EventType() string { return TypeResponseCreate }

// NewResponseCreate builds a response.create frame. Defaults to text when no
// modality is given.
func NewResponseCreate(modalities ...string) ResponseCreate {
	if len(modalities) == 0 {
		modalities = []string{"text"}
	}
	return ResponseCreate{
		Type:     TypeResponseCreate,
		Response: ResponseConfig{Modalities: modalities},
	}
}

// ToolDefinition is one function entry of a session.update tools array.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// SessionUpdate advertises the client's callable functions. The tools field
// is a flat array of function objects.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// SessionConfig is the inner session object of a session.update frame.
type SessionConfig struct {
	Tools []ToolDefinition `json:"tools"`
}

func (e SessionUpdate) EventType() string { return TypeSessionUpdate }

// NewSessionUpdate builds a session.update frame from tool definitions.
func NewSessionUpdate(tools []ToolDefinition) SessionUpdate {
	if tools == nil {
		tools = []ToolDefinition{}
	}
	return SessionUpdate{
		Type:    TypeSessionUpdate,
		Session: SessionConfig{Tools: tools},
	}
}

// FunctionResponse answers a previously received function call. Response is
// either a JSON-encoded result or an error object.
type FunctionResponse struct {
	Type     string           `json:"type"`
	ID       string           `json:"id"`
	Function FunctionRespBody `json:"function"`
}

// FunctionRespBody is the inner function object of a function response.
type FunctionRespBody struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

func (e FunctionResponse) EventType() string { return TypeFunctionResponse }

// NewFunctionResponse builds a response.function.response frame.
func NewFunctionResponse(id, name string, response json.RawMessage) FunctionResponse {
	return FunctionResponse{
		Type: TypeFunctionResponse,
		ID:   id,
		Function: FunctionRespBody{
			Name:     name,
			Response: response,
		},
	}
}

// --- Inbound frames ---

// TextDelta carries one streamed chunk of assistant text.
type TextDelta struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

func (e TextDelta) EventType() string { return TypeTextDelta }

// TranscriptDone carries a finalized speech-to-text transcript.
type TranscriptDone struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

func (e TranscriptDone) EventType() string { return TypeTranscriptDone }

// FunctionCall is a remote-initiated tool invocation request. Arguments is a
// JSON-encoded string; callers parse it separately so a malformed payload can
// be dropped without rejecting the frame itself.
type FunctionCall struct {
	Type     string           `json:"type"`
	ID       string           `json:"id"`
	Function FunctionCallBody `json:"function"`
}

// FunctionCallBody is the inner function object of a function call.
type FunctionCallBody struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (e FunctionCall) EventType() string { return TypeFunctionCall }

// Unknown preserves a frame with an unrecognized type discriminator. Unknown
// kinds must not break the session.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (e Unknown) EventType() string { return e.Type }
