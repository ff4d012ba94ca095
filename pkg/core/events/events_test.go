package events

import (
	"encoding/json"
	"testing"
)

func TestSessionUpdateUsesFlatToolsArray(t *testing.T) {
	frame := NewSessionUpdate([]ToolDefinition{
		{Type: "function", Name: "get_weather", Parameters: json.RawMessage(`{"type":"object"}`)},
	})
	raw, err := Encode(frame)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	var decoded struct {
		Type    string `json:"type"`
		Session struct {
			Tools []map[string]any `json:"tools"`
		} `json:"session"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if decoded.Type != TypeSessionUpdate {
		t.Errorf("type = %q", decoded.Type)
	}
	if len(decoded.Session.Tools) != 1 {
		t.Fatalf("tools length = %d, want 1", len(decoded.Session.Tools))
	}
	if decoded.Session.Tools[0]["name"] != "get_weather" {
		t.Errorf("tools[0].name = %v", decoded.Session.Tools[0]["name"])
	}
	// The flat shape puts function objects directly in the array; a nested
	// functions list must not appear.
	if _, nested := decoded.Session.Tools[0]["functions"]; nested {
		t.Error("tools[0] carries a nested functions array")
	}
}

func TestNewUserTextShape(t *testing.T) {
	raw, err := Encode(NewUserText("msg_1", "hi there"))
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	var decoded struct {
		Type string `json:"type"`
		Item struct {
			Role    string        `json:"role"`
			Content []ItemContent `json:"content"`
		} `json:"item"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if decoded.Type != TypeConversationItemCreate {
		t.Errorf("type = %q", decoded.Type)
	}
	if decoded.Item.Role != "user" {
		t.Errorf("role = %q", decoded.Item.Role)
	}
	if len(decoded.Item.Content) != 1 || decoded.Item.Content[0].Text != "hi there" {
		t.Errorf("content = %+v", decoded.Item.Content)
	}
}

func TestNewFunctionResponseShape(t *testing.T) {
	raw, err := Encode(NewFunctionResponse("a1", "get_weather", json.RawMessage(`{"ok":true}`)))
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	var decoded struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		Function struct {
			Name     string          `json:"name"`
			Response json.RawMessage `json:"response"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if decoded.Type != TypeFunctionResponse {
		t.Errorf("type = %q", decoded.Type)
	}
	if decoded.ID != "a1" {
		t.Errorf("id = %q", decoded.ID)
	}
	if decoded.Function.Name != "get_weather" {
		t.Errorf("name = %q", decoded.Function.Name)
	}
	if string(decoded.Function.Response) != `{"ok":true}` {
		t.Errorf("response = %s", decoded.Function.Response)
	}
}

func TestNewResponseCreateDefaultsToText(t *testing.T) {
	frame := NewResponseCreate()
	if len(frame.Response.Modalities) != 1 || frame.Response.Modalities[0] != "text" {
		t.Errorf("modalities = %v", frame.Response.Modalities)
	}
}
