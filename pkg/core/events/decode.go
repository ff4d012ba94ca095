package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxwire/voxwire/pkg/core"
)

// Decode parses one inbound control-channel frame and classifies it by its
// type discriminator. A frame with an unrecognized type decodes to Unknown.
// A malformed frame, or a recognized frame missing a required field, returns
// a *core.Error of type ErrParse.
func Decode(raw []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, core.NewParseError("decode frame envelope", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, core.NewParseError("frame missing type", nil)
	}

	switch typ {
	case TypeTextDelta:
		var frame struct {
			Delta *string `json:"delta"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, core.NewParseError("decode "+TypeTextDelta, err)
		}
		if frame.Delta == nil {
			return nil, core.NewParseError("text delta missing delta", nil)
		}
		return TextDelta{Type: typ, Delta: *frame.Delta}, nil
	case TypeTranscriptDone:
		var frame struct {
			Transcript *string `json:"transcript"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, core.NewParseError("decode "+TypeTranscriptDone, err)
		}
		if frame.Transcript == nil {
			return nil, core.NewParseError("transcript done missing transcript", nil)
		}
		return TranscriptDone{Type: typ, Transcript: *frame.Transcript}, nil
	case TypeFunctionCall:
		var call FunctionCall
		if err := json.Unmarshal(raw, &call); err != nil {
			return nil, core.NewParseError("decode "+TypeFunctionCall, err)
		}
		if strings.TrimSpace(call.ID) == "" {
			return nil, core.NewParseError("function call missing id", nil)
		}
		if strings.TrimSpace(call.Function.Name) == "" {
			return nil, core.NewParseError(fmt.Sprintf("function call %s missing name", call.ID), nil)
		}
		return call, nil
	default:
		return Unknown{
			Type: typ,
			Raw:  append(json.RawMessage(nil), raw...),
		}, nil
	}
}

// Encode marshals an outbound event to one wire frame.
func Encode(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, core.NewParseError("encode "+event.EventType(), err)
	}
	return data, nil
}
