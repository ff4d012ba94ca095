package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voxwire/voxwire/pkg/core"
	"github.com/voxwire/voxwire/pkg/core/events"
)

// fakeSender collects emitted events, optionally failing every send.
type fakeSender struct {
	mu      sync.Mutex
	sent    []events.Event
	sendErr error
}

func (f *fakeSender) SendEvent(event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeSender) responses() []events.FunctionResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.FunctionResponse, 0, len(f.sent))
	for _, e := range f.sent {
		if resp, ok := e.(events.FunctionResponse); ok {
			out = append(out, resp)
		}
	}
	return out
}

func newTestCoordinator(t *testing.T, registry *Registry, sender ResponseSender, resolved chan Invocation) *Coordinator {
	t.Helper()
	coord, err := NewCoordinator(CoordinatorConfig{
		Registry: registry,
		Sender:   sender,
		OnResolved: func(inv Invocation) {
			if resolved != nil {
				resolved <- inv
			}
		},
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error: %v", err)
	}
	return coord
}

func waitResolved(t *testing.T, ch chan Invocation) Invocation {
	t.Helper()
	select {
	case inv := <-ch:
		return inv
	case <-time.After(2 * time.Second):
		t.Fatal("invocation did not resolve")
		return Invocation{}
	}
}

func TestHandleExecutesAndRespondsOnce(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Make("get_weather", "",
		func(ctx context.Context, input struct {
			Location string `json:"location"`
		}) (any, error) {
			return map[string]string{"location": input.Location, "conditions": "sunny"}, nil
		},
	))
	sender := &fakeSender{}
	resolved := make(chan Invocation, 1)
	coord := newTestCoordinator(t, registry, sender, resolved)

	coord.Handle("a1", "get_weather", json.RawMessage(`{"location":"Tokyo"}`))
	inv := waitResolved(t, resolved)

	if inv.State != StateResolved {
		t.Errorf("state = %s", inv.State)
	}
	if inv.Error != "" {
		t.Errorf("unexpected error: %s", inv.Error)
	}

	responses := sender.responses()
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	if responses[0].ID != "a1" {
		t.Errorf("response id = %q", responses[0].ID)
	}
	var payload map[string]string
	if err := json.Unmarshal(responses[0].Function.Response, &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload["location"] != "Tokyo" {
		t.Errorf("payload = %v", payload)
	}
}

func TestDuplicateIDIgnored(t *testing.T) {
	var executions int
	var mu sync.Mutex
	registry := NewRegistry()
	registry.MustRegister(Make("count", "",
		func(ctx context.Context, input struct{}) (any, error) {
			mu.Lock()
			executions++
			mu.Unlock()
			return "ok", nil
		},
	))
	sender := &fakeSender{}
	resolved := make(chan Invocation, 2)
	coord := newTestCoordinator(t, registry, sender, resolved)

	coord.Handle("dup", "count", nil)
	waitResolved(t, resolved)
	// The id stays claimed even after the first invocation resolved.
	coord.Handle("dup", "count", nil)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	n := executions
	mu.Unlock()
	if n != 1 {
		t.Errorf("executions = %d, want 1", n)
	}
	if got := len(sender.responses()); got != 1 {
		t.Errorf("responses = %d, want 1", got)
	}
}

func TestUnregisteredNameResolvesWithError(t *testing.T) {
	sender := &fakeSender{}
	resolved := make(chan Invocation, 1)
	coord := newTestCoordinator(t, NewRegistry(), sender, resolved)

	coord.Handle("b1", "no_such_tool", nil)
	inv := waitResolved(t, resolved)

	if inv.Error == "" {
		t.Fatal("expected a handler error")
	}

	responses := sender.responses()
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	var payload map[string]string
	if err := json.Unmarshal(responses[0].Function.Response, &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload["error"] == "" {
		t.Errorf("payload = %v, want an error object", payload)
	}
}

func TestHandlerErrorProducesErrorPayload(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Make("failing", "",
		func(ctx context.Context, input struct{}) (any, error) {
			return nil, fmt.Errorf("backend unavailable")
		},
	))
	sender := &fakeSender{}
	resolved := make(chan Invocation, 1)
	coord := newTestCoordinator(t, registry, sender, resolved)

	coord.Handle("c1", "failing", nil)
	inv := waitResolved(t, resolved)

	if inv.Error == "" {
		t.Fatal("invocation did not record the failure")
	}

	responses := sender.responses()
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	var payload map[string]string
	if err := json.Unmarshal(responses[0].Function.Response, &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload["error"] == "" {
		t.Errorf("payload = %v", payload)
	}
}

func TestPanickingHandlerResolves(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Make("explode", "",
		func(ctx context.Context, input struct{}) (any, error) {
			panic("boom")
		},
	))
	sender := &fakeSender{}
	resolved := make(chan Invocation, 1)
	coord := newTestCoordinator(t, registry, sender, resolved)

	coord.Handle("p1", "explode", nil)
	inv := waitResolved(t, resolved)

	if inv.Error == "" {
		t.Fatal("panic was not converted into a handler error")
	}
	if len(sender.responses()) != 1 {
		t.Errorf("responses = %d, want 1", len(sender.responses()))
	}
}

func TestSendFailureIsDroppedNotRetried(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Make("quick", "",
		func(ctx context.Context, input struct{}) (any, error) {
			return "done", nil
		},
	))
	sender := &fakeSender{sendErr: core.NewChannelError("control channel closed")}
	resolved := make(chan Invocation, 1)
	coord := newTestCoordinator(t, registry, sender, resolved)

	coord.Handle("d1", "quick", nil)
	inv := waitResolved(t, resolved)

	if inv.State != StateResolved {
		t.Errorf("state = %s", inv.State)
	}
	completed := coord.Completed()
	if len(completed) != 1 || completed[0].ID != "d1" {
		t.Errorf("completed = %+v", completed)
	}
}

func TestCompletedHistoryIsBounded(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Make("quick", "",
		func(ctx context.Context, input struct{}) (any, error) {
			return "ok", nil
		},
	))
	sender := &fakeSender{}
	resolved := make(chan Invocation, 8)
	coord, err := NewCoordinator(CoordinatorConfig{
		Registry:       registry,
		Sender:         sender,
		CompletedLimit: 3,
		OnResolved:     func(inv Invocation) { resolved <- inv },
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error: %v", err)
	}

	for i := 0; i < 5; i++ {
		coord.Handle(fmt.Sprintf("id_%d", i), "quick", nil)
		waitResolved(t, resolved)
	}

	completed := coord.Completed()
	if len(completed) != 3 {
		t.Fatalf("completed = %d, want 3", len(completed))
	}
	if completed[0].ID != "id_2" || completed[2].ID != "id_4" {
		t.Errorf("history = %q..%q", completed[0].ID, completed[2].ID)
	}
}

func TestEmptyArgumentsReachHandler(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Make("no_args", "",
		func(ctx context.Context, input struct{}) (any, error) {
			return "ran", nil
		},
	))
	sender := &fakeSender{}
	resolved := make(chan Invocation, 1)
	coord := newTestCoordinator(t, registry, sender, resolved)

	coord.Handle("e1", "no_args", json.RawMessage(`{}`))
	inv := waitResolved(t, resolved)
	if inv.Error != "" {
		t.Errorf("error = %s", inv.Error)
	}
	if inv.Result != `"ran"` {
		t.Errorf("result = %q", inv.Result)
	}
}
