package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxwire/voxwire/pkg/core"
	"github.com/voxwire/voxwire/pkg/core/events"
)

// InvocationState tracks the lifecycle of one function invocation.
type InvocationState int

const (
	// StateRequested is set when the invocation is first recorded.
	StateRequested InvocationState = iota
	// StateExecuting is set while the registered handler runs.
	StateExecuting
	// StateResolved is set once the handler finished, success or failure.
	StateResolved
)

// String returns a human-readable state name.
func (s InvocationState) String() string {
	switch s {
	case StateRequested:
		return "REQUESTED"
	case StateExecuting:
		return "EXECUTING"
	case StateResolved:
		return "RESOLVED"
	default:
		return "UNKNOWN"
	}
}

// Invocation is the record of one remote-initiated function call. Exactly
// one invocation exists per id.
type Invocation struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	State       InvocationState `json:"state"`
	Result      string          `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	ResolvedAt  time.Time       `json:"resolved_at,omitzero"`
}

// ResponseSender delivers an outbound event over the control channel. Writes
// after the channel closed return a *core.Error of type ErrChannel.
type ResponseSender interface {
	SendEvent(event events.Event) error
}

const defaultCompletedLimit = 32

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Registry resolves function names to handlers. Required.
	Registry *Registry

	// Sender emits function responses. Required.
	Sender ResponseSender

	// Context bounds handler execution. Defaults to context.Background().
	// Closing the session does not cancel in-flight handlers; their late
	// responses hit the closed-channel path instead.
	Context context.Context

	// CompletedLimit bounds the completed-invocation history kept for
	// observability. Defaults to 32.
	CompletedLimit int

	// OnResolved, if set, is called after an invocation resolves and its
	// response was emitted (or dropped on a closed channel).
	OnResolved func(Invocation)

	Logger *slog.Logger
}

// Coordinator tracks in-flight function invocations requested by the remote
// peer, executes them against the registry, and sends exactly one response
// per request back over the control channel. Invocations run concurrently
// with each other and with continued event dispatch.
type Coordinator struct {
	registry   *Registry
	sender     ResponseSender
	ctx        context.Context
	limit      int
	onResolved func(Invocation)
	logger     *slog.Logger

	mu        sync.RWMutex
	active    map[string]*Invocation
	completed []Invocation
	seen      map[string]struct{}
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("coordinator requires a registry")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("coordinator requires a sender")
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.CompletedLimit <= 0 {
		cfg.CompletedLimit = defaultCompletedLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		registry:   cfg.Registry,
		sender:     cfg.Sender,
		ctx:        cfg.Context,
		limit:      cfg.CompletedLimit,
		onResolved: cfg.OnResolved,
		logger:     cfg.Logger,
		active:     make(map[string]*Invocation),
		seen:       make(map[string]struct{}),
	}, nil
}

// Handle accepts one function-call request. Fire-and-forget: the handler
// runs on its own goroutine and result delivery is asynchronous via the
// sender. A duplicate id is logged and ignored so at most one invocation per
// id is ever executed.
func (c *Coordinator) Handle(id, name string, args json.RawMessage) {
	c.mu.Lock()
	if _, dup := c.seen[id]; dup {
		c.mu.Unlock()
		c.logger.Warn("duplicate function call ignored", "id", id, "name", name)
		return
	}
	c.seen[id] = struct{}{}
	inv := &Invocation{
		ID:          id,
		Name:        name,
		Arguments:   append(json.RawMessage(nil), args...),
		State:       StateRequested,
		RequestedAt: time.Now(),
	}
	c.active[id] = inv

	tool, registered := c.registry.Lookup(name)
	if !registered {
		c.mu.Unlock()
		err := core.NewHandlerError(name, fmt.Errorf("no handler registered"))
		c.logger.Warn("function call for unregistered name", "id", id, "name", name)
		c.resolve(id, "", err)
		return
	}
	inv.State = StateExecuting
	c.mu.Unlock()

	go func() {
		result, err := c.execute(tool, args)
		c.resolve(id, result, err)
	}()
}

func (c *Coordinator) execute(tool Tool, args json.RawMessage) (result string, err error) {
	// A panicking handler resolves like any other handler failure.
	defer func() {
		if r := recover(); r != nil {
			err = core.NewHandlerError(tool.Definition.Name, fmt.Errorf("panic: %v", r))
		}
	}()

	out, handlerErr := tool.Handler(c.ctx, args)
	if handlerErr != nil {
		return "", core.NewHandlerError(tool.Definition.Name, handlerErr)
	}
	encoded, marshalErr := json.Marshal(out)
	if marshalErr != nil {
		return "", core.NewHandlerError(tool.Definition.Name, marshalErr)
	}
	return string(encoded), nil
}

// resolve finalizes the invocation, moves it to the completed history, and
// emits the single response frame for its id.
func (c *Coordinator) resolve(id, result string, execErr error) {
	c.mu.Lock()
	inv, ok := c.active[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.active, id)
	inv.State = StateResolved
	inv.ResolvedAt = time.Now()
	if execErr != nil {
		inv.Error = execErr.Error()
	} else {
		inv.Result = result
	}
	c.completed = append(c.completed, *inv)
	if len(c.completed) > c.limit {
		c.completed = c.completed[len(c.completed)-c.limit:]
	}
	done := *inv
	c.mu.Unlock()

	var payload json.RawMessage
	if execErr != nil {
		encoded, err := json.Marshal(map[string]string{"error": execErr.Error()})
		if err != nil {
			encoded = []byte(`{"error":"handler failed"}`)
		}
		payload = encoded
	} else {
		payload = json.RawMessage(result)
	}

	if err := c.sender.SendEvent(events.NewFunctionResponse(done.ID, done.Name, payload)); err != nil {
		// Expected after teardown; the response is dropped, never retried.
		c.logger.Warn("function response not sent", "id", done.ID, "name", done.Name, "error", err)
	}

	if c.onResolved != nil {
		c.onResolved(done)
	}
}

// Active returns a snapshot of in-flight invocations.
func (c *Coordinator) Active() []Invocation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Invocation, 0, len(c.active))
	for _, inv := range c.active {
		out = append(out, *inv)
	}
	return out
}

// Completed returns a snapshot of the bounded completed history, oldest
// first.
func (c *Coordinator) Completed() []Invocation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Invocation, len(c.completed))
	copy(out, c.completed)
	return out
}
