// Package session drives one realtime conversation: the transport state
// machine, the inbound event dispatcher, and the reconciliation of streamed
// events into conversation and invocation state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/voxwire/voxwire/pkg/core"
	"github.com/voxwire/voxwire/pkg/core/conversation"
	"github.com/voxwire/voxwire/pkg/core/events"
	"github.com/voxwire/voxwire/pkg/core/tools"
	"github.com/voxwire/voxwire/pkg/core/transport"
)

// State represents the current transport-session state.
type State int

const (
	// StateIdle is the initial state before Connect.
	StateIdle State = iota
	// StateNegotiating covers local description creation and the
	// offer/answer exchange.
	StateNegotiating
	// StateConnecting waits for the control channel to report ready.
	StateConnecting
	// StateOpen accepts outbound application messages.
	StateOpen
	// StateClosed is reached by explicit teardown or terminal disconnect.
	StateClosed
	// StateError absorbs any failed establishment step. The caller must
	// restart the whole sequence; there is no automatic retry.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateClosed || s == StateError
}

// Update is the interface for session updates delivered to the consumer.
type Update interface {
	// UpdateType returns the update kind for display and logging.
	UpdateType() string
}

// StateUpdate reports a state transition.
type StateUpdate struct {
	From State
	To   State
}

func (u StateUpdate) UpdateType() string { return "state" }

// TextDeltaUpdate reports one streamed assistant text chunk.
type TextDeltaUpdate struct {
	Delta string
}

func (u TextDeltaUpdate) UpdateType() string { return "text_delta" }

// TranscriptUpdate reports one finalized speech transcript.
type TranscriptUpdate struct {
	Transcript string
}

func (u TranscriptUpdate) UpdateType() string { return "transcript" }

// InvocationUpdate reports a resolved function invocation.
type InvocationUpdate struct {
	Invocation tools.Invocation
}

func (u InvocationUpdate) UpdateType() string { return "invocation" }

const defaultUpdateBuffer = 256

// Config configures a Session.
type Config struct {
	// Transport establishes and owns the control channel. Required.
	Transport transport.Transport

	// Registry holds the callable functions advertised to the remote peer.
	// Defaults to an empty registry.
	Registry *tools.Registry

	// Modalities requested for remote responses. Defaults to text and
	// audio.
	Modalities []string

	// UpdateBuffer sizes the update channel. Defaults to 256; updates to a
	// full channel are dropped rather than blocking dispatch.
	UpdateBuffer int

	Logger *slog.Logger
}

// Session is a single-peer realtime conversation. One session per connect
// attempt; no state survives Close.
type Session struct {
	transport  transport.Transport
	registry   *tools.Registry
	modalities []string
	logger     *slog.Logger

	conv        *conversation.Log
	transcripts *conversation.Transcripts
	coord       *tools.Coordinator

	mu      sync.RWMutex
	state   State
	lastErr error

	updates chan Update
	opened  chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	doneOnce  sync.Once
	closed    atomic.Bool
}

// New creates a session over the given transport.
func New(cfg Config) (*Session, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session requires a transport")
	}
	if cfg.Registry == nil {
		cfg.Registry = tools.NewRegistry()
	}
	if len(cfg.Modalities) == 0 {
		cfg.Modalities = []string{"text", "audio"}
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = defaultUpdateBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		transport:   cfg.Transport,
		registry:    cfg.Registry,
		modalities:  cfg.Modalities,
		logger:      cfg.Logger,
		conv:        conversation.NewLog(),
		transcripts: conversation.NewTranscripts(),
		state:       StateIdle,
		updates:     make(chan Update, cfg.UpdateBuffer),
		opened:      make(chan struct{}),
		done:        make(chan struct{}),
	}

	coord, err := tools.NewCoordinator(tools.CoordinatorConfig{
		Registry: cfg.Registry,
		Sender:   sender{s},
		Logger:   cfg.Logger,
		OnResolved: func(inv tools.Invocation) {
			s.emit(InvocationUpdate{Invocation: inv})
		},
	})
	if err != nil {
		return nil, err
	}
	s.coord = coord
	return s, nil
}

// sender routes coordinator responses through the session's outbound path.
type sender struct{ s *Session }

func (w sender) SendEvent(event events.Event) error {
	return w.s.sendEvent(event)
}

// Connect runs session establishment: local description, offer/answer
// exchange, remote description applied. It returns once the control channel
// is connecting; Opened is closed when the channel reports ready. Any
// failing step moves the session to its error state.
func (s *Session) Connect(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return core.NewInputError("session already started (state " + state.String() + ")")
	}
	s.mu.Unlock()

	s.transition(StateNegotiating)

	err := s.transport.Open(ctx, token, transport.Handlers{
		OnOpen:    s.onOpen,
		OnMessage: s.onMessage,
		OnClose:   s.onClose,
	})
	if err != nil {
		s.fail(err)
		return err
	}

	s.transition(StateConnecting)
	return nil
}

func (s *Session) onOpen() {
	s.transition(StateOpen)

	// Advertise the local function registry before anything else goes out.
	if s.registry.Len() > 0 {
		if err := s.sendEvent(events.NewSessionUpdate(s.registry.Definitions())); err != nil {
			s.logger.Warn("tool advertisement not sent", "error", err)
		}
	}

	close(s.opened)
}

// onMessage is the single dispatch entry point for inbound frames. Dispatch
// is synchronous per frame, strictly in arrival order. A malformed frame is
// logged and dropped; the session stays open and its state is unchanged.
func (s *Session) onMessage(raw []byte) {
	event, err := events.Decode(raw)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	switch e := event.(type) {
	case events.TextDelta:
		s.conv.AppendAssistantDelta(e.Delta)
		s.emit(TextDeltaUpdate{Delta: e.Delta})
	case events.TranscriptDone:
		s.transcripts.Add(e.Transcript)
		s.conv.Break()
		s.emit(TranscriptUpdate{Transcript: e.Transcript})
	case events.FunctionCall:
		args := strings.TrimSpace(e.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			s.logger.Warn("dropping function call with malformed arguments",
				"id", e.ID, "name", e.Function.Name)
			return
		}
		s.conv.Break()
		s.coord.Handle(e.ID, e.Function.Name, json.RawMessage(args))
	case events.Unknown:
		s.logger.Debug("ignoring unknown event", "type", e.Type)
		s.conv.Break()
	}
}

func (s *Session) onClose(err error) {
	if err != nil {
		s.logger.Warn("control channel closed", "error", err)
	}
	s.release()
	s.transition(StateClosed)
	s.doneOnce.Do(func() { close(s.done) })
}

// SendUserText appends a user message and asks the remote peer for a
// response. Only valid while the session is open.
func (s *Session) SendUserText(text string) error {
	if s.CurrentState() != StateOpen {
		return core.NewChannelError("session is not open")
	}
	id := s.conv.AddUser(text)
	if err := s.sendEvent(events.NewUserText(id, text)); err != nil {
		return err
	}
	return s.sendEvent(events.NewResponseCreate(s.modalities...))
}

// RequestResponse asks the remote peer for a response with the given
// modalities, defaulting to the session's configured ones.
func (s *Session) RequestResponse(modalities ...string) error {
	if s.CurrentState() != StateOpen {
		return core.NewChannelError("session is not open")
	}
	if len(modalities) == 0 {
		modalities = s.modalities
	}
	return s.sendEvent(events.NewResponseCreate(modalities...))
}

// sendEvent serializes at the transport; each frame write is atomic.
func (s *Session) sendEvent(event events.Event) error {
	payload, err := events.Encode(event)
	if err != nil {
		return err
	}
	return s.transport.Send(payload)
}

// Close tears the session down: the transport releases its held resources
// exactly once. In-flight function handlers run to completion; their late
// responses are dropped on the closed channel.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		closeErr = s.transport.Close()
		s.transition(StateClosed)
		s.doneOnce.Do(func() { close(s.done) })
	})
	return closeErr
}

func (s *Session) release() {
	if s.closed.CompareAndSwap(false, true) {
		_ = s.transport.Close()
	}
}

// transition only moves forward. The transport may report the channel ready
// before Open returns; a late connecting step must not regress an open
// session.
func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	if from.terminal() || to <= from {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	s.logger.Debug("session state", "from", from.String(), "to", to.String())
	s.emit(StateUpdate{From: from, To: to})
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	from := s.state
	if from.terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.lastErr = err
	s.mu.Unlock()

	s.logger.Error("session failed", "state", from.String(), "error", err)
	s.emit(StateUpdate{From: from, To: StateError})
}

func (s *Session) emit(update Update) {
	select {
	case s.updates <- update:
	default:
		// Never block dispatch on a slow consumer.
	}
}

// Updates yields session updates. The channel is never closed; consumers
// should stop on Done.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Opened is closed once the control channel reports ready.
func (s *Session) Opened() <-chan struct{} {
	return s.opened
}

// Done is closed once the session is torn down via Close.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// CurrentState returns the session state.
func (s *Session) CurrentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns the single human-readable session status.
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateError && s.lastErr != nil {
		return s.state.String() + ": " + s.lastErr.Error()
	}
	return s.state.String()
}

// LastError returns the error that moved the session to its error state, if
// any.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Messages returns a snapshot of the conversation log.
func (s *Session) Messages() []conversation.Message {
	return s.conv.Messages()
}

// Transcripts returns a snapshot of the finalized transcripts.
func (s *Session) Transcripts() []string {
	return s.transcripts.All()
}

// ActiveInvocations returns a snapshot of in-flight function invocations.
func (s *Session) ActiveInvocations() []tools.Invocation {
	return s.coord.Active()
}

// CompletedInvocations returns a snapshot of the bounded completed
// invocation history.
func (s *Session) CompletedInvocations() []tools.Invocation {
	return s.coord.Completed()
}
