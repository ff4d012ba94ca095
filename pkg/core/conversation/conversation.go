// Package conversation holds the ordered log of user and assistant messages
// reconciled from streamed control-channel events, plus the independent list
// of finalized speech transcripts.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Log is the ordered conversation state. Consecutive assistant text deltas
// append to the same message only while no other event has interleaved since
// the last delta; any other mutation or an explicit Break starts a new
// message on the next delta.
type Log struct {
	mu         sync.RWMutex
	messages   []Message
	continuing bool
}

// NewLog creates an empty conversation log.
func NewLog() *Log {
	return &Log{}
}

// AddUser appends a complete user message and returns its id.
func (l *Log) AddUser(text string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := "msg_" + uuid.NewString()
	l.messages = append(l.messages, Message{
		ID:        id,
		Role:      RoleUser,
		Text:      text,
		CreatedAt: time.Now(),
	})
	l.continuing = false
	return id
}

// AppendAssistantDelta folds one streamed assistant chunk into the log,
// continuing the open assistant message or starting a new one.
func (l *Log) AppendAssistantDelta(delta string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.continuing && len(l.messages) > 0 {
		last := &l.messages[len(l.messages)-1]
		if last.Role == RoleAssistant {
			last.Text += delta
			return
		}
	}
	l.messages = append(l.messages, Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      RoleAssistant,
		Text:      delta,
		CreatedAt: time.Now(),
	})
	l.continuing = true
}

// Break marks that an unrelated event interleaved; the next assistant delta
// starts a new message.
func (l *Log) Break() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.continuing = false
}

// Messages returns a copy of the conversation log.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Transcripts is the ordered list of finalized speech-to-text transcripts,
// kept separate from the conversation log.
type Transcripts struct {
	mu      sync.RWMutex
	entries []string
}

// NewTranscripts creates an empty transcript list.
func NewTranscripts() *Transcripts {
	return &Transcripts{}
}

// Add appends one finalized transcript.
func (t *Transcripts) Add(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, text)
}

// All returns a copy of the transcript list.
func (t *Transcripts) All() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.entries))
	copy(out, t.entries)
	return out
}
