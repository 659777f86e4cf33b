package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Phase is the lifecycle position of a message
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseLoading   Phase = "loading"
	PhaseStreaming Phase = "streaming"
	PhaseCompleted Phase = "completed"
	PhaseErrored   Phase = "errored"
)

// Terminal reports whether no further change can happen in this phase
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseErrored
}

// MessageError records why a message was frozen in the Errored phase
type MessageError struct {
	Kind ErrorKind `json:"kind"`
	Text string    `json:"text"`
}

// Message represents a chat message held in memory by the session registry
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Phase     Phase         `json:"phase"`
	Strategy  Strategy      `json:"strategy,omitempty"`
	Reasoning []string      `json:"reasoning,omitempty"`
	Sources   []Source      `json:"sources,omitempty"`
	Error     *MessageError `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewMessageID generates an opaque message identifier
func NewMessageID() string {
	return uuid.NewString()
}

// NewUserMessage creates a completed user message with the literal input
func NewUserMessage(content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleUser,
		Content:   content,
		Phase:     PhaseCompleted,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates an empty assistant message awaiting a response
func NewAssistantMessage() Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Phase:     PhasePending,
		CreatedAt: time.Now(),
	}
}

// Clone returns a copy that shares no slices with m
func (m Message) Clone() Message {
	m.Reasoning = slices.Clone(m.Reasoning)
	m.Sources = slices.Clone(m.Sources)
	if m.Error != nil {
		e := *m.Error
		m.Error = &e
	}
	return m
}
