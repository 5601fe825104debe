// Package message defines the unit of communication flowing through a
// protocol: content, sender, the owning protocol name, an optional recipient,
// and free-form metadata. Messages are value objects — once constructed they
// are not mutated, except for the ID being reassigned when a protocol accepts
// the message for sending.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Well-known sender tags. Senders are free-form; these are the ones the
// built-in front-ends and pipelines use.
const (
	SenderUser     = "user"
	SenderExternal = "external"
	SenderLLM      = "llm"
	SenderAPI      = "api"
	SenderMCP      = "mcp"
)

// MetaInResponseTo is the metadata key linking a reply to its source message.
const MetaInResponseTo = "in_response_to"

// Message is a single message flowing into or out of a channel integration.
type Message struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Sender    string                 `json:"sender"`
	Protocol  string                 `json:"protocol"`
	Recipient string                 `json:"recipient,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// New constructs a validated message. Content and protocol are required.
// Every message gets an ID at construction time so correlation metadata
// (in_response_to) is always populated; protocols reassign the ID via
// GenerateID when they accept a message for sending.
func New(content, sender, protocol string) (*Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if protocol == "" {
		return nil, ErrEmptyProtocol
	}
	return &Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Protocol:  protocol,
		Metadata:  make(map[string]interface{}),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// WithRecipient sets the optional recipient and returns the message.
func (m *Message) WithRecipient(recipient string) *Message {
	m.Recipient = recipient
	return m
}

// WithMetadata merges the given metadata into the message and returns it.
func (m *Message) WithMetadata(md map[string]interface{}) *Message {
	for k, v := range md {
		m.Metadata[k] = v
	}
	return m
}

// InResponseTo returns the ID of the message this one replies to, if set.
func (m *Message) InResponseTo() string {
	if m.Metadata == nil {
		return ""
	}
	if id, ok := m.Metadata[MetaInResponseTo].(string); ok {
		return id
	}
	return ""
}

// ValidationError is a typed error for message construction failures.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

const (
	ErrEmptyContent  ValidationError = "message content is required"
	ErrEmptyProtocol ValidationError = "protocol name is required"
)
