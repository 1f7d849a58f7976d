package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	metadataOpen  = "<metadata>"
	metadataClose = "</metadata>"
	// MetadataLead prefixes tool output handed to the primary model.
	MetadataLead = "Please use the following in summarization. "
)

// Message is one turn of a conversation. Metadata is hidden from the user and
// only rendered into content at the LLM boundary.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content, CreatedAt: time.Now().UTC()}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, CreatedAt: time.Now().UTC()}
}

// LLMContent returns the content sent to a model, with metadata wrapped in sentinel tags.
func (m Message) LLMContent() string {
	if m.Metadata == "" {
		return m.Content
	}
	return m.Content + metadataOpen + MetadataLead + m.Metadata + metadataClose
}

// ToSchema converts the message for an eino chat model.
func (m Message) ToSchema() *schema.Message {
	switch m.Role {
	case RoleSystem:
		return schema.SystemMessage(m.LLMContent())
	case RoleAssistant:
		return schema.AssistantMessage(m.LLMContent(), nil)
	default:
		return schema.UserMessage(m.LLMContent())
	}
}

// Conversation is the ordered transcript of one session. Index 0 is the system message.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// Reset truncates the conversation to a single system message.
func (c *Conversation) Reset(system string) {
	c.Messages = []Message{SystemMessage(system)}
}

func (c *Conversation) Append(msg Message) {
	if len(c.Messages) == 0 && msg.Role != RoleSystem {
		c.Messages = append(c.Messages, SystemMessage(""))
	}
	c.Messages = append(c.Messages, msg)
}

// AnnotateLast sets the metadata of the last non-system message.
func (c *Conversation) AnnotateLast(metadata string) bool {
	if len(c.Messages) < 2 {
		return false
	}
	c.Messages[len(c.Messages)-1].Metadata = metadata
	return true
}

// EditSystem appends text to the system message. With reset the system
// message first returns to def.
func (c *Conversation) EditSystem(def, text string, reset bool) {
	if len(c.Messages) == 0 {
		c.Messages = []Message{SystemMessage(def)}
	}
	sys := &c.Messages[0]
	if reset {
		sys.Content = def
	}
	if text != "" {
		sys.Content += " " + text + "."
	}
}

// System returns the system message content, or "" for an empty conversation.
func (c *Conversation) System() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].Content
}

// Display returns the user-visible transcript: no system message, no metadata.
func (c *Conversation) Display() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == RoleSystem {
			continue
		}
		m.Metadata = ""
		out = append(out, m)
	}
	return out
}

// Schema renders the whole conversation for an eino chat model.
func (c *Conversation) Schema() []*schema.Message {
	out := make([]*schema.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, m.ToSchema())
	}
	return out
}

type ConversationRepository interface {
	// Load returns the conversation; an unknown id yields an empty conversation.
	Load(ctx context.Context, conversationID string) (*Conversation, error)

	// Reset truncates the conversation to the given system message.
	Reset(ctx context.Context, conversationID string, system string) error

	// Append adds a message to the end of the conversation.
	Append(ctx context.Context, conversationID string, msg Message) error

	// AnnotateLast attaches hidden metadata to the most recent message.
	AnnotateLast(ctx context.Context, conversationID string, metadata string) error

	// SetSystem replaces the content of the system message in place.
	SetSystem(ctx context.Context, conversationID string, content string) error

	// Count returns the number of messages, system message included.
	Count(ctx context.Context, conversationID string) (int, error)
}
