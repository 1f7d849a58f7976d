package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/retailchat-ai/server/internal/agent/model"
)

type MessagesManager struct {
	conversationRepo model.ConversationRepository
	intentMaxTurns   int
	defaultSystem    string
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig, defaultSystem string) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		intentMaxTurns:   config.Intent.MaxTurns,
		defaultSystem:    defaultSystem,
	}
}

// DefaultSystem is the system message a fresh conversation starts with.
func (cm *MessagesManager) DefaultSystem() string { return cm.defaultSystem }

// Init seeds the system message when the conversation does not exist yet.
func (cm *MessagesManager) Init(ctx context.Context, conversationID string) error {
	n, err := cm.conversationRepo.Count(ctx, conversationID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return cm.conversationRepo.Reset(ctx, conversationID, cm.defaultSystem)
}

// Exists reports whether the conversation holds any message.
func (cm *MessagesManager) Exists(ctx context.Context, conversationID string) (bool, error) {
	n, err := cm.conversationRepo.Count(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Reset truncates the conversation back to the default system message.
func (cm *MessagesManager) Reset(ctx context.Context, conversationID string) error {
	return cm.conversationRepo.Reset(ctx, conversationID, cm.defaultSystem)
}

// EditSystem appends text to the system message, first restoring the
// default when reset is set.
func (cm *MessagesManager) EditSystem(ctx context.Context, conversationID, text string, reset bool) error {
	conv, err := cm.conversationRepo.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.EditSystem(cm.defaultSystem, text, reset)
	return cm.conversationRepo.SetSystem(ctx, conversationID, conv.System())
}

func (cm *MessagesManager) Transcript(ctx context.Context, conversationID string) ([]model.Message, error) {
	conv, err := cm.conversationRepo.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return conv.Display(), nil
}

// =========== Function for intent classification ===========

func (cm *MessagesManager) SaveUserMessage(ctx context.Context, conversationID, query string) error {
	if err := cm.Init(ctx, conversationID); err != nil {
		return err
	}
	return cm.conversationRepo.Append(ctx, conversationID, model.UserMessage(query))
}

// BuildIntentContext renders the recent transcript for the classifier with
// the latest user message called out, so a change of mind wins.
func (cm *MessagesManager) BuildIntentContext(ctx context.Context, conversationID string) (string, error) {
	conv, err := cm.conversationRepo.Load(ctx, conversationID)
	if err != nil {
		return "", err
	}
	display := conv.Display()

	var current string
	if n := len(display); n > 0 && display[n-1].Role == model.RoleUser {
		current = display[n-1].Content
		display = display[:n-1]
	}

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, msg := range trimTail(display, cm.intentMaxTurns) {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case model.RoleUser:
			b.WriteString("UserMessage(" + msg.Content + ")\n")
		case model.RoleAssistant:
			b.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}
	b.WriteString("</conversation_context>")
	b.WriteString("\n<current_message_to_analyze>\n")
	b.WriteString("UserMessage(" + current + ")\n")
	b.WriteString("</current_message_to_analyze>")
	return b.String(), nil
}

// =========== Function for response ===========

// Annotate attaches hidden metadata to the latest message.
func (cm *MessagesManager) Annotate(ctx context.Context, conversationID, metadata string) error {
	return cm.conversationRepo.AnnotateLast(ctx, conversationID, metadata)
}

// BuildResponseContext returns the whole conversation, metadata included,
// with extra system instructions appended to the stored system message.
func (cm *MessagesManager) BuildResponseContext(ctx context.Context, conversationID string, extraSystem string) ([]*schema.Message, error) {
	conv, err := cm.conversationRepo.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.System() == "" {
		conv.EditSystem(cm.defaultSystem, "", true)
	}
	messages := conv.Schema()
	if extraSystem != "" {
		messages[0] = schema.SystemMessage(messages[0].Content + "\n\n" + extraSystem)
	}
	return messages, nil
}

func (cm *MessagesManager) SaveResponse(ctx context.Context, conversationID string, content string) error {
	return cm.conversationRepo.Append(ctx, conversationID, model.AssistantMessage(content))
}

// ====================== Helper function ======================
func trimTail(messages []model.Message, maxTurns int) []model.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]model.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]model.Message, len(source))
	copy(result, source)
	return result
}
