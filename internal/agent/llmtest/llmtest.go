// Package llmtest provides a scripted chat model for orchestration tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Rule answers a request whose system message contains System and whose
// last message contains Last. Empty fields match anything.
type Rule struct {
	System   string
	Last     string
	LastRole schema.RoleType

	Reply     string
	Respond   func(msgs []*schema.Message) string
	ToolCalls []schema.ToolCall
	Err       error
}

func (r Rule) matches(msgs []*schema.Message) bool {
	var sys string
	if len(msgs) > 0 && msgs[0].Role == schema.System {
		sys = msgs[0].Content
	}
	var last *schema.Message
	if len(msgs) > 0 {
		last = msgs[len(msgs)-1]
	}
	if r.System != "" && !strings.Contains(sys, r.System) {
		return false
	}
	if r.LastRole != "" && (last == nil || last.Role != r.LastRole) {
		return false
	}
	if r.Last != "" && (last == nil || !strings.Contains(last.Content, r.Last)) {
		return false
	}
	return true
}

// Model is a concurrency-safe scripted einomodel.ChatModel.
type Model struct {
	mu     sync.Mutex
	rules  []Rule
	inputs [][]*schema.Message
	tools  []*schema.ToolInfo
}

var _ einomodel.ChatModel = (*Model)(nil)

// New returns a model answering with the first matching rule.
func New(rules ...Rule) *Model {
	return &Model{rules: rules}
}

func (m *Model) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	rules := m.rules
	m.mu.Unlock()

	for _, r := range rules {
		if !r.matches(input) {
			continue
		}
		if r.Err != nil {
			return nil, r.Err
		}
		content := r.Reply
		if r.Respond != nil {
			content = r.Respond(input)
		}
		var calls []schema.ToolCall
		if len(r.ToolCalls) > 0 {
			calls = append(calls, r.ToolCalls...)
		}
		out := schema.AssistantMessage(content, calls)
		out.ResponseMeta = &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110},
		}
		return out, nil
	}
	return nil, fmt.Errorf("llmtest: no rule matches %d messages", len(input))
}

func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *Model) BindTools(tools []*schema.ToolInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return nil
}

// Tools returns what was bound with BindTools.
func (m *Model) Tools() []*schema.ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tools
}

// Inputs returns every request received so far.
func (m *Model) Inputs() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.inputs))
	copy(out, m.inputs)
	return out
}

func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// LastUser returns the content of the latest user message in msgs.
func LastUser(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil && msgs[i].Role == schema.User {
			return msgs[i].Content
		}
	}
	return ""
}

// LastTool returns the content of the latest tool result in msgs.
func LastTool(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil && msgs[i].Role == schema.Tool {
			return msgs[i].Content
		}
	}
	return ""
}
