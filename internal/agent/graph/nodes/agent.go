package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/retailchat-ai/server/internal/agent/graph/conversations"
	"github.com/retailchat-ai/server/internal/agent/graph/parsers"
	"github.com/retailchat-ai/server/internal/agent/graph/prompts"
	"github.com/retailchat-ai/server/internal/agent/graph/tools"
	"github.com/retailchat-ai/server/internal/agent/model"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// NewAgentInputNode saves the user message and hands the whole conversation
// to the tool-calling model.
func NewAgentInputNode(mm *conversations.MessagesManager, registry *tools.Registry) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		if err := mm.SaveUserMessage(ctx, input.ConversationID, input.Query); err != nil {
			return nil, fmt.Errorf("save user message: %w", err)
		}
		instructions, err := prompts.AgentInstructions(ctx, registry.Describe())
		if err != nil {
			return nil, fmt.Errorf("render agent instructions: %w", err)
		}
		messages, err := mm.BuildResponseContext(ctx, input.ConversationID, instructions)
		if err != nil {
			return nil, fmt.Errorf("build response context: %w", err)
		}
		return messages, nil
	})
}

// NewResponseChatModelPreHandler creates the pre-handler for ResponseChatModel node
func NewResponseChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Some providers omit tool_call_id on tool results; borrow the latest call's id.
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					if id := msg.ToolCalls[0].ID; strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if state.ToolRan && !state.ToolCallLimitReached {
			// one capability per turn: the next answer must be final
			state.ToolCallLimitReached = true
			state.History = append(state.History, schema.SystemMessage(ToolAlreadyRanNotice))
			return state.History, nil
		}

		if checkAndMarkToolLimit(state, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Please synthesize a helpful response using the information you've already gathered. "+
						"Acknowledge any limitations in your response if you couldn't complete all necessary tool calls.",
					maxToolCalls,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		return state.History, nil
	}
}

// NewResponseChatModelPostHandler creates the post-handler for ResponseChatModel node
func NewResponseChatModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("response model returned no message")
		}
		recordUsage(state, NodeResponseChatModel, modelName, out)
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra[ExtraUsageCostTotal] = state.TotalCostUSD

		// Normalize tool calls: some providers may omit tool_call IDs.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		if state.ToolCallLimitReached && len(out.ToolCalls) > 0 {
			logx.Warn().
				Int("tool_count", len(out.ToolCalls)).
				Str("conversation_id", state.ConversationID).
				Msg("dropping tool calls after the turn's tool budget")
			answer := *out
			answer.ToolCalls = nil
			out = &answer
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		}

		// Save only the final answer.
		if out.Role == schema.Assistant && len(out.ToolCalls) == 0 {
			content := strings.TrimSpace(out.Content)
			if content == "" {
				content = lastToolResult(state.History)
			}
			if content == "" {
				content = "Sorry, I could not produce an answer. Please try again."
			}
			out.Content = content
			if err := mm.SaveResponse(ctx, state.ConversationID, content); err != nil {
				return nil, fmt.Errorf("save assistant response: %w", err)
			}
		}
		return out, nil
	}
}

// NewToolExecutorCondition creates the condition function for tool execution routing
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		updateState(ctx, NodeResponseChatModel, func(state *model.AppState) {
			limitReached = state.ToolCallLimitReached
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to end")
			return compose.END, nil
		}
		if len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}
		return compose.END, nil
	}
}

// NewToolExecutorPreHandler counts tool rounds and keeps only the first call
// of a round. Once that call names a registered capability the turn's tool
// budget is spent.
func NewToolExecutorPreHandler(maxToolCalls int, registry *tools.Registry) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("conversation_id", state.ConversationID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("conversation_id", state.ConversationID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}

		out := in
		if in != nil && len(in.ToolCalls) > 1 {
			logx.Warn().Int("tool_count", len(in.ToolCalls)).Msg("dropping parallel tool calls")
			trimmed := *in
			trimmed.ToolCalls = in.ToolCalls[:1]
			// the history must match what the tools node answers
			if n := len(state.History); n > 0 && state.History[n-1] == in {
				state.History[n-1] = &trimmed
			}
			out = &trimmed
		}
		if out != nil && len(out.ToolCalls) > 0 && registry != nil {
			if _, ok := registry.LookupFunction(out.ToolCalls[0].Function.Name); ok {
				state.ToolRan = true
			}
		}
		return out, nil
	}
}

// ToolAlreadyRanNotice tells the tool-calling model to answer without tools.
const ToolAlreadyRanNotice = "SYSTEM NOTICE: A tool already ran for this message. " +
	"Answer the user now using its result and do not call any more tools."

func lastToolResult(history []*schema.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if m := history[i]; m != nil && m.Role == schema.Tool {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

// UnknownToolHandler answers hallucinated tool calls without failing the run.
func UnknownToolHandler(ctx context.Context, name, input string) (string, error) {
	logx.Warn().
		Str("tool_name", name).
		Str("arguments", input).
		Msg("Unknown or invalid tool call; returning fallback result")
	return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
}

// NormalizeToolArguments unwraps labeled arguments to scalars. It never
// fails; unparseable input passes through.
func NormalizeToolArguments(ctx context.Context, name, arguments string) (string, error) {
	args, err := parsers.ParseArgs(arguments)
	if err != nil {
		return arguments, nil
	}
	b, err := json.Marshal(args.Normalized())
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}
