package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/retailchat-ai/server/internal/agent/model"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

const DefaultMaxToolCalls = 3

// Node names.
const (
	NodeTurnStart         = "TurnStart"
	NodeIntentChatModel   = "IntentChatModel"
	NodeIntentParser      = "IntentParser"
	NodeToolInvoker       = "ToolInvoker"
	NodeResponseAssembler = "ResponseAssembler"
	NodeResponseChatModel = "ResponseChatModel"
	NodeToolExecutor      = "ToolExecutor"
)

// Extra keys set on model output messages.
const (
	ExtraUsageCost      = "usage_cost"
	ExtraUsageCostTotal = "usage_cost_total_usd"
)

// ===== Small helpers to keep handlers simple/readable =====
// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// checkAndMarkToolLimit evaluates whether another tool call would exceed the
// limit and, if so, marks the state accordingly. Returns true when marked now.
func checkAndMarkToolLimit(state *model.AppState, max int) bool {
	max = normalizeMaxToolCalls(max)
	if !state.ToolCallLimitReached && state.ToolCallCount >= max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// incrementToolCallAndCheck increments the count and marks the state if it
// exceeds the limit after incrementing. Returns true when exceeded.
func incrementToolCallAndCheck(state *model.AppState, max int) bool {
	max = normalizeMaxToolCalls(max)
	state.ToolCallCount++
	if state.ToolCallCount > max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// recordUsage prices the usage reported on out, adds it to the running total
// and exposes both on out.Extra.
func recordUsage(state *model.AppState, node, modelName string, out *schema.Message) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	cost, total := model.UsageCost(modelName, usage)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra[ExtraUsageCost] = cost

	logx.Debug().
		Str("conversation_id", state.ConversationID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("total_cost_usd", total).
		Msg("LLM usage")

	state.TotalCostUSD += total
	out.Extra[ExtraUsageCostTotal] = state.TotalCostUSD
}

// updateState applies fn to the graph state. It reports false, with a
// warning, when ctx carries no state.
func updateState(ctx context.Context, node string, fn func(*model.AppState)) bool {
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		fn(state)
		return nil
	})
	if err != nil {
		logx.Warn().Err(err).Str("node", node).Msg("graph state unavailable")
		return false
	}
	return true
}
