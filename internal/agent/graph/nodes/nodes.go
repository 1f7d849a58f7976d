package nodes

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/retailchat-ai/server/internal/agent/graph/conversations"
	"github.com/retailchat-ai/server/internal/agent/graph/parsers"
	"github.com/retailchat-ai/server/internal/agent/graph/prompts"
	"github.com/retailchat-ai/server/internal/agent/graph/tools"
	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/agent/session"
	errx "github.com/retailchat-ai/server/internal/core/error"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// NewTurnStartPreHandler resets the per-query counters.
func NewTurnStartPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		if s.ConversationID == "" {
			s.ConversationID = in.ConversationID
		}
		s.Plan = &model.TurnPlan{ConversationID: in.ConversationID, Query: in.Query}
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolRan = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewIntentInputNode saves the user message and builds the classifier input.
func NewIntentInputNode(mm *conversations.MessagesManager, registry *tools.Registry) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		if err := mm.SaveUserMessage(ctx, input.ConversationID, input.Query); err != nil {
			return nil, fmt.Errorf("save user message: %w", err)
		}
		conversationCtx, err := mm.BuildIntentContext(ctx, input.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("error getting conversation context: %w", err)
		}

		// Generate system prompt via Eino prompt component (enables prompt callbacks)
		systemPrompt, err := prompts.IntentSystem(ctx, registry.Describe())
		if err != nil {
			return nil, fmt.Errorf("render intent system prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(conversationCtx),
		}, nil
	})
}

// NewUsagePostHandler prices model output for the given node.
func NewUsagePostHandler(node, modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		recordUsage(state, node, modelName, out)
		return out, nil
	}
}

// NewIntentParserNode maps the classifier answer onto the registry. An answer
// outside the vocabulary degrades to no tool.
func NewIntentParserNode(registry *tools.Registry) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.TurnPlan, error) {
		raw := ""
		if resp != nil {
			raw = resp.Content
		}
		result := parsers.ParseIntent(raw, registry.Names())
		if result.Status == model.IntentRejected {
			logx.Warn().
				Err(errx.Classification("classifier answered outside the registry", nil)).
				Str("raw", result.Raw).
				Msg("degrading to no tool")
		}

		var plan model.TurnPlan
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Plan == nil {
				return fmt.Errorf("missing turn plan in state")
			}
			state.Plan.Intent = result
			plan = *state.Plan
			return nil
		})
		if err != nil {
			return model.TurnPlan{}, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Debug().
			Str("conversation_id", plan.ConversationID).
			Str("intent", result.Status.String()).
			Str("tool", result.Name).
			Msg("intent classified")
		return plan, nil
	})
}

// NewToolRouteCondition sends selected intents to the tool invoker.
func NewToolRouteCondition() func(context.Context, model.TurnPlan) (string, error) {
	return func(ctx context.Context, plan model.TurnPlan) (string, error) {
		if _, ok := plan.Intent.Tool(); ok {
			return NodeToolInvoker, nil
		}
		return NodeResponseAssembler, nil
	}
}

// ToolInvokerDeps are the collaborators of the manual tool invoker.
type ToolInvokerDeps struct {
	Registry        *tools.Registry
	Helper          einomodel.BaseChatModel
	HelperModelName string
}

// NewToolInvokerNode extracts arguments for the selected capability, runs it
// and puts its summary, or a failure notice, into the plan metadata.
func NewToolInvokerNode(deps ToolInvokerDeps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, plan model.TurnPlan) (model.TurnPlan, error) {
		name, _ := plan.Intent.Tool()
		desc, ok := deps.Registry.Lookup(name)
		if !ok {
			return plan, nil
		}

		args := extractArgs(ctx, deps, desc, plan.Query)
		if desc.Name == tools.NameTextToShop && args.String("product_name") == "" {
			args["product_name"] = parsers.Scalar(plan.Query)
		}

		plan.Tool = desc.Name
		res, err := invoke(ctx, deps.Registry, desc.Name, args)
		if err != nil {
			plan.Notice = tools.Notice(desc.Name, err)
			plan.Metadata = fmt.Sprintf("The %s tool failed. %s Apologize and explain this to the user.", desc.Name, plan.Notice)
		} else {
			plan.Metadata = res.Summary
		}

		updateState(ctx, NodeToolInvoker, func(state *model.AppState) {
			state.ToolCallCount++
			state.ToolRan = true
			if state.Plan != nil {
				*state.Plan = plan
			}
		})
		return plan, nil
	})
}

func invoke(ctx context.Context, registry *tools.Registry, name string, args parsers.Args) (model.ToolResult, error) {
	call, err := registry.Call(name, args)
	if err != nil {
		if sess, ok := session.FromContext(ctx); ok {
			sess.Ran(name)
			sess.Notify(tools.Notice(name, err))
		}
		return model.ToolResult{}, err
	}
	return registry.Invoke(ctx, call)
}

// extractArgs asks the helper model for the capability arguments. Any
// failure yields no arguments so defaults apply.
func extractArgs(ctx context.Context, deps ToolInvokerDeps, desc tools.Descriptor, query string) parsers.Args {
	if len(desc.Params) == 0 || deps.Helper == nil {
		return parsers.Args{}
	}
	sys, err := prompts.Args(ctx, desc.Name, desc.Description, desc.Params)
	if err != nil {
		logx.Warn().Err(err).Str("tool", desc.Name).Msg("argument prompt")
		return parsers.Args{}
	}
	out, err := deps.Helper.Generate(ctx, []*schema.Message{
		schema.SystemMessage(sys),
		schema.UserMessage(query),
	}, einomodel.WithTemperature(0))
	if err != nil {
		logx.Warn().Err(err).Str("tool", desc.Name).Msg("argument extraction failed")
		return parsers.Args{}
	}
	updateState(ctx, NodeToolInvoker, func(state *model.AppState) {
		recordUsage(state, NodeToolInvoker, deps.HelperModelName, out)
	})

	args, err := parsers.ParseArgs(out.Content)
	if err != nil {
		logx.Warn().Err(err).Str("tool", desc.Name).Msg("argument extraction unparseable")
		return parsers.Args{}
	}
	return args
}

// NewResponseAssemblerNode annotates the user message with the plan metadata
// and builds the primary model context.
func NewResponseAssemblerNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, plan model.TurnPlan) ([]*schema.Message, error) {
		meta := strings.TrimSpace(plan.Metadata)
		if meta == "" {
			meta = prompts.NoToolMetadata
		}
		if err := mm.Annotate(ctx, plan.ConversationID, meta); err != nil {
			return nil, fmt.Errorf("annotate user message: %w", err)
		}

		messages, err := mm.BuildResponseContext(ctx, plan.ConversationID, "")
		if err != nil {
			return nil, fmt.Errorf("build response context: %w", err)
		}
		return messages, nil
	})
}

// NewFinalResponsePostHandler prices and stores the reply of the manual flow.
func NewFinalResponsePostHandler(
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

		if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
			return nil, fmt.Errorf("save assistant response: %w", err)
		}
		return out, nil
	}
}
