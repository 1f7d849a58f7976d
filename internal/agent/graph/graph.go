package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/retailchat-ai/server/internal/agent/graph/conversations"
	"github.com/retailchat-ai/server/internal/agent/graph/nodes"
	"github.com/retailchat-ai/server/internal/agent/graph/tools"
	"github.com/retailchat-ai/server/internal/agent/model"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Mode            string
	ChatModels      *nodes.ChatModels
	MessagesManager *conversations.MessagesManager
	Registry        *tools.Registry
	ToolMaxCalls    int
}

// GraphBuilder handles the construction of the orchestration graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

// BuildGraph constructs and returns the compiled graph for the configured mode
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Intent == nil || config.ChatModels.Response == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("capability registry is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	var err error
	switch config.Mode {
	case model.ModeAgent:
		err = builder.buildAgent(ctx)
	case model.ModeManual, "":
		err = builder.buildManual()
	default:
		err = fmt.Errorf("unknown orchestrator mode %q", config.Mode)
	}
	if err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// buildManual wires classify, invoke and respond:
//
//	TurnStart -> IntentChatModel -> IntentParser -> [ToolInvoker] -> ResponseAssembler -> ResponseChatModel
func (b *GraphBuilder) buildManual() error {
	cms := b.config.ChatModels
	mm := b.config.MessagesManager

	b.graph.AddLambdaNode(nodes.NodeTurnStart,
		nodes.NewIntentInputNode(mm, b.config.Registry),
		compose.WithStatePreHandler(nodes.NewTurnStartPreHandler()),
	)
	b.graph.AddChatModelNode(nodes.NodeIntentChatModel, cms.Intent,
		compose.WithStatePostHandler(nodes.NewUsagePostHandler(nodes.NodeIntentChatModel, cms.IntentModelName)),
	)
	b.graph.AddLambdaNode(nodes.NodeIntentParser, nodes.NewIntentParserNode(b.config.Registry))
	b.graph.AddLambdaNode(nodes.NodeToolInvoker, nodes.NewToolInvokerNode(nodes.ToolInvokerDeps{
		Registry:        b.config.Registry,
		Helper:          cms.Helper,
		HelperModelName: cms.ResponseModelName,
	}))
	b.graph.AddLambdaNode(nodes.NodeResponseAssembler, nodes.NewResponseAssemblerNode(mm))
	b.graph.AddChatModelNode(nodes.NodeResponseChatModel, cms.Response,
		compose.WithStatePostHandler(nodes.NewFinalResponsePostHandler(mm, cms.ResponseModelName)),
	)

	b.addEdges([][2]string{
		{compose.START, nodes.NodeTurnStart},
		{nodes.NodeTurnStart, nodes.NodeIntentChatModel},
		{nodes.NodeIntentChatModel, nodes.NodeIntentParser},
		{nodes.NodeToolInvoker, nodes.NodeResponseAssembler},
		{nodes.NodeResponseAssembler, nodes.NodeResponseChatModel},
		{nodes.NodeResponseChatModel, compose.END},
	})

	routeBranch := compose.NewGraphBranch(
		nodes.NewToolRouteCondition(),
		map[string]bool{
			nodes.NodeToolInvoker:       true,
			nodes.NodeResponseAssembler: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeIntentParser, routeBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding tool route branch")
		return fmt.Errorf("error adding tool route branch: %w", err)
	}
	return nil
}

// buildAgent lets the response model call tools itself:
//
//	TurnStart -> ResponseChatModel <-> ToolExecutor
func (b *GraphBuilder) buildAgent(ctx context.Context) error {
	cms := b.config.ChatModels
	mm := b.config.MessagesManager

	if err := cms.BindToolsToResponseModel(ctx, b.config.Registry.ToolInfos()); err != nil {
		return err
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:                b.config.Registry.Tools(),
		ExecuteSequentially:  true,
		UnknownToolsHandler:  nodes.UnknownToolHandler,
		ToolArgumentsHandler: nodes.NormalizeToolArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddLambdaNode(nodes.NodeTurnStart,
		nodes.NewAgentInputNode(mm, b.config.Registry),
		compose.WithStatePreHandler(nodes.NewTurnStartPreHandler()),
	)
	b.graph.AddChatModelNode(nodes.NodeResponseChatModel, cms.Response,
		compose.WithStatePreHandler(nodes.NewResponseChatModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewResponseChatModelPostHandler(mm, cms.ResponseModelName)),
	)
	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls, b.config.Registry)),
	)

	b.addEdges([][2]string{
		{compose.START, nodes.NodeTurnStart},
		{nodes.NodeTurnStart, nodes.NodeResponseChatModel},
		{nodes.NodeToolExecutor, nodes.NodeResponseChatModel},
	})

	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeResponseChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

func (b *GraphBuilder) addEdges(edges [][2]string) {
	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Str("mode", b.config.Mode).Msg("Graph compiled successfully")
	return runnable, nil
}
