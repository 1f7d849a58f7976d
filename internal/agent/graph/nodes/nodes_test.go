package nodes

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailchat-ai/server/internal/agent/graph/conversations"
	"github.com/retailchat-ai/server/internal/agent/graph/tools"
	"github.com/retailchat-ai/server/internal/agent/llmtest"
	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/agent/repo"
	"github.com/retailchat-ai/server/internal/assets"
)

type emptyCatalog struct{}

func (emptyCatalog) Similar(ctx context.Context, text string, n int) ([]model.Product, error) {
	return nil, nil
}

type noCaption struct{}

func (noCaption) Caption(ctx context.Context, imageBase64, prompt string) (string, error) {
	return "", nil
}

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	fs := afero.NewMemMapFs()
	reg, err := tools.NewRegistry(tools.Deps{
		Fs:        fs,
		Assets:    assets.NewStore(fs, assets.Config{Dir: "/public", URLPrefix: "/assets"}),
		Captioner: noCaption{},
		Catalog:   emptyCatalog{},
		ChatModel: llmtest.New(llmtest.Rule{Reply: "none"}),
	})
	require.NoError(t, err)
	return reg
}

func toolCall(name string) schema.ToolCall {
	return schema.ToolCall{ID: "call_1", Function: schema.FunctionCall{Name: name, Arguments: `{}`}}
}

func TestUpdateStateWithoutGraphState(t *testing.T) {
	called := false
	ok := updateState(context.Background(), NodeToolInvoker, func(*model.AppState) { called = true })
	assert.False(t, ok)
	assert.False(t, called)
}

func TestToolExecutorPreHandlerSpendsBudget(t *testing.T) {
	pre := NewToolExecutorPreHandler(3, newRegistry(t))
	tests := []struct {
		name    string
		calls   []schema.ToolCall
		wantRan bool
		wantLen int
	}{
		{name: "registered", calls: []schema.ToolCall{toolCall("text_to_shop")}, wantRan: true, wantLen: 1},
		{name: "parallel trimmed", calls: []schema.ToolCall{toolCall("text_to_shop"), toolCall("generate_forecast")}, wantRan: true, wantLen: 1},
		{name: "unknown tool", calls: []schema.ToolCall{toolCall("weather_report")}, wantRan: false, wantLen: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := schema.AssistantMessage("", tt.calls)
			state := &model.AppState{History: []*schema.Message{in}}
			out, err := pre(context.Background(), in, state)
			require.NoError(t, err)
			assert.Len(t, out.ToolCalls, tt.wantLen)
			assert.Equal(t, tt.wantRan, state.ToolRan)
			assert.Same(t, out, state.History[0])
		})
	}
}

func TestResponsePreHandlerClosesToolsAfterOneRun(t *testing.T) {
	pre := NewResponseChatModelPreHandler(3)
	state := &model.AppState{ToolRan: true, ToolCallCount: 1}

	msgs, err := pre(context.Background(), []*schema.Message{schema.ToolMessage("Added 1 x Mug.", "call_1")}, state)
	require.NoError(t, err)
	assert.True(t, state.ToolCallLimitReached)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, schema.System, last.Role)
	assert.Equal(t, ToolAlreadyRanNotice, last.Content)
}

func TestResponsePostHandlerDropsLateToolCalls(t *testing.T) {
	ctx := context.Background()
	conversationRepo := repo.NewMemoryConversationRepository()
	mm := conversations.NewMessagesManager(conversationRepo, model.ConversationConfig{}, "system")
	require.NoError(t, mm.Init(ctx, "c1"))
	post := NewResponseChatModelPostHandler(mm, "gemini-2.5-flash")

	state := &model.AppState{
		ConversationID:       "c1",
		ToolRan:              true,
		ToolCallLimitReached: true,
		History:              []*schema.Message{schema.ToolMessage("Added 1 x Mug.", "call_1")},
	}
	out, err := post(ctx, schema.AssistantMessage("", []schema.ToolCall{toolCall("text_to_shop")}), state)
	require.NoError(t, err)
	assert.Empty(t, out.ToolCalls)
	assert.Equal(t, "Added 1 x Mug.", out.Content)

	transcript, err := mm.Transcript(ctx, "c1")
	require.NoError(t, err)
	require.NotEmpty(t, transcript)
	assert.Equal(t, "Added 1 x Mug.", transcript[len(transcript)-1].Content)
}
