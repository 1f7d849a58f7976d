package prompts

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailchat-ai/server/internal/agent/model"
)

func TestIntentSystemListsTools(t *testing.T) {
	out, err := IntentSystem(context.Background(), "Name: Text to Shop | Description: shop\n")
	require.NoError(t, err)
	assert.Contains(t, out, "select a tool by responding only with the name")
	assert.Contains(t, out, "Name: Text to Shop | Description: shop")
}

func TestResponseSystem(t *testing.T) {
	out, err := ResponseSystem(context.Background(), model.ResponsePromptConfig{
		BusinessType: "retail analytics",
		BusinessName: "Retail AI",
	}, []string{"Forecast Generator", "Text to Shop"})
	require.NoError(t, err)
	assert.Contains(t, out, "master of retail analytics working for Retail AI")
	assert.Contains(t, out, "Forecast Generator, Text to Shop")
	assert.Contains(t, out, NoToolMetadata)
}

func TestArgsListsParamsInOrder(t *testing.T) {
	out, err := Args(context.Background(), "Text to Shop", "shop", map[string]*schema.ParameterInfo{
		"quantity":     {Type: schema.Integer, Desc: "How many."},
		"product_name": {Type: schema.String, Desc: "Name.", Required: true},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "- product_name (string, required): Name.\n- quantity (integer): How many.")
	assert.Contains(t, out, "Respond only with a JSON object")
}

func TestUpsell(t *testing.T) {
	out, err := Upsell(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "single additional item")
}

func TestAgentInstructions(t *testing.T) {
	out, err := AgentInstructions(context.Background(), "Name: Forecast Generator | Description: forecast")
	require.NoError(t, err)
	assert.Contains(t, out, "Call at most one tool")
	assert.Contains(t, out, "Name: Forecast Generator")
}
