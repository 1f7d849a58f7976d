package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailchat-ai/server/internal/agent/model"
)

var names = []string{"Forecast Generator", "Product Description Generator", "Text to Shop"}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		raw    string
		status model.IntentStatus
		name   string
	}{
		{"Forecast Generator", model.IntentSelected, "Forecast Generator"},
		{"'Text to Shop'.", model.IntentSelected, "Text to Shop"},
		{"  \"product description generator\"\n", model.IntentSelected, "Product Description Generator"},
		{"Name: Text to Shop | Description: use this tool", model.IntentSelected, "Text to Shop"},
		{"Other", model.IntentNone, ""},
		{"other.", model.IntentNone, ""},
		{"", model.IntentNone, ""},
		{"none", model.IntentNone, ""},
		{"Weather Tool", model.IntentRejected, ""},
		{"Forecast", model.IntentRejected, ""},
		{strings.Repeat("x", 300), model.IntentRejected, ""},
	}
	for _, tt := range tests {
		got := ParseIntent(tt.raw, names)
		assert.Equal(t, tt.status, got.Status, tt.raw)
		assert.Equal(t, tt.name, got.Name, tt.raw)
		_, ok := got.Tool()
		assert.Equal(t, tt.status == model.IntentSelected, ok, tt.raw)
	}
}

func TestArgUnion(t *testing.T) {
	args, err := ParseArgs(`{"product_name": {"title": "red mugs"}, "quantity": "3", "note": null, "n": 2}`)
	require.NoError(t, err)

	assert.Equal(t, ArgLabeled, args["product_name"].Kind)
	assert.Equal(t, "red mugs", args.String("product_name"))
	assert.Equal(t, ArgScalar, args["quantity"].Kind)
	assert.Equal(t, 3, args.Int("quantity", 1))
	assert.Equal(t, ArgAbsent, args["note"].Kind)
	assert.Equal(t, 2, args.Int("n", 1))
	assert.Equal(t, map[string]string{"product_name": "red mugs", "quantity": "3", "n": "2"}, args.Normalized())
}

func TestArgsIntDefaults(t *testing.T) {
	args, err := ParseArgs(`{"a": "many", "b": "0", "c": -2, "d": {"title": 4}, "e": "2 boxes", "f": {"label": 5}}`)
	require.NoError(t, err)
	assert.Equal(t, 1, args.Int("missing", 1))
	assert.Equal(t, 1, args.Int("a", 1))
	assert.Equal(t, 1, args.Int("b", 1))
	assert.Equal(t, 1, args.Int("c", 1))
	assert.Equal(t, 4, args.Int("d", 1))
	assert.Equal(t, 2, args.Int("e", 1))
	assert.Equal(t, 1, args.Int("f", 1))
}

func TestParseArgsTolerance(t *testing.T) {
	args, err := ParseArgs("Sure!\n```json\n{\"frequency\": \"weekly\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "weekly", args.String("frequency"))

	args, err = ParseArgs("")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = ParseArgs("no json here")
	assert.Error(t, err)
}
