// Package prompts renders the system prompts of the orchestrator through the
// Eino prompt component so prompt callbacks fire on every render.
package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/retailchat-ai/server/internal/agent/model"
)

// NoToolMetadata is attached to a user message when no capability ran.
const NoToolMetadata = "No skill selected."

var (
	//go:embed template/intent_prompt.txt
	intentSystemPrompt string
	//go:embed template/response_prompt.txt
	responseSystemPrompt string
	//go:embed template/args_prompt.txt
	argsSystemPrompt string
	//go:embed template/upsell_prompt.txt
	upsellSystemPrompt string
	//go:embed template/agent_prompt.txt
	agentInstructions string
)

// IntentSystem renders the classifier prompt listing every capability.
func IntentSystem(ctx context.Context, describe string) (string, error) {
	return render(ctx, "intent", intentSystemPrompt, map[string]any{
		"Tools": strings.TrimSpace(describe),
	})
}

// ResponseSystem renders the default system message of a conversation.
func ResponseSystem(ctx context.Context, cfg model.ResponsePromptConfig, toolNames []string) (string, error) {
	return render(ctx, "response", responseSystemPrompt, map[string]any{
		"BusinessName": cfg.BusinessName,
		"BusinessType": cfg.BusinessType,
		"Tools":        strings.Join(toolNames, ", "),
		"NoTool":       NoToolMetadata,
	})
}

// Args renders the argument-extraction prompt for one capability.
func Args(ctx context.Context, tool, description string, params map[string]*schema.ParameterInfo) (string, error) {
	var b strings.Builder
	for _, name := range sortedKeys(params) {
		p := params[name]
		fmt.Fprintf(&b, "- %s (%s", name, p.Type)
		if p.Required {
			b.WriteString(", required")
		}
		fmt.Fprintf(&b, "): %s", p.Desc)
		if len(p.Enum) > 0 {
			fmt.Fprintf(&b, " One of: %s.", strings.Join(p.Enum, ", "))
		}
		b.WriteString("\n")
	}
	return render(ctx, "args", argsSystemPrompt, map[string]any{
		"Tool":        tool,
		"Description": description,
		"Params":      b.String(),
	})
}

// AgentInstructions renders the tool-use rules appended to the system
// message in agent mode.
func AgentInstructions(ctx context.Context, describe string) (string, error) {
	return render(ctx, "agent", agentInstructions, map[string]any{
		"Tools": strings.TrimSpace(describe),
	})
}

func Upsell(ctx context.Context) (string, error) {
	return render(ctx, "upsell", upsellSystemPrompt, nil)
}

func render(ctx context.Context, name, tmpl string, vars map[string]any) (string, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(tmpl),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", name)
	}
	return strings.TrimSpace(msgs[0].Content), nil
}

func sortedKeys(m map[string]*schema.ParameterInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
