package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
type AppState struct {
	ConversationID       string
	History              []*schema.Message // agent mode transcript, mutated only inside handlers
	Plan                 *TurnPlan         // manual mode plan, set by the turn start node
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolRan              bool // a registered capability executed this turn
	ToolCallIDSeq        int // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// QueryInput represents the input for processing user queries.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

// TurnPlan flows through the manual-mode nodes.
type TurnPlan struct {
	ConversationID string
	Query          string
	Intent         IntentResult
	Tool           string // executed capability name, empty when none ran
	Metadata       string // tool summary or notice attached to the user message
	Notice         string // user-facing message for a failed tool
}

// TurnResult is what one orchestrated turn hands back to the chat UI.
type TurnResult struct {
	Reply      string     `json:"reply"`
	Transcript []Message  `json:"transcript"`
	Artifacts  []Artifact `json:"artifacts"`
	Tool       string     `json:"tool,omitempty"`
	Notices    []string   `json:"notices,omitempty"`
	Skipped    bool       `json:"skipped"`
	CostUSD    float64    `json:"cost_usd"`
}
