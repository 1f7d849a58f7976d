package model

// ================ Config ================
type ConversationConfig struct {
	TTL    string `envconfig:"CONVERSATION_TTL" default:"2h"`
	Intent struct {
		MaxTurns int `envconfig:"CONVERSATION_INTENT_MAX_TURNS" default:"6"`
	}
	Tools struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"3"`
	}
}

type IntentModelConfig struct {
	Model       string  `envconfig:"INTENT_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"INTENT_MAX_TOKENS" default:"5"`
	Temperature float32 `envconfig:"INTENT_TEMPERATURE" default:"0"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
}

type ResponsePromptConfig struct {
	BusinessType string `envconfig:"PROMPT_BUSINESS_TYPE" default:"retail analytics"`
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"Retail AI"`
}

// Orchestrator modes.
const (
	ModeManual = "manual"
	ModeAgent  = "agent"
)

type OrchestratorConfig struct {
	Mode string `envconfig:"ORCHESTRATOR_MODE" default:"manual"`
}

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND" default:"memory"`
}
