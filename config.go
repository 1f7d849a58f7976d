package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/assets"
	"github.com/retailchat-ai/server/internal/caption"
	"github.com/retailchat-ai/server/internal/catalog"
	"github.com/retailchat-ai/server/internal/core"
	errx "github.com/retailchat-ai/server/internal/core/error"
	"github.com/retailchat-ai/server/internal/ingest"
	pkgredis "github.com/retailchat-ai/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the server, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Store   model.StoreConfig
	Redis   pkgredis.Config
	Catalog catalog.Config
	Caption caption.Config
	Upload  ingest.Config
	Asset   assets.Config
	HTTP    HTTPConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Orchestrator model.OrchestratorConfig
	Intent       model.IntentModelConfig
	Response     model.ResponseModelConfig
	Prompt       model.ResponsePromptConfig
	Conversation model.ConversationConfig
}

type HTTPConfig struct {
	Addr         string   `default:":8080"`
	AllowOrigins []string `split_words:"true"`
}

func loadConfig() (*AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errx.Config("failed to process environment config", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch {
	case c.APIKey == "":
		return errx.Config("GEMINI_API_KEY is required", nil)
	case c.Catalog.DSN == "":
		return errx.Config("CATALOG_DSN is required", nil)
	case c.Caption.Endpoint == "":
		return errx.Config("CAPTION_ENDPOINT is required", nil)
	}
	switch c.Orchestrator.Mode {
	case model.ModeManual, model.ModeAgent:
	default:
		return errx.Config(fmt.Sprintf("ORCHESTRATOR_MODE must be %q or %q, got %q", model.ModeManual, model.ModeAgent, c.Orchestrator.Mode), nil)
	}
	switch c.Store.Backend {
	case model.BackendMemory:
	case model.BackendRedis:
		if c.Redis.URL == "" {
			return errx.Config("REDIS_URL is required with the redis store backend", nil)
		}
	default:
		return errx.Config(fmt.Sprintf("unknown STORE_BACKEND %q", c.Store.Backend), nil)
	}
	if _, err := c.ConversationTTL(); err != nil {
		return err
	}
	return nil
}

func (c *AppConfig) ConversationTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Conversation.TTL)
	if err != nil {
		return 0, errx.Config(fmt.Sprintf("invalid CONVERSATION_TTL %q", c.Conversation.TTL), err)
	}
	return ttl, nil
}

func (c *AppConfig) Env() core.Environment {
	return core.ParseEnvironment(c.Environment)
}
