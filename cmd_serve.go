package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"github.com/retailchat-ai/server/internal/agent/graph"
	"github.com/retailchat-ai/server/internal/agent/graph/nodes"
	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/agent/repo"
	"github.com/retailchat-ai/server/internal/assets"
	"github.com/retailchat-ai/server/internal/caption"
	"github.com/retailchat-ai/server/internal/catalog"
	"github.com/retailchat-ai/server/internal/handlers"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// ServeCmd runs the chat HTTP server.
type ServeCmd struct {
	Addr string `help:"Listen address; overrides HTTP_ADDR"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.HTTP.Addr = c.Addr
	}

	conversations, carts, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	cat, err := openCatalog(ctx, cfg.Catalog)
	if err != nil {
		return err
	}
	defer cat.Close()

	fs := afero.NewOsFs()
	store := assets.NewStore(fs, cfg.Asset)
	if err := store.Clear(); err != nil {
		return err
	}

	chatModels, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		IntentConfig: &cfg.Intent,
		RespConfig:   &cfg.Response,
	})
	if err != nil {
		return err
	}

	orch, err := graph.New(ctx, graph.Config{
		Mode:             cfg.Orchestrator.Mode,
		ChatModels:       chatModels,
		Prompt:           cfg.Prompt,
		Conversation:     cfg.Conversation,
		ConversationRepo: conversations,
		CartStore:        carts,
		Fs:               fs,
		UploadDir:        cfg.Upload.Dir,
		Assets:           store,
		Captioner:        caption.New(cfg.Caption),
		Catalog:          cat,
	})
	if err != nil {
		return err
	}

	if cfg.Env().IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.NewChatHandler(orch), handlers.RouterConfig{
		AssetFs:      fs,
		AssetDir:     store.Dir(),
		AssetPrefix:  store.Prefix(),
		AllowOrigins: cfg.HTTP.AllowOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", srv.Addr).Str("mode", cfg.Orchestrator.Mode).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStores picks the conversation and cart stores for the configured backend.
func openStores(ctx context.Context, cfg *AppConfig) (model.ConversationRepository, model.CartStore, func(), error) {
	if cfg.Store.Backend != model.BackendRedis {
		logx.Info().Msg("using in-memory conversation and cart stores")
		return repo.NewMemoryConversationRepository(), repo.NewMemoryCartStore(), func() {}, nil
	}

	ttl, err := cfg.ConversationTTL()
	if err != nil {
		return nil, nil, nil, err
	}
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to initialise Redis client")
		return nil, nil, nil, err
	}
	logx.Info().Dur("ttl", ttl).Msg("Connected to Redis successfully")
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logx.Warn().Err(err).Msg("closing redis")
		}
	}
	return repo.NewRedisConversationRepository(rdb, ttl), repo.NewRedisCartStore(rdb, ttl), closeFn, nil
}

// openCatalog opens the catalog and seeds it from CATALOG_SEED_PATH when empty.
func openCatalog(ctx context.Context, cfg catalog.Config) (*catalog.SQLite, error) {
	cat, err := catalog.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.SeedPath == "" {
		return cat, nil
	}
	n, err := cat.Count(ctx)
	if err != nil {
		cat.Close()
		return nil, err
	}
	if n > 0 {
		return cat, nil
	}
	if _, err := seedFrom(ctx, cat, cfg.SeedPath); err != nil {
		cat.Close()
		return nil, err
	}
	return cat, nil
}
