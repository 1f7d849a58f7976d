package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"

	"github.com/retailchat-ai/server/internal/assets"
	"github.com/retailchat-ai/server/internal/catalog"
	errx "github.com/retailchat-ai/server/internal/core/error"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// SeedCatalogCmd loads products into the catalog.
type SeedCatalogCmd struct {
	File string `arg:"" optional:"" help:"CSV with name,id,description,company_name (defaults to CATALOG_SEED_PATH)"`
}

func (c *SeedCatalogCmd) Run(cli *CLI) error {
	ctx := context.Background()

	var cfg catalog.Config
	if err := envconfig.Process("CATALOG", &cfg); err != nil {
		return errx.Config("failed to process catalog config", err)
	}
	path := c.File
	if path == "" {
		path = cfg.SeedPath
	}
	if path == "" {
		return errx.Config("no seed file given and CATALOG_SEED_PATH is not set", nil)
	}

	cat, err := catalog.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	n, err := seedFrom(ctx, cat, path)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d products from %s\n", n, path)
	return nil
}

func seedFrom(ctx context.Context, cat *catalog.SQLite, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errx.Config(fmt.Sprintf("cannot open catalog seed file %s", path), err)
	}
	defer f.Close()
	n, err := cat.Seed(ctx, f)
	if err != nil {
		return 0, err
	}
	logx.Info().Str("path", path).Int("products", n).Msg("catalog seeded")
	return n, nil
}

// ClearAssetsCmd empties the public artifact directory.
type ClearAssetsCmd struct{}

func (c *ClearAssetsCmd) Run(cli *CLI) error {
	var cfg assets.Config
	if err := envconfig.Process("ASSET", &cfg); err != nil {
		return errx.Config("failed to process asset config", err)
	}
	if err := assets.NewStore(afero.NewOsFs(), cfg).Clear(); err != nil {
		return err
	}
	fmt.Printf("Cleared %s\n", cfg.Dir)
	return nil
}
