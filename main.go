package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/retailchat-ai/server/internal/core"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// CLI is the command line of the retail chat server.
type CLI struct {
	EnvFile string `default:".env" help:"Dotenv file loaded before reading the environment"`

	Serve       ServeCmd       `cmd:"" default:"1" help:"Run the chat HTTP server (default)"`
	SeedCatalog SeedCatalogCmd `cmd:"" help:"Load products into the catalog from a CSV file"`
	ClearAssets ClearAssetsCmd `cmd:"" help:"Empty the public artifact directory"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("retailchat"),
		kong.Description("Conversational retail analytics assistant"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	if err := godotenv.Load(cli.EnvFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", cli.EnvFile, err)
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(os.Getenv("ENVIRONMENT"))})

	if err := ctx.Run(&cli); err != nil {
		logx.Error().Err(err).Str("command", ctx.Command()).Msg("command failed")
		os.Exit(1)
	}
}
