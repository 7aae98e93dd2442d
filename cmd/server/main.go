package main // Entry point package

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/store-rating/internal/config"   // Internal config loader
	"github.com/iliyamo/store-rating/internal/database" // MySQL pool + migrations
	"github.com/iliyamo/store-rating/internal/logging"
)

// rootCmd is the base command; the server itself runs under "serve".
var rootCmd = &cobra.Command{
	Use:           "store-rating",
	Short:         "Store rating API server and maintenance tools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, builds the logger and resolves the
// database settings.
// Every subcommand starts here.
func bootstrap() (config.Config, *logrus.Logger, *database.Settings, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	s := &database.Settings{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	}
	return cfg, log, s, nil
}
