package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/exchange"
	"github.com/rickgao/barsync/internal/logx"
	"github.com/rickgao/barsync/internal/store"
	"github.com/rickgao/barsync/internal/version"
)

// app carries what every subcommand needs after the root pre-run.
type app struct {
	configPath string
	envFile    string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "barsync",
		Short:         "OKX candle ingestion and consistency tooling",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "configs/barsync.yaml", "path to config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config (optional)")

	root.AddCommand(
		newIngestCmd(a),
		newBackfillCmd(a),
		newGapsCmd(a),
		newAggregateCmd(a),
		newVersionCmd(),
	)

	return root
}

// load reads the dotenv file, the config and sets up logging.
func (a *app) load() error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg, err := config.LoadAndValidate(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = logx.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(a.logger)

	a.logger.Debug("configuration loaded",
		"config", a.configPath,
		"series", cfg.Series().String(),
		"driver", cfg.Database.Driver,
	)
	return nil
}

func (a *app) fetcher() *exchange.Fetcher {
	client := exchange.NewClient(
		a.cfg.Exchange.RestURL,
		exchange.WithTimeout(a.cfg.Exchange.Timeout),
		exchange.WithLogger(a.logger),
	)
	return exchange.NewFetcher(client, a.cfg.Exchange.Source, a.logger)
}

func (a *app) openStore(cmd *cobra.Command) (store.Store, error) {
	return store.Open(cmd.Context(), a.cfg.Database, a.logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
