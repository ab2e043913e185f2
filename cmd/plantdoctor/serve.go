package main

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/digkill/PlantDoctor/internal/api"
	"github.com/digkill/PlantDoctor/internal/config"
	"github.com/digkill/PlantDoctor/internal/database"
	"github.com/digkill/PlantDoctor/internal/telegram"
)

var serveWithBot bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.cfg.RequireAPI(); err != nil {
				return err
			}
			if serveWithBot {
				if err := a.cfg.RequireBot(); err != nil {
					return err
				}
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				tokens := api.NewTokenIssuer(a.cfg.JWTSecret, a.cfg.SessionTTL)
				srv := api.NewServer(a.cfg.APIListenAddr, a.log, tokens, a.sessions, a.home, a.plants, a.diagnoses, a.catalog)
				return ignoreCanceled(srv.Run(ctx))
			})
			if serveWithBot {
				g.Go(func() error {
					return ignoreCanceled(runBot(ctx, a))
				})
			}
			return g.Wait()
		})
	},
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.cfg.RequireBot(); err != nil {
				return err
			}
			return ignoreCanceled(runBot(cmd.Context(), a))
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the key-value table in the configured SQL database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if cfg.StoreDriver == config.StoreMemory {
			fmt.Fprintln(cmd.OutOrStdout(), "memory store needs no migration")
			return nil
		}
		db, err := database.Connect(cfg)
		if err != nil {
			return fmt.Errorf("database connect: %w", err)
		}
		defer db.Close()
		if err := database.Migrate(cmd.Context(), db, cfg.StoreDriver); err != nil {
			return fmt.Errorf("database migrate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.StoreDriver)
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithBot, "with-bot", false, "also run the Telegram bot")
}

func runBot(ctx context.Context, a *app) error {
	botAPI, err := tgbotapi.NewBotAPI(a.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}
	bot := telegram.NewBot(a.cfg, botAPI, a.log, a.sessions, a.diagnoses, a.plants, a.home, a.catalog)
	return bot.Run(ctx)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
