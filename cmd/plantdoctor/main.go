package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "plantdoctor",
	Short: "Diagnose houseplants and keep track of their watering",
	Long: `plantdoctor diagnoses sick houseplants from a photo and a short
questionnaire, keeps a record of each plant and reminds you when to water it.

Run the HTTP API with "serve", the Telegram bot with "bot", or use the
account and plant commands directly from the shell.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, botCmd, migrateCmd)
	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd, whoamiCmd, upgradeCmd)
	rootCmd.AddCommand(plantsCmd, diagnoseCmd, waterCmd, photoCmd, deleteCmd)
}
