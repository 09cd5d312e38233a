// Command travelagent runs the travel-planning conversation core from a
// terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sehgal-vip/travel-agent/config"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "travelagent",
	Short: "Multi-handler travel planning assistant",
	Long: `travelagent routes each message to one of several specialist handlers
(onboarding, research, prioritizer, planner, scheduler, feedback, cost,
librarian), keeps a memory document per handler, and persists the trip
between turns.

Run "travelagent chat" to start a conversation.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logging.SetLogger(logging.New(os.Stderr, "text", "debug"))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(chatCmd, listCmd, retireCmd, statsCmd, cleanupCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
