package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sehgal-vip/travel-agent/state"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			ids, err := a.sessions.List(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				title := ""
				if st, err := a.sessions.Load(ctx, id); err == nil {
					title = st.DisplayTitle()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, title)
			}
			return nil
		})
	},
}

var retireCmd = &cobra.Command{
	Use:   "retire <conversation-id>",
	Short: "Delete a conversation and its memory documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.runner.Retire(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retired %s\n", args[0])
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <conversation-id>",
	Short: "Show memory document sizes for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			stats, err := a.memory.Stats(args[0])
			if err != nil {
				return err
			}
			for _, name := range state.SortedKeys(stats) {
				s := stats[name]
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %7d bytes  ~%6d tokens  notes=%t\n",
					name, s.SizeBytes, s.EstimatedTokens, s.HasNotes)
			}
			return nil
		})
	},
}

var (
	cleanupAge time.Duration
	cleanupDry bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove memory documents of conversations idle past the stale age",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			age := cleanupAge
			if age <= 0 {
				age = a.cfg.Memory.StaleAfter
			}
			return runCleanup(ctx, cmd.OutOrStdout(), a.memory, age, cleanupDry)
		})
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupAge, "max-age", 0, "idle age before removal (default from config)")
	cleanupCmd.Flags().BoolVar(&cleanupDry, "dry-run", false, "list the conversations that would be removed without removing them")
}

type staleMemory interface {
	BaseDir() string
	StaleCandidates(ctx context.Context, maxAge time.Duration) ([]string, error)
	CleanupStale(ctx context.Context, maxAge time.Duration) ([]string, error)
}

// runCleanup removes idle conversations, or with dry set prints the
// settings and the conversations that would go.
func runCleanup(ctx context.Context, out io.Writer, mem staleMemory, age time.Duration, dry bool) error {
	if dry {
		candidates, err := mem.StaleCandidates(ctx, age)
		if err != nil {
			return err
		}
		if candidates == nil {
			candidates = []string{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"data_dir":     mem.BaseDir(),
			"max_age":      age.String(),
			"would_remove": candidates,
		})
	}
	removed, err := mem.CleanupStale(ctx, age)
	if err != nil {
		return err
	}
	for _, id := range removed {
		fmt.Fprintf(out, "removed %s\n", id)
	}
	fmt.Fprintf(out, "%d conversation(s) cleaned up\n", len(removed))
	return nil
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}
