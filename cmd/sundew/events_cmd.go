package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/config"
	"github.com/sundew-sh/sundew/internal/models"
	"github.com/sundew-sh/sundew/internal/storage"
)

// withStore opens the configured database for an operator read command.
func withStore(fn func(store *storage.Manager) error) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	store, err := storage.NewManager(cfg.Storage.Database, "", zap.NewNop().Sugar())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect captured request events",
	}

	var limit int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recent events, newest first",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withStore(func(store *storage.Manager) error {
				events, err := store.GetRecentEvents(limit)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	recentCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum events to print")

	var classLimit int
	byClassCmd := &cobra.Command{
		Use:   "by-class <classification>",
		Short: "Print recent events with the given classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			class := models.Classification(args[0])
			if !class.Valid() {
				return fmt.Errorf("unknown classification %q", args[0])
			}
			return withStore(func(store *storage.Manager) error {
				events, err := store.GetEventsByClassification(class, classLimit)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	byClassCmd.Flags().IntVarP(&classLimit, "limit", "n", 20, "Maximum events to print")

	cmd.AddCommand(recentCmd, byClassCmd)
	return cmd
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect tracked sessions",
	}

	var limit int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recent sessions, newest first",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withStore(func(store *storage.Manager) error {
				sessions, err := store.GetRecentSessions(limit)
				if err != nil {
					return err
				}
				return printJSON(sessions)
			})
		},
	}
	recentCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to print")

	cmd.AddCommand(recentCmd)
	return cmd
}
