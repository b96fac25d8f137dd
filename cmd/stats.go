package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mentora-ai/mentora/internal/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}

	ctx := cmd.Context()
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	stats, err := a.Engine.TenantStats(ctx, ownerID, scopeID)
	if err != nil {
		return err
	}
	fmt.Printf("Entries: %d\n", stats.Entries)
	fmt.Printf("Indexed chunks: %d\n", stats.Points)
	return nil
}
