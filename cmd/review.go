package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mentora-ai/mentora/internal/app"
)

var reviewLimit int

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Show what is most worth reviewing right now",
	Long: `Review ranks your materials without a specific question, by recency,
source type and recorded performance.`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 5, "number of entries to show")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, _ []string) error {
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}

	ctx := cmd.Context()
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	candidates, err := a.Engine.Surface(ctx, ownerID, scopeID, reviewLimit)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("Nothing ingested yet.")
		return nil
	}
	for i, c := range candidates {
		fmt.Printf("%d. %s (%s, updated %s)\n",
			i+1, c.Entry.Title, c.Entry.Source, c.Entry.LastUpdated.Format("2006-01-02"))
	}
	return nil
}
