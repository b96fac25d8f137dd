package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mentora-ai/mentora/internal/app"
	"github.com/mentora-ai/mentora/internal/knowledge"
)

var forgetSource string

var forgetCmd = &cobra.Command{
	Use:   "forget [source-id]",
	Short: "Remove a document from your knowledge base",
	Long: `Forget deletes the document's indexed chunks and marks its entry
inactive. The entry row is retained for audit; it no longer appears in
retrieval.`,
	Args: cobra.ExactArgs(1),
	RunE: runForget,
}

func init() {
	forgetCmd.Flags().StringVar(&forgetSource, "source", string(knowledge.SourceText), "source type of the entry")
	rootCmd.AddCommand(forgetCmd)
}

func runForget(cmd *cobra.Command, args []string) error {
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}

	ctx := cmd.Context()
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	if err := a.Engine.Forget(ctx, ownerID, scopeID, knowledge.Source(forgetSource), args[0]); err != nil {
		return err
	}
	fmt.Printf("Forgot %s/%s\n", forgetSource, args[0])
	return nil
}
