package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mentora-ai/mentora/internal/answer"
	"github.com/mentora-ai/mentora/internal/app"
	"github.com/mentora-ai/mentora/internal/rag"
)

var askStream bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question grounded in your knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it is generated")
	askCmd.Flags().StringVar(&sessionID, "session", "default", "conversation session id")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}

	ctx := cmd.Context()
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	question := strings.TrimSpace(strings.Join(args, " "))

	var callback answer.StreamCallback
	if askStream {
		callback = func(_ context.Context, delta string) error {
			_, err := fmt.Print(delta)
			return err
		}
	}

	result, err := a.Engine.Ask(ctx, rag.AskRequest{
		OwnerID:   ownerID,
		ScopeID:   scopeID,
		SessionID: sessionID,
		Question:  question,
	}, callback)
	if err != nil {
		return err
	}

	if askStream {
		fmt.Println()
	} else {
		fmt.Println(result.Answer)
	}

	if len(result.Sources) > 0 {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Sources:")
		for _, s := range result.Sources {
			if s.Similarity > 0 {
				fmt.Fprintf(os.Stderr, "  - %s (%s, similarity %.2f)\n", s.Title, s.Category, s.Similarity)
			} else {
				fmt.Fprintf(os.Stderr, "  - %s (%s)\n", s.Title, s.Category)
			}
		}
	}
	fmt.Fprintf(os.Stderr, "Confidence: %d/100\n", result.Confidence)
	return nil
}
