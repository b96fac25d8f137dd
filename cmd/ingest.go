package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mentora-ai/mentora/internal/app"
	"github.com/mentora-ai/mentora/internal/extract"
	"github.com/mentora-ai/mentora/internal/knowledge"
	"github.com/mentora-ai/mentora/internal/rag"
)

var (
	ingestTitle   string
	ingestSource  string
	ingestID      string
	ingestSubject string
	ingestTags    []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a document into your knowledge base",
	Long: `Ingest reads the given file (PDF or plain text), splits it into
chunks, embeds them and indexes them for retrieval. Re-ingesting the
same file updates the existing entry instead of duplicating it.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "entry title (default: file name)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", string(knowledge.SourceText), "source type: quiz, notebook, pdf, manual or text")
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "source id (default: file name)")
	ingestCmd.Flags().StringVar(&ingestSubject, "subject", "", "subject tag for ranking")
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tags", nil, "comma-separated tags")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}
	path := args[0]

	var content string
	source := knowledge.Source(ingestSource)
	if extract.IsPDF(path) {
		text, err := extract.FromPDF(path)
		if err != nil {
			return err
		}
		content = text
		if !cmd.Flags().Changed("source") {
			source = knowledge.SourcePDF
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		content = string(data)
	}

	name := filepath.Base(path)
	title := ingestTitle
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	sourceID := ingestID
	if sourceID == "" {
		sourceID = name
	}

	ctx := cmd.Context()
	a, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	report, err := a.Engine.Ingest(ctx, rag.IngestRequest{
		OwnerID:  ownerID,
		ScopeID:  scopeID,
		Title:    title,
		Content:  content,
		Source:   source,
		SourceID: sourceID,
		Metadata: knowledge.Metadata{
			Subject: ingestSubject,
			Tags:    ingestTags,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %q: %d chunks stored", title, report.ChunksStored)
	if report.ChunksFailed > 0 {
		fmt.Printf(", %d failed", report.ChunksFailed)
	}
	fmt.Println()
	return nil
}
