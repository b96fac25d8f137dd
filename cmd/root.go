// Package cmd implements the mentora command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	ownerID   string
	scopeID   string
	sessionID string
)

var rootCmd = &cobra.Command{
	Use:   "mentora",
	Short: "Mentora - answer questions grounded in your own study materials",
	Long: `Mentora ingests your notes, quizzes and documents into a private
knowledge base and answers questions grounded in that material instead
of relying on the model's general training alone.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "", "owner id of the knowledge base (required)")
	rootCmd.PersistentFlags().StringVar(&scopeID, "scope", "", "scope id (e.g. a notebook), empty for the global base")
}
