package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor     bool
	baseURLFlag string
)

var rootCmd = &cobra.Command{
	Use:   "qadesk",
	Short: "Feed content to a Q&A service and chat about it",
	Long: `qadesk drives a question-answering service: submit web pages or text for
ingestion, then hold a conversation about the stored content.

Examples:
  qadesk stub                                   # run a local service on :8000
  qadesk ingest --url https://example.com/about
  qadesk ingest --text "We are open 9 to 5" --file ./faq.pdf
  qadesk chat "When are you open?"
  qadesk chat --export transcript.yaml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "service base URL (overrides service.base_url)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stubCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError("%v", err)
		stop()
		os.Exit(1)
	}
}
