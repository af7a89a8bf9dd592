package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/kalambet/qadesk/internal/config"
	"github.com/kalambet/qadesk/internal/conversation"
	"github.com/kalambet/qadesk/internal/document"
	"github.com/kalambet/qadesk/internal/workflow"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Submit a web page and/or text to the service",
	Long: `Submit a web page and/or text to the service. When both a URL and text are
given the two submissions run concurrently.

Examples:
  qadesk ingest --url https://example.com/pricing
  qadesk ingest --text "Parking is free behind the building"
  qadesk ingest --file ./handbook.pdf --url https://example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")

		if url == "" && text == "" && file == "" {
			return fmt.Errorf("one of --url, --text, or --file is required")
		}
		if file != "" {
			content, err := document.ReadText(file)
			if err != nil {
				return err
			}
			text = content
		}

		s, err := newSession()
		if err != nil {
			return err
		}

		outcomes, err := runIngest(cmd.Context(), s.client, url, text)
		if err != nil {
			return err
		}
		return reportIngest(outcomes)
	},
}

func init() {
	ingestCmd.Flags().String("url", "", "web page to scrape")
	ingestCmd.Flags().String("text", "", "text content to add")
	ingestCmd.Flags().String("file", "", "read the text content from a file (.pdf or UTF-8 text)")
	ingestCmd.MarkFlagsMutuallyExclusive("text", "file")
}

type ingestOutcome struct {
	Workflow string
	State    workflow.State[string]
}

// runIngest submits url and text through their workflows concurrently and
// returns the settled state of each workflow that ran. Both inputs are
// validated before anything is sent.
func runIngest(ctx context.Context, sender workflow.Sender, url, text string) ([]ingestOutcome, error) {
	type job struct {
		ctrl  *workflow.Controller[string]
		input string
	}
	var jobs []job
	if url != "" {
		jobs = append(jobs, job{workflow.NewURLIngestion(sender, announce(workflow.URLIngestion.Name)), url})
	}
	if text != "" {
		jobs = append(jobs, job{workflow.NewTextIngestion(sender, announce(workflow.TextIngestion.Name)), text})
	}
	for _, j := range jobs {
		if err := j.ctrl.Validate(j.input); err != nil {
			return nil, err
		}
	}

	outcomes := make([]ingestOutcome, len(jobs))
	var g errgroup.Group
	for i, j := range jobs {
		g.Go(func() error {
			st, err := j.ctrl.Run(ctx, j.input)
			outcomes[i] = ingestOutcome{Workflow: j.ctrl.Name(), State: st}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func announce(name string) workflow.ControllerOption[string] {
	return workflow.WithObserver(func(st workflow.State[string]) {
		if st.Status == workflow.StatusPending {
			printStep("%s: submitting", name)
		}
	})
}

func reportIngest(outcomes []ingestOutcome) error {
	failed := 0
	for _, o := range outcomes {
		if o.State.Status == workflow.StatusFailed {
			failed++
			printError("%s: %s", o.Workflow, o.State.Result)
			continue
		}
		printSuccess("%s: %s", o.Workflow, o.State.Result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(outcomes))
	}
	return nil
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [question...]",
	Short: "Ask questions about the ingested content",
	Long: `Ask questions about the ingested content. With a question argument one turn
is run and the answer printed; without, questions are read line by line from
stdin until EOF or /exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exportPath, _ := cmd.Flags().GetString("export")

		s, err := newSession()
		if err != nil {
			return err
		}
		conv := conversation.New(s.client,
			conversation.WithGreeting(s.cfg.Chat.Greeting),
			conversation.WithLogger(s.logger),
		)

		if len(args) > 0 {
			if err := chatOnce(cmd.Context(), conv, cmd.OutOrStdout(), strings.Join(args, " ")); err != nil {
				return err
			}
		} else {
			in := cmd.InOrStdin()
			if err := runREPL(cmd.Context(), conv, in, cmd.OutOrStdout(), isTerminal(in)); err != nil {
				return err
			}
		}

		if exportPath != "" {
			if err := exportTranscript(conv, exportPath); err != nil {
				return err
			}
			printSuccess("Transcript written to %s", exportPath)
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().String("export", "", "write the transcript to this file when done (.yaml/.yml for YAML, JSON otherwise)")
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func chatOnce(ctx context.Context, conv *conversation.Controller, out io.Writer, question string) error {
	reply, err := conv.Ask(ctx, question)
	if err != nil {
		return err
	}
	printReply(out, reply)
	return nil
}

// runREPL reads one question per line. Prompts are only written when
// interactive is set.
func runREPL(ctx context.Context, conv *conversation.Controller, in io.Reader, out io.Writer, interactive bool) error {
	if interactive {
		t := conv.Transcript()
		printReply(out, conversation.Reply{Message: t[len(t)-1]})
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if interactive {
			fmt.Fprint(out, colorize(colorBold, "you> "))
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		reply, err := conv.Ask(ctx, line)
		if err != nil {
			if errors.Is(err, conversation.ErrEmpty) {
				continue
			}
			return err
		}
		printReply(out, reply)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func printReply(out io.Writer, r conversation.Reply) {
	c := colorCyan
	if r.Failed {
		c = colorRed
	}
	fmt.Fprintf(out, "%s %s\n", colorize(c, "assistant>"), r.Message.Content)
}

func exportTranscript(conv *conversation.Controller, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := conv.Export(f, conversation.FormatForPath(path)); err != nil {
		f.Close()
		return fmt.Errorf("exporting transcript: %w", err)
	}
	return f.Close()
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the service is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		printStatus("Service", "%s", s.client.BaseURL())
		hs, err := s.client.Health(cmd.Context())
		if err != nil {
			printStatus("Health", "unreachable")
			return err
		}
		printStatus("Health", "%s (%s)", hs.Status, hs.Message)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
