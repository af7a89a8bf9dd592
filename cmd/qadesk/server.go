package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/qadesk/internal/api"
	"github.com/kalambet/qadesk/internal/conversation"
	"github.com/kalambet/qadesk/internal/storage"
	"github.com/kalambet/qadesk/internal/stub"
	"github.com/kalambet/qadesk/internal/workflow"
)

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local Q&A service (foreground)",
	Long: `Run a local Q&A service that stores scraped pages and text in SQLite and
answers questions from the stored content. Requires QADESK_API_TOKEN on every
request except /health when that variable is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Stub.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.Stub.DataDir, _ = cmd.Flags().GetString("data-dir")
		}
		host, _ := cmd.Flags().GetString("host")

		return runStub(cmd.Context(), stubOptions{
			Addr:    net.JoinHostPort(host, fmt.Sprint(cfg.Stub.Port)),
			DataDir: cfg.Stub.DataDir,
			Token:   cfg.Service.APIToken,
		})
	},
}

func init() {
	stubCmd.Flags().Int("port", 8000, "port to listen on (overrides stub.port)")
	stubCmd.Flags().String("host", "127.0.0.1", "interface to listen on")
	stubCmd.Flags().String("data-dir", "", `directory for the content database, or ":memory:" (overrides stub.data_dir)`)
}

type stubOptions struct {
	Addr    string
	DataDir string
	Token   string
}

func runStub(ctx context.Context, opts stubOptions) error {
	fmt.Fprintf(errOut, "qadesk version %s\n", version)

	store, err := storage.Open(opts.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()
	if opts.DataDir == ":memory:" {
		printWarning("content is kept in memory and lost on exit; use --data-dir to persist it")
	}

	handler := stub.NewHandler(stub.Deps{
		Store:      store,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Token:      opts.Token,
		Logger:     slog.Default(),
	})

	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		printSuccess("qadesk stub listening on %s", opts.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(errOut, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the ingestion and chat tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			URL:  workflow.NewURLIngestion(s.client, workflow.WithLogger[string](s.logger)),
			Text: workflow.NewTextIngestion(s.client, workflow.WithLogger[string](s.logger)),
			Chat: conversation.New(s.client,
				conversation.WithGreeting(s.cfg.Chat.Greeting),
				conversation.WithLogger(s.logger),
			),
			Version: version,
		})

		slog.Info("MCP server started (stdio transport)", "service", s.client.BaseURL())
		stdioSrv := server.NewStdioServer(mcpSrv)
		if err := stdioSrv.Listen(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}
