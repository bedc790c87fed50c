// Package main implements the capsuleforge CLI - a distributed LLM
// orchestrator that turns a natural-language product description into a
// validated, packaged code capsule.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/capsuleforge/core/internal/config"
	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/runtime"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		tenantID   string
		userID     string
	)

	rootCmd := &cobra.Command{
		Use:   "capsuleforge [description]",
		Short: "Distributed LLM code-generation orchestrator",
		Long: `Capsuleforge decomposes a product description into tasks, routes each
to the right agent tier, validates and sandboxes the result, scores its
confidence, and assembles a packaged code capsule.

Run without arguments for interactive REPL mode, or provide a description
for one-shot execution.`,
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestrator(cmd.Context(), configPath, tenantID, userID, args)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.Flags().StringVar(&tenantID, "tenant", "default", "Tenant id for submitted requests")
	rootCmd.Flags().StringVar(&userID, "user", "cli", "User id for submitted requests")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func runOrchestrator(ctx context.Context, configPath, tenantID, userID string, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	app := NewApp(cfg, logger)
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	defer app.Shutdown(5 * time.Second)

	if len(args) > 0 {
		return runOneShot(ctx, app, tenantID, userID, strings.Join(args, " "))
	}
	return runREPL(ctx, app, tenantID, userID)
}

func newRequest(tenantID, userID, description string) *domain.Request {
	return &domain.Request{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		Description: description,
		CreatedAt:   time.Now(),
	}
}

func runOneShot(ctx context.Context, app *App, tenantID, userID, description string) error {
	req := newRequest(tenantID, userID, description)
	workflowID, err := app.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Printf("Workflow %s submitted\n", workflowID)

	status, err := awaitCompletion(ctx, app, workflowID)
	if err != nil {
		return err
	}
	printStatus(status)
	if status.Stage == domain.StageFailed {
		return fmt.Errorf("workflow failed")
	}
	return nil
}

// awaitCompletion polls Query until the workflow reaches a terminal stage,
// a human-review pause, or ctx is cancelled.
func awaitCompletion(ctx context.Context, app *App, workflowID string) (runtime.Status, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return runtime.Status{}, ctx.Err()
		case <-ticker.C:
			s, err := app.Status(workflowID)
			if err != nil {
				return runtime.Status{}, err
			}
			switch s.Stage {
			case domain.StageCompleted, domain.StageFailed, domain.StageCancelled, domain.StageHumanReview:
				return s, nil
			}
		}
	}
}

func printStatus(status runtime.Status) {
	fmt.Printf("Stage: %s\n", status.Stage)
	switch {
	case status.Capsule != nil:
		fmt.Printf("Capsule checksum: %s\n", status.Capsule.Checksum)
		fmt.Println(status.Capsule.Documentation)
	case status.ErrorCapsule != nil:
		fmt.Println(status.ErrorCapsule.README)
	case status.Err != "":
		fmt.Fprintf(os.Stderr, "Error: %s\n", status.Err)
	}
}

// runREPL runs an interactive loop: each line submits a new request and
// blocks until it finishes or pauses for human review, printing the
// outcome before reading the next line.
func runREPL(ctx context.Context, app *App, tenantID, userID string) error {
	fmt.Println("capsuleforge - distributed LLM code-generation orchestrator")
	fmt.Println("Type a product description, or 'quit'/'exit' to exit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := runOneShot(ctx, app, tenantID, userID, line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}
