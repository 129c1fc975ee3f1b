package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rendis/fieldflow/internal/loader"
	"github.com/rendis/fieldflow/internal/logging"
	"github.com/rendis/fieldflow/internal/retention"
	"github.com/rendis/fieldflow/internal/store"
	"github.com/rendis/fieldflow/internal/streaming"
	"github.com/rendis/fieldflow/internal/validation"
	"github.com/rendis/fieldflow/pkg/mcp"
)

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\nusage: fieldflow [serve|validate|version]\n", cmd)
		os.Exit(2)
	}
}

// runServe starts the MCP server on stdio with the full collaborator stack.
func runServe() int {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("cannot create data directory", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		logger.Error("cannot open store", slog.String("error", err.Error()))
		return 1
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logger.Error("migration failed", slog.String("error", err.Error()))
		return 1
	}

	validator, err := validation.NewDefinitionValidator()
	if err != nil {
		logger.Error("cannot build validator", slog.String("error", err.Error()))
		return 1
	}

	sweeper, err := retention.NewSweeper(st, retention.Policy{
		Schedule:         cfg.RetentionSchedule,
		MaxAge:           cfg.retentionMaxAge(),
		VacuumAfterSweep: cfg.VacuumAfterSweep,
	}, logger)
	if err != nil {
		logger.Error("cannot build retention sweeper", slog.String("error", err.Error()))
		return 1
	}
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("cannot start retention sweeper", slog.String("error", err.Error()))
		return 1
	}
	defer func() { _ = sweeper.Stop() }()

	srv := mcp.NewFieldflowServer(mcp.FieldflowServerDeps{
		Store:     st,
		Hub:       streaming.NewMemoryHub(),
		Validator: validator,
		Logger:    logger,
	})
	defer srv.Close()

	logger.Info("fieldflow serving on stdio", slog.String("db", cfg.DBPath))
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

// runValidate checks a definition file and prints all issues.
func runValidate(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: fieldflow validate <definition.(json|yaml)>")
		return 2
	}

	def, err := loader.LoadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	validator, err := validation.NewDefinitionValidator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	result := validator.ValidateDefinition(def)
	for _, issue := range result.Warnings {
		fmt.Printf("warning: %s\n", issue)
	}
	for _, issue := range result.Errors {
		fmt.Printf("error: %s\n", issue)
	}
	if !result.Valid() {
		fmt.Printf("invalid: %d errors, %d warnings\n", len(result.Errors), len(result.Warnings))
		return 1
	}
	fmt.Printf("valid: %d questions, %d warnings\n", len(def.Questions), len(result.Warnings))
	return 0
}

// newLogger builds the process logger. Logs go to stderr: stdout carries the
// MCP stdio transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
