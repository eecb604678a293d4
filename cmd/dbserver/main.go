// Package main provides the dbserver command, a Model Context Protocol
// server exposing an e-commerce SQLite database over standard input/output.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/deasyyulanda-debug/a-kp-mcp-project"
	"github.com/deasyyulanda-debug/a-kp-mcp-project/config"
	"github.com/deasyyulanda-debug/a-kp-mcp-project/servers/database"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

var (
	cfgFile string
	cfg     *config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbserver",
		Short: "MCP server for a sample e-commerce database",
		Long: `dbserver exposes a read-only e-commerce SQLite database to MCP clients
over stdio: table schemas and statistics as resources, guarded SQL query
tools, and analysis prompt templates.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			var err error
			cfg, err = config.Load(cfgFile, cmd.Root().PersistentFlags())
			return err
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default "+config.ConfigFileName+")")
	flags.String("database-path", "", "SQLite database file (\":memory:\" for in-memory)")
	flags.Int("pool-size", 0, "connections kept open")
	flags.Int("max-overflow", 0, "extra connections allowed under load")
	flags.Duration("acquire-timeout", 0, "how long to wait for a free connection")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd(), newSeedCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the database over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and populate it with sample data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context())
		},
	}
}

// newLogger writes structured logs to stderr; stdout carries the protocol.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openStore(logger *slog.Logger) (*database.Store, error) {
	store, err := database.Open(database.StoreConfig{
		Path:           cfg.DatabasePath,
		PoolSize:       cfg.PoolSize,
		MaxOverflow:    cfg.MaxOverflow,
		AcquireTimeout: cfg.AcquireTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.LogLevel)

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	guard := database.Guard{
		MaxQueryLength:  cfg.MaxQueryLength,
		DefaultRowLimit: cfg.DefaultRowLimit,
		MaxRowLimit:     cfg.MaxRowLimit,
	}
	dbServer := database.NewServer(store, guard, logger)

	transport := mcp.NewStdIO(os.Stdin, os.Stdout)
	srv := mcp.NewServer(mcp.Info{Name: "dbserver", Version: Version}, transport,
		mcp.WithResourceServer(dbServer),
		mcp.WithToolServer(dbServer),
		mcp.WithPromptServer(dbServer),
		mcp.WithServerLogger(logger),
		mcp.WithInstructions("Query the sample e-commerce database. Only SELECT statements are accepted."),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.Serve()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("Serving database over stdio.", "database", cfg.DatabasePath, "commit", GitCommit)
	return g.Wait()
}

func runSeed(ctx context.Context) error {
	logger := newLogger(cfg.LogLevel)

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Seed(ctx, database.SeedOptions{}); err != nil {
		return err
	}
	fmt.Println("Database seeded.")
	return nil
}
