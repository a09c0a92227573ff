package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/config"
	sqliteRepo "github.com/sakif/alternatives/internal/repository/sqlite"
	"github.com/sakif/alternatives/internal/server"
	"github.com/sakif/alternatives/internal/trending"
)

type rootOptions struct {
	configFile string
	dbPath     string
	loader     *config.Loader
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "alternatives",
		Short:         "Directory of open-source tools and their alternatives",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "ingest",
			Short: "Run one GitHub trends ingestion pass",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runIngest(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or upgrade the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd, opts)
			},
		},
		newHashSecretCmd(),
	)

	return root
}

// load reads .env, the config file and the environment, then applies flags.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}

	o.loader = config.NewLoader(o.configFile)
	cfg, err := o.loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}

	logger, err := newLogger(os.Stdout, cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// ensureDBDir creates the parent directory of a file database (mkdir -p).
func ensureDBDir(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}

func runServe(_ *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	if err := ensureDBDir(cfg.Database.Path); err != nil {
		return err
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// The admin list is the one setting that reloads without a restart.
	if opts.loader.Watch(logger, func(next *config.Config) {
		srv.Admins().Replace(next.Auth.AdminUserIDs)
		logger.Info("admin list reloaded", slog.Int("admins", srv.Admins().Count()))
	}) {
		logger.Info("watching config file", slog.String("file", opts.configFile))
	}

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}

func runIngest(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	if err := ensureDBDir(cfg.Database.Path); err != nil {
		return err
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A separate process has no cache to invalidate; the server's entries
	// expire on their own TTL.
	job := trending.NewJob(trending.NewClient(cfg.Trending.FeedURL, cfg.Trending.Timeout), db, nil, logger)
	summary, err := job.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Ingestion complete. "+summary.String())
	return nil
}

func runMigrate(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	if err := ensureDBDir(cfg.Database.Path); err != nil {
		return err
	}

	// sqlite.New applies the schema as part of opening.
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	if err := db.Ping(context.Background()); err != nil {
		db.Close()
		return err
	}
	logger.Info("database schema is up to date", slog.String("database", cfg.Database.Path))
	return db.Close()
}

func newHashSecretCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-secret <secret>",
		Short: "Print the bcrypt hash of a cron secret",
		Long: "Print the bcrypt hash of a cron secret. Put the output in CRON_SECRET_HASH\n" +
			"so the plain secret never has to live in the server's environment.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return errors.New("secret must not be empty")
			}
			hash, err := auth.HashSecret(args[0], cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", auth.DefaultSecretCost, "bcrypt cost")
	return cmd
}
