package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"kotoba/internal/domain/config"
	"kotoba/internal/store"
)

// Version is set at build time.
var Version = "dev"

// env is what every subcommand shares once the root pre-run has loaded the
// configuration.
type env struct {
	cfgPath string
	verbose bool

	cfg      config.Config
	log      *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "kotoba",
		Short:         "Japanese-first publishing platform",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.closeLog != nil {
				_ = e.closeLog()
			}
		},
	}
	root.PersistentFlags().StringVarP(&e.cfgPath, "config", "c", "site.yaml", "path to the site configuration")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCmd(e),
		newImportCmd(e),
		newExportCmd(e),
		newHashtagsCmd(e),
		newReindexCmd(e),
	)
	return root
}

func (e *env) load() error {
	cfg, err := config.Load(e.cfgPath)
	if err != nil {
		return fmt.Errorf("config %s: %w", e.cfgPath, err)
	}
	if e.verbose {
		cfg.Log.Level = "debug"
	}
	e.cfg = cfg
	e.log, e.closeLog = config.SetupLogger(cfg.Log)
	slog.SetDefault(e.log)
	return nil
}

func (e *env) openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(e.cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	st, err := store.Open(store.OpenOptions{Path: e.cfg.Store.Path, Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", e.cfg.Store.Path, err)
	}
	return st, nil
}

func (e *env) location() *time.Location {
	if loc, err := time.LoadLocation(e.cfg.Site.TimeZone); err == nil {
		return loc
	}
	return time.Local
}

// withStore opens the store for the duration of fn.
func (e *env) withStore(ctx context.Context, fn func(ctx context.Context, st *store.Store) error) error {
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}
