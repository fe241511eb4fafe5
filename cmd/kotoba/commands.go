package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kotoba/internal/build"
	"kotoba/internal/ingest"
	"kotoba/internal/render"
	"kotoba/internal/store"
)

func newImportCmd(e *env) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "import [dir]",
		Short: "Import markdown files with front matter into the store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := e.cfg.Build.SourceDir
			if len(args) == 1 {
				dir = args[0]
			}
			return e.withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				arts, warns, err := ingest.Ingest(ctx, ingest.Options{SourceDir: dir, Location: e.location(), Workers: workers})
				if err != nil {
					return fmt.Errorf("ingest %s: %w", dir, err)
				}
				for _, w := range warns {
					e.log.Warn("ingest", "path", w.Path, "msg", w.Msg)
				}
				rep, err := ingest.NewImporter(st, e.log).Apply(ctx, arts)
				if err != nil {
					return err
				}
				for _, w := range rep.Warnings {
					e.log.Warn("import", "path", w.Path, "msg", w.Msg)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d files: %d created, %d updated, %d unchanged\n",
					len(arts), rep.Created, rep.Updated, rep.Unchanged)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "parser goroutines (default: number of CPUs)")
	return cmd
}

func newExportCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the published site as static files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out != "" {
				e.cfg.Build.PublicDir = out
			}
			tpl, err := render.NewTemplateRenderer(e.cfg.Build.ThemeDir, e.cfg.Site.Theme)
			if err != nil {
				return fmt.Errorf("load theme %s: %w", e.cfg.Site.Theme, err)
			}
			return e.withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				b := &build.Builder{Cfg: e.cfg, Store: st, Renderer: tpl, Logger: e.log}
				res, err := b.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d posts, %d hashtag pages (%d files) to %s\n",
					res.Posts, res.Hashtags, res.Files, e.cfg.Build.PublicDir)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default from config)")
	return cmd
}

func newHashtagsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hashtags",
		Short: "Hashtag maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete hashtags no post uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				n, err := st.DeleteUnusedHashtags(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d unused hashtags\n", n)
				return nil
			})
		},
	})
	return cmd
}

func newReindexCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild listing indexes and hashtag counts from the stored posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				n, err := st.Reindex(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d posts\n", n)
				return nil
			})
		},
	}
}
