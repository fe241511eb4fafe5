package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kotoba/internal/auth"
	"kotoba/internal/ingest"
	"kotoba/internal/media"
	"kotoba/internal/render"
	"kotoba/internal/serve"
	"kotoba/internal/store"
)

func newServeCmd(e *env) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the site, the JSON API and the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = e.cfg.Server.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return e.withStore(ctx, func(ctx context.Context, st *store.Store) error {
				return runServe(ctx, e, st, addr, watch)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-import the source directory on change and live-reload pages")
	return cmd
}

func runServe(ctx context.Context, e *env, st *store.Store, addr string, watch bool) error {
	tpl, err := render.NewTemplateRenderer(e.cfg.Build.ThemeDir, e.cfg.Site.Theme)
	if err != nil {
		return fmt.Errorf("load theme %s: %w", e.cfg.Site.Theme, err)
	}
	bucket, err := media.New(st, media.Options{
		Root:          e.cfg.Media.Dir,
		PublicBaseURL: e.cfg.Media.PublicBaseURL,
		MaxBytes:      e.cfg.Media.MaxUploadMB << 20,
		Logger:        e.log,
	})
	if err != nil {
		return err
	}
	if e.cfg.Admin.Password == "" {
		e.log.Warn("admin password is not set; admin login is disabled")
	}
	a, err := auth.New(auth.Options{
		Password: e.cfg.Admin.Password,
		Secret:   e.cfg.Admin.JWTSecret,
		TTL:      e.cfg.Admin.SessionTTL,
		Secure:   e.cfg.Admin.SecureCookie,
	})
	if err != nil {
		return err
	}

	srv, err := serve.New(serve.Options{
		Config:   e.cfg,
		Store:    st,
		Renderer: tpl,
		Media:    bucket,
		Auth:     a,
		Importer: ingest.NewImporter(st, e.log),
		Logger:   e.log,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	if watch {
		if err := srv.Reimport(ctx); err != nil {
			return err
		}
		if err := srv.StartWatch(ctx); err != nil {
			return err
		}
	}
	return srv.ListenAndServe(ctx, addr)
}
