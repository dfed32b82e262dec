package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/creatory/creatory/internal/auth"
	"github.com/creatory/creatory/internal/config"
	"github.com/creatory/creatory/internal/db"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "creatory",
		Short:         "Creator workflow backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: ./config.yaml if present)")

	load := func() (*config.Config, error) {
		var (
			cfg *config.Config
			err error
		)
		if configPath != "" {
			cfg, err = config.Load(configPath)
		} else {
			cfg, err = config.LoadDefault()
		}
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		setupLogging(cfg.Log)
		return cfg, nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API with the background worker",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return report(err)
				}
				return report(serve(cmd.Context(), cfg))
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Run only the background worker",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return report(err)
				}
				return report(runWorker(cmd.Context(), cfg))
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return report(err)
				}
				return report(migrate(cmd.Context(), cfg))
			},
		},
		newTokenCmd(load),
	)
	return root
}

func newTokenCmd(load func() (*config.Config, error)) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return report(err)
			}
			issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
			if err != nil {
				return report(err)
			}
			tok, err := issuer.Issue(subject)
			if err != nil {
				return report(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id to put in the token")
	cmd.MarkFlagRequired("sub")
	return cmd
}

// report logs err once so every subcommand fails the same way.
func report(err error) error {
	if err != nil {
		slog.Error("command failed", "err", err)
	}
	return err
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signalContext(parent)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           app.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting creatory server", "addr", srv.Addr, "env", cfg.Env, "store", app.storeKind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return app.worker.Run(gctx)
	})
	return g.Wait()
}

func runWorker(parent context.Context, cfg *config.Config) error {
	ctx, stop := signalContext(parent)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.worker.Run(ctx)
}

func migrate(parent context.Context, cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return errors.New("migrate needs database.url or DATABASE_URL")
	}
	ctx, stop := signalContext(parent)
	defer stop()

	conn, err := db.New(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("database schema up to date")
	return nil
}
