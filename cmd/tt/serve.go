package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasktree/internal/app"
	"tasktree/internal/notify"
	"tasktree/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log)
			slog.SetDefault(logger)
			if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowActorHeader {
				return fmt.Errorf("auth.jwt_secret (or TASKTREE_JWT_SECRET) is required for bearer auth")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			metrics := server.NewMetrics()
			if cfg.Relay.Enabled {
				pub, err := notify.NewNATSPublisher(cfg.NATS.URL, "tasktree")
				if err != nil {
					return err
				}
				defer pub.Close()
				relay := &notify.Relay{
					Source:        a.Engine.Repo,
					Publisher:     pub,
					SubjectPrefix: cfg.NATS.SubjectPrefix,
					Interval:      cfg.RelayInterval(),
					Batch:         cfg.Relay.Batch,
					Logger:        logger.With("component", "relay"),
					Published:     metrics.RelayPublished,
				}
				if err := relay.Start(ctx); err != nil {
					return err
				}
				defer relay.Stop()
				logger.Info("event relay started", "nats", cfg.NATS.URL, "subject_prefix", cfg.NATS.SubjectPrefix)
			}

			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:        cfg.Auth.JWTSecret,
					AllowActorHeader: cfg.Auth.AllowActorHeader,
					TokenTTL:         cfg.TokenTTL(),
				},
				Logger:  logger,
				Metrics: metrics,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving tasktree API", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath, "docs", "/docs", "metrics", "/metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "", "listen address (overrides config)")
	flags.String("base-path", "", "API base path (overrides config)")
	flags.String("jwt-secret", "", "HS256 secret for bearer tokens")
	flags.String("nats-url", "", "NATS server URL for the event relay")
	flags.String("subject-prefix", "", "NATS subject prefix")
	flags.Bool("relay", false, "publish events to NATS")
	flags.Bool("allow-actor-header", false, "trust X-Actor-Id without credentials (development only)")
	flags.String("log-format", "", "log format (text or json)")
	for _, name := range []string{"addr", "base-path", "jwt-secret", "nats-url", "subject-prefix", "relay", "allow-actor-header", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	return cmd
}
