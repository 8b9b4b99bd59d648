package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"relevancy/internal/api"
	"relevancy/internal/cache"
	"relevancy/internal/config"
	"relevancy/internal/service/workspace"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relevancy predictor web form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.BasicConfig.ServerAddress = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides basic_config.server_address)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	cleaner := workspace.NewCleaner(a.workspace, a.sessions, func(ctx context.Context, sessionID string) {
		if err := a.flow.End(ctx, sessionID); err != nil {
			log.Warn().Err(err).Str("session", sessionID).Msg("end expired session failed")
		}
	})
	if err := cleaner.Start(ctx, cfg.BasicConfig.CleanupSchedule); err != nil {
		return err
	}
	if shared, ok := a.cache.(*cache.Redis); ok {
		err := shared.Listen(ctx, func(sessionID string) {
			if a.flow.CancelPrediction(sessionID) {
				log.Info().Str("session", sessionID).Msg("prediction canceled by another instance")
			}
		})
		if err != nil {
			return err
		}
	}

	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger())
	api.NewHandler(a.flow, a.sessions, a.workspace, cfg.Predictor.Endpoint).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("predictor", cfg.Predictor.Endpoint).Msg("relevancy server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
