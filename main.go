package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"relevancy/internal/cache"
	"relevancy/internal/config"
	"relevancy/internal/filestore"
	"relevancy/internal/flow"
	"relevancy/internal/predictor"
	"relevancy/internal/redis"
	"relevancy/internal/service/workspace"
	"relevancy/internal/session"
	"relevancy/internal/storage"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "relevancy",
		Short: "Predict the relevancy of spreadsheet rows to a free-text query",
		Long: `relevancy serves a single-page form that uploads an xlsx workbook, sends it
with a query to the remote relevancy predictor and shows the annotated result.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to config.json or config.yaml (default: $"+config.EnvConfigPath+" or ./config.json)")
	rootCmd.AddCommand(newServeCmd(), newPredictCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.BasicConfig)
	return cfg, nil
}

func setupLogging(basic config.BasicConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(strings.ToLower(basic.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if strings.EqualFold(basic.LogFormat, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// app holds the services shared by every command.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	rdb       *redis.Client
	cache     cache.Cache
	sessions  *session.Service
	workspace *workspace.Service
	flow      *flow.Flow
}

func newApp(cfg *config.Config) (*app, error) {
	driver := cfg.BasicConfig.DatabaseDriver
	db, err := storage.Open(driver, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a := &app{cfg: cfg, db: db}
	ttl := time.Duration(cfg.BasicConfig.SessionTTLMinutes) * time.Minute
	if cfg.Redis.Enabled {
		rdb, err := redis.Connect(cfg.Redis)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		a.rdb = rdb
		a.cache = cache.NewRedis(rdb, ttl)
		log.Info().Str("host", cfg.Redis.Host).Int("port", cfg.Redis.Port).Msg("redis cache enabled")
	} else {
		a.cache = cache.NewMemory()
	}

	a.sessions = session.NewService(db, a.rdb, ttl)
	a.workspace = workspace.NewService(db)
	timeout := time.Duration(cfg.Predictor.TimeoutSeconds) * time.Second
	a.flow = flow.New(flow.Deps{
		Store:     filestore.New(cfg.BasicConfig.UploadDir),
		Predictor: predictor.NewClient(cfg.Predictor.Endpoint, timeout),
		Cache:     a.cache,
		Records:   a.workspace,
	}, flow.Policy{
		ClearOnFailure: cfg.Flow.ClearOnFailure,
		PreviewRows:    cfg.Flow.PreviewRows,
	})
	return a, nil
}

func (a *app) Close() {
	a.flow.Shutdown()
	if a.rdb != nil {
		a.rdb.Close()
	}
	a.db.Close()
}
