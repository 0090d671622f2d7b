package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"adspack/internal/export"
	"adspack/internal/history"
	"adspack/internal/http/handlers"
	httpapi "adspack/internal/http/httpapi"
	"adspack/internal/infra"
	"adspack/internal/infra/credentials"
	"adspack/internal/metrics"
	"adspack/internal/orchestrator"
	"adspack/internal/session"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Postgres is optional: it backs history and stored provider keys.
	var (
		pool   *pgxpool.Pool
		runner *infra.SQLRunner
	)
	if cfg.DatabaseURL != "" {
		pool, err = infra.NewDBPool(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to connect database")
		}
		defer pool.Close()
		runner = infra.NewSQLRunner(pool, logger)
	}

	var creds *credentials.Store
	if runner != nil {
		creds = credentials.NewStore(runner)
	}
	set, err := buildProviders(ctx, cfg, creds, logger, m)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure providers")
	}

	sessions, closeSessions := buildSessionStore(ctx, cfg, logger, m)
	defer closeSessions()

	var hist history.Sink = history.NewMemoryStore(cfg.HistoryLimit)
	if runner != nil {
		hist = history.NewPGStore(runner, cfg.HistoryLimit)
	}

	orch := orchestrator.New(set.routes, orchestrator.Options{
		MaxConcurrent: cfg.MaxConcurrentFormats,
		Timeout:       cfg.FanoutTimeout,
		Logger:        &logger,
		OnOutcome:     m.ObserveOutcome,
	})
	exporter := export.NewAssembler(export.Options{
		Logger:   logger,
		OnEncode: func(c export.Container, err error) {
			m.RecordEncode(string(c), err)
		},
	})

	app := &handlers.App{
		Config:    cfg,
		Logger:    logger,
		Generator: orch,
		Master:    set.master,
		Sessions:  sessions,
		History:   hist,
		Exporter:  exporter,
		Metrics:   m,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		MetricsHandler:  m.Handler(),
		Recorder:        m,
	})
	server := infra.NewHTTPServer(cfg, router)
	if err := server.Run(ctx, logger); err != nil {
		logger.Fatal().Err(err).Msg("api: http server failed")
	}
	logger.Info().Msg("api: stopped")
}

// buildSessionStore uses Redis when configured so replicas share sessions;
// otherwise sessions live in memory and a sweeper expires them.
func buildSessionStore(ctx context.Context, cfg *infra.Config, logger infra.Logger, m *metrics.Metrics) (session.Store, func()) {
	onExpire := func(s *session.Session) {
		m.SessionsExpired.Inc()
		logger.Debug().Str("session_id", s.ID).Msg("session: expired")
	}
	if cfg.RedisURL != "" {
		client, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to connect redis")
		}
		logger.Info().Msg("api: sessions stored in redis")
		return session.NewRedisStore(client, nil, onExpire), func() { _ = client.Close() }
	}

	store := session.NewMemoryStore(onExpire)
	go session.RunSweeper(ctx, store, session.PollInterval, nil, logger)
	return store, func() {}
}
