package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"scalesync/internal/auth"
	"scalesync/internal/config"
	"scalesync/internal/httpx"
	masterdatarepo "scalesync/internal/masterdata/infrastructure/postgres"
	masterdatahttp "scalesync/internal/masterdata/interfaces/http"
	"scalesync/internal/migrations"
	"scalesync/internal/observability/logging"
	"scalesync/internal/observability/metrics"
	queryapp "scalesync/internal/query/application"
	queryhttp "scalesync/internal/query/interfaces/http"
	syncapp "scalesync/internal/sync/application"
	"scalesync/internal/sync/infrastructure/redislock"
	synchttp "scalesync/internal/sync/interfaces/http"
	"scalesync/internal/sync/notify"
	telemetry "scalesync/internal/telemetry/domain"
	telemetrypostgres "scalesync/internal/telemetry/infrastructure/postgres"
	"scalesync/internal/upstream"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	logger, logErr := logging.New(cfg.Log.Level, cfg.Log.Format, "scalesync")
	if logErr != nil {
		logger = zap.NewExample()
	}
	defer func() { _ = logger.Sync() }()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}
	if cfg.Database.MigrateOnStart {
		if err := migrations.Up(db); err != nil {
			logger.Fatal("migration error", zap.Error(err))
		}
		if version, dirty, err := migrations.Version(db); err == nil {
			logger.Info("schema ready", zap.Uint("version", version), zap.Bool("dirty", dirty))
		}
	}

	store := telemetrypostgres.NewStore(db)
	catalog := masterdatarepo.NewScaleRepository(db)
	metrics.Init(store, logger)

	client, err := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Token,
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithLogger(logger.Named("upstream")),
	)
	if err != nil {
		logger.Fatal("upstream client error", zap.Error(err))
	}

	planner, err := syncapp.NewPlanner(store,
		syncapp.WithHistoryStart(cfg.Sync.HistoryStart),
		syncapp.WithLookback(cfg.Sync.Lookback),
	)
	if err != nil {
		logger.Fatal("planner error", zap.Error(err))
	}
	syncOpts := []syncapp.Option{
		syncapp.WithLogger(logger.Named("sync")),
		syncapp.WithPlanner(planner),
		syncapp.WithParallelism(cfg.Sync.Parallelism),
		syncapp.WithEntityTimeout(cfg.Sync.EntityTimeout),
		syncapp.WithNormalizer(telemetry.NewNormalizer(telemetry.WithExtraFields(cfg.Sync.KeepExtraFields))),
		syncapp.WithCatalogSource(client),
	}
	if cfg.Redis.Addr != "" {
		locker, err := redislock.New(redislock.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB))
		if err != nil {
			logger.Fatal("redis lock error", zap.Error(err))
		}
		syncOpts = append(syncOpts, syncapp.WithLocker(locker, cfg.Sync.LockTTL))
		logger.Info("sync run lock enabled", zap.String("redis_addr", cfg.Redis.Addr))
	}
	if cfg.MQTT.Broker != "" {
		publisher, err := notify.Connect(cfg.MQTT)
		if err != nil {
			logger.Warn("mqtt notifications disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			syncOpts = append(syncOpts, syncapp.WithPublisher(publisher))
			logger.Info("mqtt notifications enabled", zap.String("broker", cfg.MQTT.Broker))
		}
	}
	syncService, err := syncapp.NewService(store, catalog, client, syncOpts...)
	if err != nil {
		logger.Fatal("sync service error", zap.Error(err))
	}

	scheduler, err := syncapp.NewScheduler(syncService, cfg.Schedule, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("scheduler error", zap.Error(err))
	}
	scheduler.Start(ctx)

	queryService, err := queryapp.NewService(store,
		queryapp.WithMaxLimit(cfg.Query.MaxLimit),
		queryapp.WithLogger(logger.Named("query")),
	)
	if err != nil {
		logger.Fatal("query service error", zap.Error(err))
	}

	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil), logger.Named("auth"))
	if !authMiddleware.Enabled() {
		logger.Warn("AUTH_JWT_SECRET not set, api is unauthenticated")
	}

	router := chi.NewRouter()
	router.Use(httpx.Logging(logger.Named("http")))
	router.Use(authMiddleware.Wrap)
	synchttp.NewHandler(syncService, logger).Register(router)
	masterdatahttp.NewHandler(catalog, logger).Register(router)
	queryhttp.NewHandler(queryService, logger).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			httpx.RespondErrorString(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("scheduled jobs still running at shutdown")
		}
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.Int("scheduled_jobs", scheduler.Jobs()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
	<-shutdownDone
	logger.Info("shutdown complete")
}
