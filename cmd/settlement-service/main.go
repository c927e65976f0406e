package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/app"
	scache "github.com/radieske/draw-settlement/internal/settlement/cache"
	shttp "github.com/radieske/draw-settlement/internal/settlement/http"
	smetrics "github.com/radieske/draw-settlement/internal/settlement/metrics"
	"github.com/radieske/draw-settlement/internal/settlement/producer"
	"github.com/radieske/draw-settlement/internal/settlement/repo"
	"github.com/radieske/draw-settlement/internal/shared/cache"
	"github.com/radieske/draw-settlement/internal/shared/config"
	"github.com/radieske/draw-settlement/internal/shared/db"
	"github.com/radieske/draw-settlement/internal/shared/kafka"
	"github.com/radieske/draw-settlement/internal/shared/logger"
	"github.com/radieske/draw-settlement/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlement-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	settings, err := app.SettingsFrom(cfg)
	if err != nil {
		log.Fatal("settings", zap.Error(err))
	}

	// Postgres: resultados, apostas, backups, erros e carteira
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis é opcional: sem ele o lock vira local e não há cache de leitura
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable; using in-process lock and no result cache", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	// Kafka: round_settled (notificação) e round_result_submitted (?async=true)
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettled)
	defer settledWriter.Close()
	submitWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicResultSubmitted)
	defer submitWriter.Close()

	collector := smetrics.NewCollector(prometheus.DefaultRegisterer)
	store := repo.NewPostgres(pg)
	s := app.New(log, store, app.WalletFor(cfg, pg), settings, app.Extras{
		Locker:  app.LockerFor(rdb),
		Notify:  producer.NewKafkaPublisher(settledWriter),
		Observe: collector,
	})

	api := shttp.NewServer(log, s.Pipeline, s.Recorder, s.Ledger, cfg.AdminRoles).
		WithSubmitter(producer.NewKafkaPublisher(submitWriter))
	if rdb != nil {
		api.WithCache(scache.New(rdb, cfg.ResultCacheTTL))
	}

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8084
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// metrics/health
	checks := []metrics.HealthFunc{pg.PingContext}
	if rdb != nil {
		checks = append(checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, metrics.Checks(checks...))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr), zap.Duration("timeout", settings.Timeout))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// execuções em andamento ignoram o cancelamento; espera até o timeout delas
	shutdownCtx, done := context.WithTimeout(context.Background(), settings.Timeout+5*time.Second)
	defer done()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
