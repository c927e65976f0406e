package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/app"
	"github.com/radieske/draw-settlement/internal/settlement/consumer"
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
		cfg.ServiceName = "settlement-worker"
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

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable; using in-process lock", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	// Kafka consumer (consumer group settlement-worker) + producers de evento e DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicResultSubmitted, "settlement-worker")
	defer reader.Close()
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettled)
	defer settledWriter.Close()
	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicResultSubmittedDLQ)
	defer dlqWriter.Close()

	collector := smetrics.NewCollector(prometheus.DefaultRegisterer)
	s := app.New(log, repo.NewPostgres(pg), app.WalletFor(cfg, pg), settings, app.Extras{
		Locker:  app.LockerFor(rdb),
		Notify:  producer.NewKafkaPublisher(settledWriter),
		Observe: collector,
	})

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Runner:     s.Pipeline,
		DLQ:        dlqWriter,
		Retries:    3,
		Backoff:    500 * time.Millisecond,
		OnConsumed: collector.Consumed,
		OnSettled:  collector.Settled,
		OnDLQ:      collector.DeadLettered,
		OnError:    collector.WorkerError,
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, pg.PingContext)
	defer metricsSrv.Close()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicResultSubmitted),
		zap.String("publish", cfg.TopicRoundSettled),
		zap.String("dlq", cfg.TopicResultSubmittedDLQ),
	)
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("settlement-worker stopped")
}
