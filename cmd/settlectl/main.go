package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/app"
	"github.com/radieske/draw-settlement/internal/settlement/cli"
	"github.com/radieske/draw-settlement/internal/settlement/producer"
	"github.com/radieske/draw-settlement/internal/settlement/repo"
	"github.com/radieske/draw-settlement/internal/shared/cache"
	"github.com/radieske/draw-settlement/internal/shared/config"
	"github.com/radieske/draw-settlement/internal/shared/db"
	"github.com/radieske/draw-settlement/internal/shared/kafka"
	"github.com/radieske/draw-settlement/internal/shared/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand(connect).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// connect monta o mesmo pipeline dos serviços a partir do ambiente.
func connect(ctx context.Context) (*app.Settlement, func(), error) {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlectl"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		return nil, nil, err
	}

	settings, err := app.SettingsFrom(cfg)
	if err != nil {
		return nil, nil, err
	}

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{pg.Close}

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable; using in-process lock", zap.Error(err))
	} else {
		closers = append(closers, rdb.Close)
	}

	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettled)
	closers = append(closers, settledWriter.Close)

	s := app.New(log, repo.NewPostgres(pg), app.WalletFor(cfg, pg), settings, app.Extras{
		Locker: app.LockerFor(rdb),
		Notify: producer.NewKafkaPublisher(settledWriter),
	})

	return s, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		_ = log.Sync()
	}, nil
}
