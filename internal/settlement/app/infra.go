package app

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/draw-settlement/internal/settlement/ledger"
	"github.com/radieske/draw-settlement/internal/settlement/lock"
	"github.com/radieske/draw-settlement/internal/settlement/pipeline"
	"github.com/radieske/draw-settlement/internal/settlement/wallet"
	"github.com/radieske/draw-settlement/internal/shared/config"
	wrepo "github.com/radieske/draw-settlement/internal/wallet-service/repo"
)

// WalletFor usa o wallet-service quando WALLET_URL está definido;
// senão credita direto nas tabelas de carteira do mesmo Postgres.
func WalletFor(cfg config.Config, pg *sql.DB) ledger.Wallet {
	if cfg.WalletURL != "" {
		return wallet.New(cfg.WalletURL)
	}
	return wrepo.NewPostgres(pg)
}

// LockerFor cai no lock em processo quando não há Redis.
func LockerFor(rdb *redis.Client) pipeline.Locker {
	if rdb == nil {
		return lock.NewLocal()
	}
	return lock.NewRedis(rdb)
}
