// Package app monta o pipeline de liquidação a partir dos stores e da
// configuração. É o ponto de composição comum aos binários.
package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/audit"
	"github.com/radieske/draw-settlement/internal/settlement/bet"
	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/engine"
	"github.com/radieske/draw-settlement/internal/settlement/ledger"
	"github.com/radieske/draw-settlement/internal/settlement/pipeline"
	"github.com/radieske/draw-settlement/internal/settlement/recorder"
	"github.com/radieske/draw-settlement/internal/shared/config"
)

// Stores agrupa o que repo.Postgres e memstore.Store implementam.
type Stores interface {
	domain.ResultStore
	domain.BetStore
	domain.BackupStore
	domain.ErrorStore
}

type Settings struct {
	Timeout time.Duration
	LockTTL time.Duration
	Workers int
	Rates   bet.Rates
}

// SettingsFrom converte a configuração de ambiente; taxa inválida é erro de boot.
func SettingsFrom(cfg config.Config) (Settings, error) {
	rates := bet.DefaultRates()
	for typ, raw := range map[string]string{
		bet.TypeSingle: cfg.WinRateSingle,
		bet.TypePatti:  cfg.WinRatePatti,
		bet.TypeJuri:   cfg.WinRateJuri,
	} {
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsNegative() {
			return Settings{}, fmt.Errorf("invalid win rate for %s: %q", typ, raw)
		}
		rates[typ] = v
	}
	return Settings{
		Timeout: cfg.SettlementTimeout,
		LockTTL: cfg.SettlementLockTTL,
		Workers: cfg.SettlementWorkers,
		Rates:   rates,
	}, nil
}

// Extras são os colaboradores opcionais do pipeline.
type Extras struct {
	Locker  pipeline.Locker
	Notify  pipeline.Notifier
	Observe pipeline.Observer
}

type Settlement struct {
	Recorder *recorder.Recorder
	Audit    *audit.Writer
	Engine   *engine.Engine
	Ledger   *ledger.Updater
	Pipeline *pipeline.Pipeline
}

func New(log *zap.Logger, st Stores, wallet ledger.Wallet, s Settings, x Extras) *Settlement {
	rec := recorder.New(log, st)
	aud := audit.NewWriter(log, st, st, st, st)
	eng := engine.New(log, st, s.Rates, s.Workers)
	led := ledger.NewUpdater(log, wallet, st)
	p := pipeline.New(log, aud, rec, eng, led, pipeline.Options{
		Timeout: s.Timeout,
		LockTTL: s.LockTTL,
		Locker:  x.Locker,
		Notify:  x.Notify,
		Observe: x.Observe,
	})
	return &Settlement{Recorder: rec, Audit: aud, Engine: eng, Ledger: led, Pipeline: p}
}
