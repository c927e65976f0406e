package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/bet"
	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/ledger"
	"github.com/radieske/draw-settlement/internal/settlement/round"
)

// Report resume uma passada de liquidação.
type Report struct {
	Pending   int // apostas Pending encontradas
	Processed int // apostas efetivamente atualizadas
	Skipped   int // erro de avaliação; continuam Pending
	Winners   int
	Deltas    ledger.Deltas
}

// Engine avalia as apostas pendentes de um round.
type Engine struct {
	log     *zap.Logger
	bets    domain.BetStore
	rates   bet.Rates
	workers int
	now     func() time.Time
}

func New(log *zap.Logger, bets domain.BetStore, rates bet.Rates, workers int) *Engine {
	if rates == nil {
		rates = bet.DefaultRates()
	}
	if workers < 1 {
		workers = 1
	}
	return &Engine{log: log, bets: bets, rates: rates, workers: workers, now: time.Now}
}

// Settle seleciona só apostas Pending, então uma nova passada ignora as já liquidadas.
// Erro de uma aposta não aborta o lote; erro de leitura ou do commit do lote sim.
// Cada aposta gravada leva key como result_id, base da reconciliação.
func (e *Engine) Settle(ctx context.Context, key round.Key, result round.Result) (Report, error) {
	gameID, roundNumber := key.GameID, key.RoundNumber
	pending, err := e.bets.ListPending(ctx, gameID, roundNumber)
	if err != nil {
		return Report{}, fmt.Errorf("list pending bets: %w", err)
	}
	e.log.Info("pending bets loaded",
		zap.String("gameId", gameID),
		zap.Int("round", roundNumber),
		zap.Int("count", len(pending)),
	)

	rep := Report{Pending: len(pending), Deltas: make(ledger.Deltas)}
	if len(pending) == 0 {
		return rep, nil
	}

	outcomes := e.evaluateAll(pending, key, result)
	batch := make([]domain.BetOutcome, 0, len(outcomes))
	byID := make(map[string]domain.BetOutcome, len(outcomes))
	for _, o := range outcomes {
		if o == nil {
			rep.Skipped++
			continue
		}
		batch = append(batch, *o)
		byID[o.BetID] = *o
	}
	if len(batch) == 0 {
		return rep, nil
	}

	applied, err := e.bets.ApplyOutcomes(ctx, batch)
	if err != nil {
		return rep, fmt.Errorf("commit bet outcomes: %w", err)
	}
	rep.Processed = len(applied)

	// só entra no agregado o que esta passada realmente gravou
	for _, id := range applied {
		o := byID[id]
		if o.IsWinner {
			rep.Winners++
			rep.Deltas.Add(o.BettorID, o.BetID, o.WinAmount)
		}
	}
	if lost := len(batch) - len(applied); lost > 0 {
		e.log.Warn("bets settled concurrently by another run",
			zap.String("gameId", gameID),
			zap.Int("round", roundNumber),
			zap.Int("count", lost),
		)
	}
	return rep, nil
}

// evaluateAll distribui a avaliação entre workers; a posição i do retorno
// corresponde a bets[i] e é nil quando a aposta foi pulada.
func (e *Engine) evaluateAll(bets []domain.Bet, key round.Key, result round.Result) []*domain.BetOutcome {
	out := make([]*domain.BetOutcome, len(bets))
	now := e.now()

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(e.workers, len(bets)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = e.evaluateOne(bets[i], key, result, now)
			}
		}()
	}
	for i := range bets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

func (e *Engine) evaluateOne(b domain.Bet, key round.Key, result round.Result, now time.Time) (o *domain.BetOutcome) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Error("bet evaluation panicked", zap.String("betId", b.ID), zap.Any("panic", p))
			o = nil
		}
	}()

	v, err := bet.Evaluate(b, result, e.rates)
	if err != nil {
		e.log.Warn("bet evaluation failed; left pending",
			zap.String("betId", b.ID),
			zap.String("kind", string(domain.KindBetEval)),
			zap.Error(err),
		)
		return nil
	}

	status := domain.BetLost
	if v.Won {
		status = domain.BetWon
	}
	return &domain.BetOutcome{
		BetID:          b.ID,
		BettorID:       b.BettorID,
		Status:         status,
		IsWinner:       v.Won,
		WinAmount:      v.WinAmount,
		Result:         result.String(),
		ResultID:       key.String(),
		ProcessedAt:    now.UTC(),
		ProcessedAtIST: now.In(round.IST),
	}
}
