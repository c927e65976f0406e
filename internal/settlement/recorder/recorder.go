package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/round"
)

// Recorder é o dono de game_results e do histórico de tentativas.
type Recorder struct {
	log   *zap.Logger
	store domain.ResultStore
	now   func() time.Time
}

func New(log *zap.Logger, store domain.ResultStore) *Recorder {
	return &Recorder{log: log, store: store, now: time.Now}
}

// WithClock troca o relógio (testes).
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// WritePending faz o upsert-merge do resultado com status pending.
// Falha ao gravar o histórico é apenas logada: o histórico é advisory.
func (r *Recorder) WritePending(ctx context.Context, key round.Key, result round.Result) (domain.RoundResult, error) {
	now := r.now()
	out, err := r.store.SavePending(ctx, domain.RoundResult{
		ID:           key.String(),
		GameID:       key.GameID,
		Date:         key.Date,
		RoundNumber:  key.RoundNumber,
		Result:       result.String(),
		Status:       domain.ResultPending,
		CreatedAt:    now.UTC(),
		CreatedAtIST: now.In(round.IST),
		UpdatedAt:    now.UTC(),
		UpdatedAtIST: now.In(round.IST),
	})
	if err != nil {
		return domain.RoundResult{}, fmt.Errorf("write pending %s: %w", key, err)
	}
	if out.HistoryErr != nil {
		r.log.Warn("result history write failed",
			zap.String("key", key.String()),
			zap.Int("attempt", out.Result.AttemptCount),
			zap.Error(out.HistoryErr),
		)
	}
	return out.Result, nil
}

func (r *Recorder) MarkCompleted(ctx context.Context, key round.Key) error {
	if err := r.store.MarkCompleted(ctx, key.String(), r.now().UTC()); err != nil {
		return fmt.Errorf("mark completed %s: %w", key, err)
	}
	return nil
}

func (r *Recorder) MarkFailed(ctx context.Context, key round.Key, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.store.MarkFailed(ctx, key.String(), msg, r.now().UTC()); err != nil {
		return fmt.Errorf("mark failed %s: %w", key, err)
	}
	return nil
}

// Get retorna o registro atual; (zero, false, nil) se ainda não existe.
func (r *Recorder) Get(ctx context.Context, key round.Key) (domain.RoundResult, bool, error) {
	rr, err := r.store.Get(ctx, key.String())
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RoundResult{}, false, nil
	}
	if err != nil {
		return domain.RoundResult{}, false, fmt.Errorf("get result %s: %w", key, err)
	}
	return rr, true, nil
}

// Verify relê o registro e confere resultado e status completed.
func (r *Recorder) Verify(ctx context.Context, key round.Key, expected round.Result) (bool, error) {
	rr, found, err := r.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		r.log.Error("result document not found after update", zap.String("key", key.String()))
		return false, nil
	}
	ok := expected.Equal(rr.Result) && rr.Status == domain.ResultCompleted
	if !ok {
		r.log.Error("result verification mismatch",
			zap.String("key", key.String()),
			zap.String("expected", expected.String()),
			zap.String("stored", rr.Result),
			zap.String("status", string(rr.Status)),
		)
	}
	return ok, nil
}
