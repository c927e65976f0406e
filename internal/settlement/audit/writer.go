package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/round"
)

type ResultReader interface {
	Get(ctx context.Context, id string) (domain.RoundResult, error)
}

type PendingLister interface {
	ListPending(ctx context.Context, gameID string, roundNumber int) ([]domain.Bet, error)
}

// Writer tira o snapshot antes de qualquer mutação e registra falhas terminais.
type Writer struct {
	log     *zap.Logger
	results ResultReader
	bets    PendingLister
	backups domain.BackupStore
	errs    domain.ErrorStore
	now     func() time.Time
}

func NewWriter(log *zap.Logger, results ResultReader, bets PendingLister, backups domain.BackupStore, errs domain.ErrorStore) *Writer {
	return &Writer{log: log, results: results, bets: bets, backups: backups, errs: errs, now: time.Now}
}

// Snapshot precisa ter sucesso antes de o pipeline escrever qualquer coisa.
func (w *Writer) Snapshot(ctx context.Context, key round.Key) error {
	var prev *domain.RoundResult
	rr, err := w.results.Get(ctx, key.String())
	switch {
	case err == nil:
		prev = &rr
	case errors.Is(err, domain.ErrNotFound):
	default:
		return fmt.Errorf("backup %s: read result: %w", key, err)
	}

	pending, err := w.bets.ListPending(ctx, key.GameID, key.RoundNumber)
	if err != nil {
		return fmt.Errorf("backup %s: list pending bets: %w", key, err)
	}

	b := domain.Backup{
		ID:          uuid.NewString(),
		ResultID:    key.String(),
		Previous:    prev,
		PendingBets: len(pending),
		CreatedAt:   w.now().UTC(),
	}
	if err := w.backups.SaveBackup(ctx, b); err != nil {
		return fmt.Errorf("backup %s: save: %w", key, err)
	}

	w.log.Info("result backup created",
		zap.String("key", key.String()),
		zap.String("backupId", b.ID),
		zap.Bool("hadPrevious", prev != nil),
		zap.Int("pendingBets", b.PendingBets),
	)
	return nil
}

// LogFailure é best-effort: erro ao gravar só vai para o log local,
// nunca mascara o erro original.
func (w *Writer) LogFailure(ctx context.Context, key round.Key, stage string, cause error) {
	rec := domain.ErrorRecord{
		ResultID:    key.String(),
		GameID:      key.GameID,
		Date:        key.Date,
		RoundNumber: key.RoundNumber,
		Stage:       stage,
		Kind:        domain.KindOf(cause),
		Message:     errString(cause),
		Context:     map[string]string{"error_chain": fmt.Sprintf("%+v", cause)},
		CreatedAt:   w.now().UTC(),
	}

	defer func() {
		if p := recover(); p != nil {
			w.log.Error("audit error record panicked", zap.String("key", key.String()), zap.Any("panic", p))
		}
	}()
	if err := w.errs.SaveError(ctx, rec); err != nil {
		w.log.Error("audit error record failed",
			zap.String("key", key.String()),
			zap.String("stage", stage),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
