package domain

import (
	"context"
	"time"
)

// SaveOutcome é o retorno de ResultStore.SavePending.
// HistoryErr != nil indica que o histórico (advisory) não foi gravado,
// mas o resultado foi.
type SaveOutcome struct {
	Result     RoundResult
	HistoryErr error
}

// ResultStore persiste game_results com semântica de merge por ID.
type ResultStore interface {
	// SavePending faz upsert com update_status=pending, incrementa update_attempt
	// e grava a entrada de histórico da tentativa.
	SavePending(ctx context.Context, r RoundResult) (SaveOutcome, error)
	// MarkCompleted só toca update_status e timestamps.
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	// MarkFailed só toca update_status, error_message e timestamps.
	MarkFailed(ctx context.Context, id string, msg string, at time.Time) error
	Get(ctx context.Context, id string) (RoundResult, error)
}

// BetStore é a visão do wager store usada na liquidação.
type BetStore interface {
	ListPending(ctx context.Context, gameID string, roundNumber int) ([]Bet, error)
	// ApplyOutcomes grava o lote atomicamente e só altera apostas ainda Pending.
	// Retorna os IDs efetivamente atualizados.
	ApplyOutcomes(ctx context.Context, outcomes []BetOutcome) ([]string, error)
	// ListUncredited retorna as vencedoras liquidadas sob resultID com credited_at nulo.
	ListUncredited(ctx context.Context, resultID string) ([]Bet, error)
	// ClaimCredit grava ref nas apostas ainda sem credit_ref e retorna as reservadas.
	// Uma aposta recebe no máximo uma ref durante toda a vida.
	ClaimCredit(ctx context.Context, betIDs []string, ref string) ([]string, error)
	MarkCredited(ctx context.Context, betIDs []string, at time.Time) error
}

type BackupStore interface {
	SaveBackup(ctx context.Context, b Backup) error
}

type ErrorStore interface {
	SaveError(ctx context.Context, rec ErrorRecord) error
}
