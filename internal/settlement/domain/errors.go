package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrResultConflict    = errors.New("round already completed with a different result")
	ErrInProgress        = errors.New("settlement already in progress for this round")
	ErrInvalidResult     = errors.New("invalid draw result")
	ErrInvalidBet        = errors.New("invalid bet")
)

// Kind classifica a falha para auditoria e métricas.
type Kind string

const (
	KindBackup       Kind = "BackupFailure"
	KindResultWrite  Kind = "ResultWriteFailure"
	KindBetEval      Kind = "BetEvaluationFailure"
	KindCredit       Kind = "CreditFailure"
	KindVerification Kind = "VerificationFailure"
	KindTimeout      Kind = "Timeout"
	KindCancelled    Kind = "Cancelled"
	KindConflict     Kind = "ResultConflict"
	KindInProgress   Kind = "InProgress"
	KindInvalidInput Kind = "InvalidInput"
)

// StageError amarra o erro ao estágio do pipeline em que ocorreu.
type StageError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// KindOf retorna o Kind de um erro, ou "" se não houver StageError na cadeia.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
