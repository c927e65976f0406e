package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResultStatus é o campo update_status do registro de resultado.
type ResultStatus string

const (
	ResultPending   ResultStatus = "pending"
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
)

// BetStatus segue os valores gravados pelo subsistema de apostas.
type BetStatus string

const (
	BetPending BetStatus = "Pending"
	BetWon     BetStatus = "Won"
	BetLost    BetStatus = "Lost"
)

// RoundResult é o registro único por (game_id, date, round_number).
// Nunca é apagado; apenas mutado por merge.
type RoundResult struct {
	ID           string // gameId_YYYY-MM-DD_roundNumber
	GameID       string
	Date         string
	RoundNumber  int
	Result       string
	Status       ResultStatus
	AttemptCount int
	ErrorMessage string

	CreatedAt    time.Time
	CreatedAtIST time.Time
	UpdatedAt    time.Time
	UpdatedAtIST time.Time
	CompletedAt  *time.Time
	FailedAt     *time.Time
}

// HistoryEntry é a cópia de auditoria gravada uma vez por tentativa.
type HistoryEntry struct {
	ID          string
	ResultID    string
	GameID      string
	Date        string
	RoundNumber int
	Result      string
	Status      ResultStatus
	Attempt     int
	RecordedAt  time.Time
}

// Bet é criada pelo subsistema de apostas; aqui só lemos e gravamos o desfecho.
type Bet struct {
	ID          string
	GameID      string
	RoundNumber int
	BettorID    string
	Type        string
	Number      string
	Combination string
	Amount      decimal.Decimal
	WinRate     decimal.Decimal // zero => taxa padrão do tipo

	Status      BetStatus
	IsWinner    bool
	WinAmount   decimal.Decimal
	Result      string
	ResultID    string // chave do round que liquidou a aposta
	ProcessedAt *time.Time
	CreditRef   string // ref reservada na carteira; reusada em toda nova tentativa
	CreditedAt  *time.Time
}

// BetOutcome é o update em lote aplicado a uma aposta avaliada.
type BetOutcome struct {
	BetID          string
	BettorID       string
	Status         BetStatus
	IsWinner       bool
	WinAmount      decimal.Decimal
	Result         string
	ResultID       string
	ProcessedAt    time.Time
	ProcessedAtIST time.Time
}

// Backup guarda o estado anterior à mutação de um round.
type Backup struct {
	ID          string
	ResultID    string
	Previous    *RoundResult
	PendingBets int
	CreatedAt   time.Time
}

// ErrorRecord é diagnóstico apenas; o pipeline nunca lê.
type ErrorRecord struct {
	ResultID    string
	GameID      string
	Date        string
	RoundNumber int
	Stage       string
	Kind        Kind
	Message     string
	Context     map[string]string
	CreatedAt   time.Time
}
