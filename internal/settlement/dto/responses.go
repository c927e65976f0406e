package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubmitResultResponse mantém o formato {success, message|error} do painel.
type SubmitResultResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	Kind           string `json:"kind,omitempty"`
	Key            string `json:"key,omitempty"`
	Stage          string `json:"stage,omitempty"`
	BetsProcessed  int    `json:"betsProcessed"`
	BetsSkipped    int    `json:"betsSkipped"`
	CreditsApplied int    `json:"creditsApplied"`
	CreditsFailed  int    `json:"creditsFailed"`
}

type ResultResponse struct {
	ID           string     `json:"id"`
	GameID       string     `json:"gameId"`
	Date         string     `json:"date"`
	RoundNumber  int        `json:"roundNumber"`
	Result       string     `json:"result"`
	Status       string     `json:"updateStatus"`
	AttemptCount int        `json:"updateAttempt"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"timestamp"`
	UpdatedAt    time.Time  `json:"lastUpdated"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	FailedAt     *time.Time `json:"failedAt,omitempty"`
}

type ReconcileResponse struct {
	Key      string          `json:"key"`
	Applied  int             `json:"applied"`
	Failed   int             `json:"failed"`
	Credited decimal.Decimal `json:"credited"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
