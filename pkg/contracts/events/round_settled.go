package events

import "time"

// Evento emitido após o pipeline concluir a liquidação de um round.
type RoundSettled struct {
	ResultID       string    `json:"result_id"` // gameId_YYYY-MM-DD_roundNumber
	GameID         string    `json:"game_id"`
	RoundNumber    int       `json:"round_number"`
	Result         string    `json:"result"`
	BetsProcessed  int       `json:"bets_processed"`
	BetsSkipped    int       `json:"bets_skipped"`
	CreditsApplied int       `json:"credits_applied"`
	CreditsFailed  int       `json:"credits_failed"`
	Credited       string    `json:"credited"` // decimal em string
	Ts             time.Time `json:"ts"`
}
