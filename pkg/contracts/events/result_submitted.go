package events

// ResultSubmitted é publicado pelo painel admin quando o número de um round é conhecido.
// Consumido pelo settlement-worker.
type ResultSubmitted struct {
	GameID      string `json:"game_id"`
	RoundNumber int    `json:"round_number"`
	Result      string `json:"result"`
	SubmittedBy string `json:"submitted_by,omitempty"`
	TsUnixMs    int64  `json:"ts_unix_ms"` // instante da submissão; data a chave do round
}
