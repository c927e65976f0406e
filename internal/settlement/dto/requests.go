package dto

// SubmitResultRequest é o formulário do painel admin.
type SubmitResultRequest struct {
	GameID      string `json:"gameId" validate:"required"`
	RoundNumber int    `json:"roundNumber" validate:"required,min=1"`
	Result      string `json:"result" validate:"required,numeric,len=3"`
}
