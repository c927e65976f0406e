package dto

import "github.com/shopspring/decimal"

// CreditRequest incrementa o saldo; external_ref torna o crédito idempotente.
type CreditRequest struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	ExternalRef string          `json:"external_ref"`
}

type WalletResponse struct {
	UserID   string          `json:"userId"`
	WalletID string          `json:"walletId"`
	Balance  decimal.Decimal `json:"balance"`
}

// CreditResponse informa se o crédito foi aplicado agora ou já existia.
type CreditResponse struct {
	WalletResponse
	Duplicate bool `json:"duplicate"`
}
