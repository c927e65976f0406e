package bet

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/round"
)

// Tipos de aposta suportados
const (
	TypeSingle = "single"
	TypePatti  = "patti"
	TypeJuri   = "juri"
)

// JuriSeparator separa os dois dígitos de uma combinação juri ("3-5").
const JuriSeparator = "-"

// Rates são as taxas padrão por tipo, usadas quando a aposta não traz win_rate.
type Rates map[string]decimal.Decimal

// DefaultRates: single 9x, patti 90x, juri 9x.
func DefaultRates() Rates {
	return Rates{
		TypeSingle: decimal.NewFromInt(9),
		TypePatti:  decimal.NewFromInt(90),
		TypeJuri:   decimal.NewFromInt(9),
	}
}

// Verdict é o resultado da avaliação de uma aposta.
type Verdict struct {
	Won       bool
	WinAmount decimal.Decimal
}

// Evaluate decide se a aposta ganhou contra o resultado.
// Tipo desconhecido, apostador ausente ou valor não positivo são perda
// (ninguém a creditar). Erro só para taxa negativa, que fica Pending até
// a aposta ser corrigida.
func Evaluate(b domain.Bet, r round.Result, rates Rates) (Verdict, error) {
	if r.IsZero() {
		return Verdict{}, fmt.Errorf("evaluate bet %s: %w", b.ID, domain.ErrInvalidResult)
	}
	if b.BettorID == "" || !b.Amount.IsPositive() {
		return Verdict{WinAmount: decimal.Zero}, nil
	}
	if b.WinRate.IsNegative() {
		return Verdict{}, fmt.Errorf("evaluate bet %s: %w: win rate %s", b.ID, domain.ErrInvalidBet, b.WinRate)
	}

	var won bool
	switch b.Type {
	case TypeSingle:
		won = b.Number == r.LastDigit()
	case TypePatti:
		won = r.Equal(b.Number)
	case TypeJuri:
		won = juriMatches(b, r.LastDigit())
	default:
		return Verdict{WinAmount: decimal.Zero}, nil
	}

	if !won {
		return Verdict{WinAmount: decimal.Zero}, nil
	}
	return Verdict{Won: true, WinAmount: b.Amount.Mul(rateFor(b, rates))}, nil
}

func juriMatches(b domain.Bet, last string) bool {
	combo := b.Combination
	if combo == "" {
		combo = b.Number
	}
	parts := strings.SplitN(combo, JuriSeparator, 2)
	if len(parts) != 2 {
		return false
	}
	first, second := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	return first == last || second == last
}

func rateFor(b domain.Bet, rates Rates) decimal.Decimal {
	if b.WinRate.IsPositive() {
		return b.WinRate
	}
	if r, ok := rates[b.Type]; ok {
		return r
	}
	return DefaultRates()[b.Type]
}
