package round

import (
	"fmt"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
)

// ResultWidth é a largura fixa do número sorteado (panna de 3 dígitos).
const ResultWidth = 3

// Result é o número sorteado já validado. O zero value não é válido.
type Result struct {
	digits string
}

// ParseResult valida que s tem exatamente ResultWidth dígitos ASCII.
func ParseResult(s string) (Result, error) {
	if len(s) != ResultWidth {
		return Result{}, fmt.Errorf("%w: %q must have %d digits", domain.ErrInvalidResult, s, ResultWidth)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Result{}, fmt.Errorf("%w: %q must contain only digits", domain.ErrInvalidResult, s)
		}
	}
	return Result{digits: s}, nil
}

// MustParseResult é para testes e constantes.
func MustParseResult(s string) Result {
	r, err := ParseResult(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Result) String() string { return r.digits }

// LastDigit é o dígito usado por single e juri.
func (r Result) LastDigit() string {
	if r.digits == "" {
		return ""
	}
	return r.digits[len(r.digits)-1:]
}

// Equal compara com o número completo (patti).
func (r Result) Equal(s string) bool { return r.digits != "" && r.digits == s }

func (r Result) IsZero() bool { return r.digits == "" }
