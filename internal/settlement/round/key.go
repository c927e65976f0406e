package round

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IST é o fuso fixo (UTC+5:30) usado para datar os rounds.
var IST = time.FixedZone("IST", 5*60*60+30*60)

const dateLayout = "2006-01-02"

// Key identifica um round: gameId_YYYY-MM-DD_roundNumber.
// O formato faz parte do contrato com as ferramentas de auditoria.
type Key struct {
	GameID      string
	Date        string
	RoundNumber int
}

// NewKey deriva a chave de idempotência; mesma entrada no mesmo dia (IST) => mesma chave.
func NewKey(gameID string, roundNumber int, now time.Time) Key {
	return Key{
		GameID:      gameID,
		Date:        now.In(IST).Format(dateLayout),
		RoundNumber: roundNumber,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%d", k.GameID, k.Date, k.RoundNumber)
}

// ParseKey aceita gameId com "_" pois separa data e round pela direita.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndex(s, "_")
	if i <= 0 {
		return Key{}, fmt.Errorf("parse key %q: missing round number", s)
	}
	rn, err := strconv.Atoi(s[i+1:])
	if err != nil || rn <= 0 {
		return Key{}, fmt.Errorf("parse key %q: invalid round number", s)
	}
	rest := s[:i]
	j := strings.LastIndex(rest, "_")
	if j <= 0 {
		return Key{}, fmt.Errorf("parse key %q: missing date", s)
	}
	date := rest[j+1:]
	if _, err := time.ParseInLocation(dateLayout, date, IST); err != nil {
		return Key{}, fmt.Errorf("parse key %q: invalid date: %w", s, err)
	}
	return Key{GameID: rest[:j], Date: date, RoundNumber: rn}, nil
}
