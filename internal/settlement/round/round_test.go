package round

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
)

func TestNewKey_SameDaySameKey(t *testing.T) {
	morning := time.Date(2024, 3, 10, 1, 0, 0, 0, IST)
	evening := time.Date(2024, 3, 10, 23, 30, 0, 0, IST)

	k1 := NewKey("kalyan", 4, morning)
	k2 := NewKey("kalyan", 4, evening)

	assert.Equal(t, k1, k2)
	assert.Equal(t, "kalyan_2024-03-10_4", k1.String())
}

func TestNewKey_DiffersByRound(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.NotEqual(t, NewKey("kalyan", 4, now).String(), NewKey("kalyan", 5, now).String())
}

func TestNewKey_UsesISTCalendarDay(t *testing.T) {
	// 20:00 UTC já é o dia seguinte em IST (01:30)
	now := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-11", NewKey("g", 1, now).Date)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("main_bazar_2024-03-10_12")
	require.NoError(t, err)
	assert.Equal(t, Key{GameID: "main_bazar", Date: "2024-03-10", RoundNumber: 12}, k)

	for _, bad := range []string{"", "g", "g_2024-03-10", "g_2024-03-10_x", "g_notadate_1", "_2024-03-10_1", "g_2024-03-10_0"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseResult(t *testing.T) {
	r, err := ParseResult("125")
	require.NoError(t, err)
	assert.Equal(t, "5", r.LastDigit())
	assert.True(t, r.Equal("125"))
	assert.False(t, r.Equal("124"))

	for _, bad := range []string{"", "12", "1234", "12a", " 12", "١٢٣"} {
		_, err := ParseResult(bad)
		assert.True(t, errors.Is(err, domain.ErrInvalidResult), bad)
	}
}

func TestResult_ZeroValue(t *testing.T) {
	var r Result

	assert.True(t, r.IsZero())
	assert.Equal(t, "", r.LastDigit())
	assert.False(t, r.Equal(""))
}
