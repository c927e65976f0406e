package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/wallet-service/dto"
)

type fakeRepo struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	refs     map[string]bool
	err      error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{balances: map[string]decimal.Decimal{}, refs: map[string]bool{}}
}

func (f *fakeRepo) GetOrCreateWallet(_ context.Context, userID string) (string, decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", decimal.Zero, f.err
	}
	return "w-" + userID, f.balances[userID], nil
}

func (f *fakeRepo) Credit(_ context.Context, userID string, amount decimal.Decimal, ref string) (string, decimal.Decimal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", decimal.Zero, false, f.err
	}
	if ref != "" && f.refs[ref] {
		return "w-" + userID, f.balances[userID], true, nil
	}
	f.refs[ref] = true
	f.balances[userID] = f.balances[userID].Add(amount)
	return "w-" + userID, f.balances[userID], false, nil
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCredit_IdempotentByRef(t *testing.T) {
	repo := newFakeRepo()
	h := NewServer(zap.NewNop(), repo).Router()

	body := `{"userId":"alice","amount":"180","external_ref":"settle:k:alice:ab"}`
	first := do(t, h, http.MethodPost, "/wallet/credit", body)
	second := do(t, h, http.MethodPost, "/wallet/credit", body)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b dto.CreditResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.False(t, a.Duplicate)
	assert.True(t, b.Duplicate)
	assert.True(t, decimal.NewFromInt(180).Equal(b.Balance))
}

func TestCredit_RejectsInvalidPayload(t *testing.T) {
	h := NewServer(zap.NewNop(), newFakeRepo()).Router()

	cases := map[string]string{
		"bad json":     `{`,
		"missing user": `{"amount":"10"}`,
		"zero amount":  `{"userId":"bob","amount":"0"}`,
		"negative":     `{"userId":"bob","amount":"-5"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/wallet/credit", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCredit_RepoError(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("db down")
	h := NewServer(zap.NewNop(), repo).Router()

	rec := do(t, h, http.MethodPost, "/wallet/credit", `{"userId":"bob","amount":"5","external_ref":"r"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetWallet(t *testing.T) {
	repo := newFakeRepo()
	h := NewServer(zap.NewNop(), repo).Router()
	do(t, h, http.MethodPost, "/wallet/credit", `{"userId":"bob","amount":"45.50","external_ref":"r1"}`)

	rec := do(t, h, http.MethodGet, "/wallet?userId=bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out dto.WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "w-bob", out.WalletID)
	assert.Equal(t, "45.5", out.Balance.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/wallet", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/wallet", "").Code)
}
