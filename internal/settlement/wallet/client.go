package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	walletdto "github.com/radieske/draw-settlement/internal/wallet-service/dto"
)

// Client credita ganhos via wallet-service. Satisfaz ledger.Wallet.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(base, "/"),
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) Increment(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (decimal.Decimal, error) {
	body, err := json.Marshal(walletdto.CreditRequest{UserID: userID, Amount: amount, ExternalRef: externalRef})
	if err != nil {
		return decimal.Zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/wallet/credit", bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return decimal.Zero, fmt.Errorf("wallet credit http %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out walletdto.CreditResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}
