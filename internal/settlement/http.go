package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/resilience"

	"github.com/shopspring/decimal"
)

// HTTPClient settles currency rewards through a remote payout API.
// Points and badges are settled locally by Fallback.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	guard      *resilience.Guard
	Fallback   Settler
}

// NewHTTPClient creates a payout client. Calls go through guard (the
// network breaker plus the network retry policy).
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, guard *resilience.Guard) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		guard:   guard,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		Fallback: NewSimulated(0, 0),
	}
}

type payoutRequest struct {
	RewardID       string          `json:"reward_id"`
	Wallet         string          `json:"wallet"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type payoutResponse struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

func (c *HTTPClient) Settle(ctx context.Context, r *domain.Reward) (string, error) {
	if r.Payout.Kind != domain.PayoutCurrency {
		return c.Fallback.Settle(ctx, r)
	}

	body, err := json.Marshal(payoutRequest{
		RewardID:       r.ID.String(),
		Wallet:         r.Wallet,
		Currency:       string(r.Payout.Currency),
		Amount:         r.Payout.Amount,
		IdempotencyKey: r.ID.String(),
	})
	if err != nil {
		return "", err
	}

	return resilience.Call(ctx, c.guard, "payout", func(ctx context.Context) (string, error) {
		return c.post(ctx, body)
	})
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/payouts", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &resilience.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var out payoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("payout response without tx_hash (status %q)", out.Status)
	}
	return out.TxHash, nil
}
