package payouts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/marketloop/settlements-backend/pkg/errors"
)

// HTTPProvider sends payout batches to a JSON transfer endpoint. The rail
// dedupes on the idempotency key, so resending after a network error is
// safe.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider builds a rail adapter for the given endpoint. Timeouts
// come from the caller's context, not the client.
func NewHTTPProvider(baseURL, apiKey string) (*HTTPProvider, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("rail url is required")
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}, nil
}

type transferRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Destination    string `json:"destination"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
}

type transferResponse struct {
	Reference string `json:"reference"`
}

func (p *HTTPProvider) Send(ctx context.Context, req PayoutRequest) (PayoutReceipt, error) {
	body, err := json.Marshal(transferRequest{
		IdempotencyKey: req.BatchID.String(),
		Destination:    req.Destination,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
	})
	if err != nil {
		return PayoutReceipt{}, fmt.Errorf("encode transfer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return PayoutReceipt{}, fmt.Errorf("build transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return PayoutReceipt{}, errors.Wrap(errors.CodeDependency, err, "payout rail unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PayoutReceipt{}, errors.New(errors.CodeDependency,
			fmt.Sprintf("payout rail returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var payload transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PayoutReceipt{}, errors.Wrap(errors.CodeDependency, err, "decode rail response")
	}
	if payload.Reference == "" {
		return PayoutReceipt{}, errors.New(errors.CodeDependency, "rail response missing reference")
	}
	return PayoutReceipt{Reference: payload.Reference}, nil
}
