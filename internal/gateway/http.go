// Package gateway holds the production chargeback network client. The engine
// only sees the ChargebackGateway interface; this implementation speaks JSON
// over HTTP to the network adapter and inherits its deadline from the caller's
// context.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/dispute-engine/internal/disputes"
)

// Client implements disputes.ChargebackGateway against a network adapter.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient builds a client with a bounded transport timeout as a backstop;
// individual calls are still bounded by the caller's context.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type initiateRequest struct {
	CardNumber        string `json:"card_number"`
	TransactionID     string `json:"transaction_id"`
	NetworkReasonCode string `json:"network_reason_code"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency_code"`
	MerchantID        string `json:"merchant_id"`
	Narrative         string `json:"narrative"`
}

type initiateResponse struct {
	ChargebackID string `json:"chargeback_id"`
}

func (c *Client) InitiateChargeback(ctx context.Context, req disputes.InitiateChargebackRequest) (string, error) {
	var resp initiateResponse
	err := c.post(ctx, "/chargebacks", initiateRequest{
		CardNumber:        req.CardNumber,
		TransactionID:     req.TransactionID,
		NetworkReasonCode: req.NetworkReasonCode,
		Amount:            req.Amount.StringFixed(2),
		Currency:          req.Currency,
		MerchantID:        req.MerchantID,
		Narrative:         req.Narrative,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ChargebackID == "" {
		return "", fmt.Errorf("gateway returned no chargeback id")
	}
	return resp.ChargebackID, nil
}

func (c *Client) UpdateStatus(ctx context.Context, chargebackID, status, note string) error {
	return c.post(ctx, "/chargebacks/"+chargebackID+"/status", map[string]string{
		"status": status,
		"note":   note,
	}, nil)
}

type verdictResponse struct {
	Verdict string `json:"verdict"`
}

func (c *Client) ProcessResponse(ctx context.Context, chargebackID string, payload []byte, receivedAt time.Time) (disputes.Verdict, error) {
	var resp verdictResponse
	err := c.post(ctx, "/chargebacks/"+chargebackID+"/network-response", map[string]any{
		"payload":     string(payload),
		"received_at": receivedAt.Format(time.RFC3339),
	}, &resp)
	if err != nil {
		return "", err
	}
	return disputes.Verdict(resp.Verdict), nil
}

func (c *Client) HandleMerchantResponse(ctx context.Context, chargebackID, responseType string, payload []byte, receivedAt time.Time) (disputes.Verdict, error) {
	var resp verdictResponse
	err := c.post(ctx, "/chargebacks/"+chargebackID+"/merchant-response", map[string]any{
		"response_type": responseType,
		"payload":       string(payload),
		"received_at":   receivedAt.Format(time.RFC3339),
	}, &resp)
	if err != nil {
		return "", err
	}
	return disputes.Verdict(resp.Verdict), nil
}

type settlementResponse struct {
	SettlementAmount string `json:"settlement_amount"`
}

func (c *Client) CalculateSettlement(ctx context.Context, chargebackID string, amount decimal.Decimal, decision, currency string) (decimal.Decimal, error) {
	var resp settlementResponse
	err := c.post(ctx, "/chargebacks/"+chargebackID+"/settlement", map[string]string{
		"amount":        amount.StringFixed(2),
		"decision":      decision,
		"currency_code": currency,
	}, &resp)
	if err != nil {
		return decimal.Zero, err
	}

	settled, err := decimal.NewFromString(resp.SettlementAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gateway returned malformed settlement amount: %w", err)
	}
	return settled, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
