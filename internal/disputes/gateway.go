package disputes

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Verdict is the gateway's normalized interpretation of a raw merchant or
// network response.
type Verdict string

const (
	VerdictAccepted      Verdict = "ACCEPTED"
	VerdictRepresentment Verdict = "REPRESENTMENT"
	VerdictRejected      Verdict = "REJECT"
	// VerdictForwarded is the network acknowledging delivery of the case to
	// the merchant's acquirer; the response clock is now on the merchant.
	VerdictForwarded Verdict = "FORWARDED"
)

// InitiateChargebackRequest carries everything the network needs to open a
// chargeback case against the merchant's acquirer.
type InitiateChargebackRequest struct {
	CardNumber        string
	TransactionID     string
	NetworkReasonCode string
	Amount            decimal.Decimal
	Currency          string
	MerchantID        string
	Narrative         string
}

// ChargebackGateway is the network-facing collaborator. Production and test
// implementations satisfy the same contract; every call is bounded by the
// caller's context deadline.
type ChargebackGateway interface {
	InitiateChargeback(ctx context.Context, req InitiateChargebackRequest) (string, error)
	UpdateStatus(ctx context.Context, chargebackID, status, note string) error
	ProcessResponse(ctx context.Context, chargebackID string, payload []byte, receivedAt time.Time) (Verdict, error)
	HandleMerchantResponse(ctx context.Context, chargebackID, responseType string, payload []byte, receivedAt time.Time) (Verdict, error)
	CalculateSettlement(ctx context.Context, chargebackID string, amount decimal.Decimal, decision, currency string) (decimal.Decimal, error)
}
