package disputes

import (
	"time"

	"github.com/shopspring/decimal"
)

// DisputeType classifies why the cardholder is contesting the transaction.
type DisputeType string

const (
	TypeUnauthorized       DisputeType = "UNAUTHORIZED"
	TypeDuplicate          DisputeType = "DUPLICATE"
	TypeFraud              DisputeType = "FRAUD"
	TypeBillingError       DisputeType = "BILLING_ERROR"
	TypeProductNotReceived DisputeType = "PRODUCT_NOT_RECEIVED"
	TypeCreditNotProcessed DisputeType = "CREDIT_NOT_PROCESSED"
)

// DisputeStatus is the single source of truth for lifecycle position.
type DisputeStatus string

const (
	StatusOpened                  DisputeStatus = "OPENED"
	StatusInvestigating           DisputeStatus = "INVESTIGATING"
	StatusChargebackInitiated     DisputeStatus = "CHARGEBACK_INITIATED"
	StatusPendingMerchantResponse DisputeStatus = "PENDING_MERCHANT_RESPONSE"
	StatusRepresentmentReview     DisputeStatus = "REPRESENTMENT_REVIEW"
	StatusResolvedMerchant        DisputeStatus = "RESOLVED_MERCHANT"
	StatusResolvedCustomer        DisputeStatus = "RESOLVED_CUSTOMER"
	StatusEscalated               DisputeStatus = "ESCALATED"
	StatusOverdue                 DisputeStatus = "OVERDUE"
	StatusClosed                  DisputeStatus = "CLOSED"
)

// Escalation levels identify which trigger fired.
const (
	EscalationTimelineExceeded   = "TIMELINE_EXCEEDED"
	EscalationHighValue          = "HIGH_VALUE"
	EscalationFraudInvestigation = "FRAUD_INVESTIGATION"
)

// Dispute is the engine-owned record. It is mutated only through engine
// operations, never partially. Version backs the conditional-save discipline
// in the stores.
type Dispute struct {
	ID                    string          `json:"id"`
	TransactionID         string          `json:"transaction_id"`
	AccountID             string          `json:"account_id"`
	MerchantID            string          `json:"merchant_id"`
	Type                  DisputeType     `json:"dispute_type"`
	ReasonCode            ReasonCode      `json:"reason_code"`
	Description           string          `json:"description"`
	Status                DisputeStatus   `json:"status"`
	ProvisionalCredit     decimal.Decimal `json:"provisional_credit_amount"`
	DocumentationRequired bool            `json:"documentation_required"`
	EscalationLevel       string          `json:"escalation_level,omitempty"`
	ChargebackID          string          `json:"chargeback_id,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	RegulatoryDeadline    time.Time       `json:"regulatory_deadline"`
	ResolutionDate        *time.Time      `json:"resolution_date,omitempty"`
	ResolutionReason      string          `json:"resolution_reason,omitempty"`
	Version               int64           `json:"version"`
}

// Resolved reports whether a verdict has been recorded.
func (d *Dispute) Resolved() bool {
	return d.ResolutionDate != nil
}

// Terminal reports whether the dispute can no longer change state.
func (d *Dispute) Terminal() bool {
	return d.Status == StatusClosed
}

// CreditOutstanding reports whether an unreconciled ledger adjustment exists.
func (d *Dispute) CreditOutstanding() bool {
	return !d.ProvisionalCredit.IsZero()
}

// Transaction is the externally-owned record this engine reads but never
// writes.
type Transaction struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	MerchantID string          `json:"merchant_id"`
	CardNumber string          `json:"card_number"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency_code"`
	PostedAt   time.Time       `json:"posted_at"`
}
