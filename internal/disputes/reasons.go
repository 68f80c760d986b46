package disputes

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ReasonCode narrows the dispute type to a specific network-recognized cause.
type ReasonCode string

const (
	ReasonUnauthorizedTransaction ReasonCode = "UNAUTHORIZED_TRANSACTION"
	ReasonCardNotPresentFraud     ReasonCode = "CARD_NOT_PRESENT_FRAUD"
	ReasonAccountTakeover         ReasonCode = "ACCOUNT_TAKEOVER"
	ReasonCounterfeitCard         ReasonCode = "COUNTERFEIT_CARD"
	ReasonStolenCard              ReasonCode = "STOLEN_CARD"
	ReasonDuplicateProcessing     ReasonCode = "DUPLICATE_PROCESSING"
	ReasonPaidByOtherMeans        ReasonCode = "PAID_BY_OTHER_MEANS"
	ReasonIncorrectAmount         ReasonCode = "INCORRECT_AMOUNT"
	ReasonCurrencyError           ReasonCode = "CURRENCY_ERROR"
	ReasonGoodsNotReceived        ReasonCode = "GOODS_NOT_RECEIVED"
	ReasonServicesNotRendered     ReasonCode = "SERVICES_NOT_RENDERED"
	ReasonCreditNotProcessed      ReasonCode = "CREDIT_NOT_PROCESSED"
	ReasonRefundNotReceived       ReasonCode = "REFUND_NOT_RECEIVED"
)

// reasonsByType is the fixed allow-list enforced at creation time. An invalid
// pairing is a ValidationError, never a silent default.
var reasonsByType = map[DisputeType][]ReasonCode{
	TypeUnauthorized: {
		ReasonUnauthorizedTransaction,
		ReasonCardNotPresentFraud,
		ReasonAccountTakeover,
	},
	TypeDuplicate: {
		ReasonDuplicateProcessing,
		ReasonPaidByOtherMeans,
	},
	TypeFraud: {
		ReasonCounterfeitCard,
		ReasonStolenCard,
		ReasonCardNotPresentFraud,
		ReasonAccountTakeover,
	},
	TypeBillingError: {
		ReasonIncorrectAmount,
		ReasonCurrencyError,
		ReasonDuplicateProcessing,
	},
	TypeProductNotReceived: {
		ReasonGoodsNotReceived,
		ReasonServicesNotRendered,
	},
	TypeCreditNotProcessed: {
		ReasonCreditNotProcessed,
		ReasonRefundNotReceived,
	},
}

// highRiskFraudReasons feed the FRAUD_INVESTIGATION escalation trigger.
var highRiskFraudReasons = map[ReasonCode]bool{
	ReasonCounterfeitCard: true,
	ReasonStolenCard:      true,
	ReasonAccountTakeover: true,
}

// ValidTypeReason reports whether the pairing is in the allow-list.
func ValidTypeReason(t DisputeType, r ReasonCode) bool {
	for _, allowed := range reasonsByType[t] {
		if allowed == r {
			return true
		}
	}
	return false
}

// KnownType reports whether t is a recognized dispute type.
func KnownType(t DisputeType) bool {
	_, ok := reasonsByType[t]
	return ok
}

// ReasonsForType returns the allowed reason codes for a type.
func ReasonsForType(t DisputeType) []ReasonCode {
	return reasonsByType[t]
}

// HighRiskReason reports whether the reason code carries elevated fraud risk.
func HighRiskReason(r ReasonCode) bool {
	return highRiskFraudReasons[r]
}

// documentationRequired applies the type/amount rule fixed at creation:
// fraud-family disputes always require documentation, everything else only
// above the configured amount threshold.
func documentationRequired(t DisputeType, amount, threshold decimal.Decimal) bool {
	if t == TypeFraud || t == TypeUnauthorized {
		return true
	}
	return amount.GreaterThanOrEqual(threshold)
}

// maskCard keeps only the last four digits for logs and audit payloads.
func maskCard(pan string) string {
	if len(pan) <= 4 {
		return "****"
	}
	return "****" + pan[len(pan)-4:]
}

// referencesDocumentation is the soft check applied when resolving a dispute
// whose record demands reviewed documentation.
func referencesDocumentation(reason string) bool {
	lower := strings.ToLower(reason)
	return strings.Contains(lower, "document") || strings.Contains(lower, "evidence")
}
