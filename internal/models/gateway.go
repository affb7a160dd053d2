package models

type GatewayState string

const (
	GatewayPending    GatewayState = "PENDING"
	GatewayProcessing GatewayState = "PROCESSING"
	GatewayCompleted  GatewayState = "COMPLETED"
	GatewayFailed     GatewayState = "FAILED"
)

// MinorUnitDivisor converts gateway amounts (paise) to major units (rupees).
const MinorUnitDivisor = 100

// GatewayTransaction is the gateway's record of a money movement. It is
// fetched live and never persisted as an owned entity; at most a snapshot
// is kept as evidence inside a ReconciliationAction.
type GatewayTransaction struct {
	TransactionID         string       `json:"transactionId"`
	MerchantTransactionID string       `json:"merchantTransactionId"`
	State                 GatewayState `json:"state"`
	Amount                int64        `json:"amount"` // minor units
	PayerName             string       `json:"payerName,omitempty"`
	PayerVPA              string       `json:"payerVpa,omitempty"`
	PaymentInstrument     string       `json:"paymentInstrument,omitempty"`
}

// AmountMajor converts the gateway's minor-unit amount for comparison
// with local ledger amounts.
func (t *GatewayTransaction) AmountMajor() float64 {
	return float64(t.Amount) / MinorUnitDivisor
}

type VerifyStatus string

const (
	VerifyCompleted    VerifyStatus = "COMPLETED"
	VerifyFailed       VerifyStatus = "FAILED"
	VerifyNotFound     VerifyStatus = "NOT_FOUND"
	VerifyUndetermined VerifyStatus = "UNDETERMINED"
)

// Terminal reports whether a verification status can never change on
// retry. Undetermined is not terminal in the gateway's ledger, but it is
// terminal for a single verification run.
func (s VerifyStatus) Terminal() bool {
	return s == VerifyCompleted || s == VerifyFailed || s == VerifyNotFound
}

// VerifyResult is the outcome of querying the gateway for one merchant
// reference under the retry budget. Undetermined must never be treated as
// success by any caller.
type VerifyResult struct {
	Status      VerifyStatus        `json:"status"`
	Transaction *GatewayTransaction `json:"transaction,omitempty"`
	Attempts    int                 `json:"attempts"`
	LastError   string              `json:"lastError,omitempty"`
}
