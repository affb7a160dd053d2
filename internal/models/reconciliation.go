package models

import (
	"encoding/json"
	"time"
)

type Decision string

const (
	DecisionCreate           Decision = "CREATE"
	DecisionUpdate           Decision = "UPDATE"
	DecisionNoOp             Decision = "NO_OP"
	DecisionNeedsAttribution Decision = "NEEDS_ATTRIBUTION"
	DecisionDiscrepancy      Decision = "DISCREPANCY"
	DecisionInconclusive     Decision = "INCONCLUSIVE"
)

// ReconciliationAction is the append-only audit record written whenever
// the engine applies or flags a reconciliation outcome. Immutable once
// written.
type ReconciliationAction struct {
	ID            string          `json:"id"`
	ReceiptNumber string          `json:"receiptNumber"`
	MerchantRef   string          `json:"merchantRef"`
	Decision      Decision        `json:"decision"`
	BeforeState   string          `json:"beforeState"`
	AfterState    string          `json:"afterState"`
	Evidence      json.RawMessage `json:"evidence,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// SyncResult is the per-reference outcome of a sync or detection run.
type SyncResult struct {
	ReceiptNumber   string              `json:"receiptNumber"`
	Decision        Decision            `json:"decision"`
	PaymentStatus   PaymentStatus       `json:"paymentStatus,omitempty"`
	Amount          float64             `json:"amount,omitempty"`
	GatewayStatus   VerifyStatus        `json:"gatewayStatus,omitempty"`
	GatewayEvidence *GatewayTransaction `json:"gatewayEvidence,omitempty"`
	Suggestion      string              `json:"suggestion,omitempty"`
	Message         string              `json:"message,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// DetectionReport summarizes a scan or bulk-sync run. PotentialRevenueLoss
// is the sum of gateway amounts, in major units, over the CREATE and
// NEEDS_ATTRIBUTION outcomes only.
type DetectionReport struct {
	ScanType             string       `json:"scanType"`
	ExhibitionID         string       `json:"exhibitionId,omitempty"`
	WindowStart          *time.Time   `json:"windowStart,omitempty"`
	WindowEnd            *time.Time   `json:"windowEnd,omitempty"`
	TotalChecked         int          `json:"totalChecked"`
	MissingCount         int          `json:"missingCount"`
	SuccessfulInGateway  int          `json:"successfulInGateway"`
	DiscrepancyCount     int          `json:"discrepancyCount"`
	InconclusiveCount    int          `json:"inconclusiveCount"`
	PotentialRevenueLoss float64      `json:"potentialRevenueLoss"`
	Results              []SyncResult `json:"results,omitempty"`
	Recommendations      []string     `json:"recommendations"`
	RemainingToCheck     int          `json:"remainingToCheck"`
	StartedAt            time.Time    `json:"startedAt"`
	CompletedAt          time.Time    `json:"completedAt"`
}
