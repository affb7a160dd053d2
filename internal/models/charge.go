package models

import "time"

type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusPaid     PaymentStatus = "paid"
	StatusFailed   PaymentStatus = "failed"
	StatusRefunded PaymentStatus = "refunded"
)

// ChargeRecord is a local ledger entry for a per-stall service charge.
// Amount is in major currency units. Records are created in pending state
// by the payment-initiation flow; only the reconciler or the gateway
// callback may move one to paid.
type ChargeRecord struct {
	ReceiptNumber        string        `json:"receiptNumber"`
	ExhibitionID         string        `json:"exhibitionId"`
	VendorID             string        `json:"vendorId"`
	StallNumber          string        `json:"stallNumber"`
	CompanyName          string        `json:"companyName"`
	Amount               float64       `json:"amount"`
	PaymentStatus        PaymentStatus `json:"paymentStatus"`
	GatewayTransactionID string        `json:"gatewayTransactionId,omitempty"`
	GatewayMerchantRef   string        `json:"gatewayMerchantRef,omitempty"`
	PaidAt               *time.Time    `json:"paidAt,omitempty"`
	ReceiptGenerated     bool          `json:"receiptGenerated"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

// Attribution carries the vendor/stall metadata needed to turn bare
// gateway evidence into a valid local record.
type Attribution struct {
	ExhibitionID string `json:"exhibitionId"`
	VendorID     string `json:"vendorId"`
	StallNumber  string `json:"stallNumber"`
	CompanyName  string `json:"companyName"`
}

// ScanScope bounds a detection run. Receipt sequences are never merged
// across exhibition or year boundaries regardless of how wide the scope is.
type ScanScope struct {
	ExhibitionID string     `json:"exhibitionId,omitempty"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
}
