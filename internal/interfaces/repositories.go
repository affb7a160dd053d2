package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/aakar745/stallpay-recon/internal/models"
)

var (
	// ErrNotFound means no local record exists for the given key. It is a
	// valid decision-table input, not a failure.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is a unique-constraint hit on create. Callers resolve it
	// by re-reading the now-existing record, never by surfacing an error.
	ErrDuplicate = errors.New("record already exists")
)

// ScopedReceipt pairs a receipt number with the exhibition that issued it,
// so scanners can keep sequence walks inside exhibition-year boundaries.
type ScopedReceipt struct {
	ExhibitionID  string
	ReceiptNumber string
}

// LedgerRepository is the contract for local charge-record access.
type LedgerRepository interface {
	GetByReceiptNumber(ctx context.Context, receiptNumber string) (*models.ChargeRecord, error)
	GetByMerchantRef(ctx context.Context, merchantRef string) (*models.ChargeRecord, error)
	GetByGatewayTransactionID(ctx context.Context, transactionID string) (*models.ChargeRecord, error)

	// ReceiptNumbersInScope returns every receipt number matching the scope,
	// with its exhibition, in no guaranteed order.
	ReceiptNumbersInScope(ctx context.Context, scope models.ScanScope) ([]ScopedReceipt, error)

	// LatestReceiptNumber returns the highest receipt number on file, or
	// ErrNotFound when the ledger is empty.
	LatestReceiptNumber(ctx context.Context) (string, error)

	// CreatePaid inserts a new record already in paid state. Returns
	// ErrDuplicate when the receipt number or merchant reference is taken.
	CreatePaid(ctx context.Context, rec *models.ChargeRecord) error

	// MarkPaid is a compare-and-set: the update applies only if the record
	// is still in the given status. Returns the number of rows changed.
	MarkPaid(ctx context.Context, receiptNumber string, from models.PaymentStatus, transactionID string, amount float64, paidAt time.Time) (int64, error)
}

// AuditRepository stores the append-only reconciliation trail.
type AuditRepository interface {
	Append(ctx context.Context, action *models.ReconciliationAction) error
	ListByReceipt(ctx context.Context, receiptNumber string) ([]models.ReconciliationAction, error)
}

// GatewayClient fetches a single transaction from the external gateway by
// merchant reference. Implementations must enforce the gateway rate limit
// themselves regardless of caller concurrency.
type GatewayClient interface {
	Status(ctx context.Context, merchantRef string) (*models.GatewayTransaction, error)
}
