package interfaces

import (
	"context"

	"github.com/aakar745/stallpay-recon/internal/models"
)

// ActionPublisher broadcasts applied reconciliation actions to downstream
// consumers (reporting, alerting). Publish failures must not roll back the
// local write that already happened.
type ActionPublisher interface {
	PublishAction(ctx context.Context, action *models.ReconciliationAction) error
}

// ReceiptRequester asks the external receipt service to generate the PDF
// receipt for a newly paid record. Generation itself is out of scope here.
type ReceiptRequester interface {
	RequestReceipt(ctx context.Context, receiptNumber string) error
}
