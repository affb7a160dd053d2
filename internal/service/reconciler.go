package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/interfaces"
	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

const stateAbsent = "absent"

// Reconciler resolves one (local record, gateway verdict, attribution)
// triple to exactly one outcome and applies it. All writes are
// conditional: creates hit the receipt-number / merchant-ref unique keys,
// updates compare-and-set on the current status, and either kind of lost
// race is resolved by re-reading the winner's record and re-evaluating.
// No lock is held across gateway I/O; the verdict is computed before
// Reconcile is called.
type Reconciler struct {
	ledger   interfaces.LedgerRepository
	audit    interfaces.AuditRepository
	events   interfaces.ActionPublisher
	receipts interfaces.ReceiptRequester
	now      func() time.Time
}

func NewReconciler(ledger interfaces.LedgerRepository, audit interfaces.AuditRepository,
	events interfaces.ActionPublisher, receipts interfaces.ReceiptRequester) *Reconciler {
	return &Reconciler{
		ledger:   ledger,
		audit:    audit,
		events:   events,
		receipts: receipts,
		now:      time.Now,
	}
}

// Reconcile applies the decision table for one reference. local may be
// nil (no ledger record); attr may be nil (no human-supplied
// attribution).
func (r *Reconciler) Reconcile(ctx context.Context, receiptNumber string, local *models.ChargeRecord,
	verdict models.VerifyResult, attr *models.Attribution) (models.SyncResult, error) {
	result, err := r.reconcile(ctx, receiptNumber, local, verdict, attr, 0)
	telemetry.ReconDecisions.WithLabelValues(string(result.Decision)).Inc()
	return result, err
}

func (r *Reconciler) reconcile(ctx context.Context, receiptNumber string, local *models.ChargeRecord,
	verdict models.VerifyResult, attr *models.Attribution, depth int) (models.SyncResult, error) {

	result := models.SyncResult{
		ReceiptNumber: receiptNumber,
		GatewayStatus: verdict.Status,
	}
	if local != nil {
		result.PaymentStatus = local.PaymentStatus
		result.Amount = local.Amount
	}

	switch verdict.Status {
	case models.VerifyUndetermined:
		// never success, never failure: leave everything as is
		result.Decision = models.DecisionInconclusive
		result.Message = fmt.Sprintf("gateway state undetermined after %d attempts; try again later", verdict.Attempts)
		if verdict.LastError != "" {
			result.Error = verdict.LastError
		}
		return result, nil

	case models.VerifyFailed, models.VerifyNotFound:
		return r.reconcileNotCompleted(ctx, receiptNumber, local, verdict, result)

	case models.VerifyCompleted:
		return r.reconcileCompleted(ctx, receiptNumber, local, verdict, attr, result, depth)
	}

	result.Decision = models.DecisionInconclusive
	result.Message = "unknown verification status " + string(verdict.Status)
	return result, nil
}

// reconcileNotCompleted covers FAILED and NotFound verdicts. Gateway
// absence is not proof of failure, so pending records stay pending. A
// paid record with no completed gateway transaction behind it violates
// the ledger invariant and is flagged, never auto-corrected.
func (r *Reconciler) reconcileNotCompleted(ctx context.Context, receiptNumber string,
	local *models.ChargeRecord, verdict models.VerifyResult, result models.SyncResult) (models.SyncResult, error) {

	if local == nil {
		result.Decision = models.DecisionNoOp
		result.Message = "no local record and no completed gateway transaction"
		return result, nil
	}

	if local.PaymentStatus == models.StatusPaid {
		result.Decision = models.DecisionDiscrepancy
		result.Message = fmt.Sprintf("local record is paid but gateway reports %s; manual review required", verdict.Status)
		result.GatewayEvidence = verdict.Transaction
		r.recordAction(ctx, receiptNumber, result, string(models.StatusPaid))
		return result, nil
	}

	result.Decision = models.DecisionNoOp
	result.Message = "left " + string(local.PaymentStatus) + "; gateway absence is not proof of failure"
	return result, nil
}

func (r *Reconciler) reconcileCompleted(ctx context.Context, receiptNumber string, local *models.ChargeRecord,
	verdict models.VerifyResult, attr *models.Attribution, result models.SyncResult, depth int) (models.SyncResult, error) {

	txn := verdict.Transaction
	gatewayAmount := txn.AmountMajor()
	result.GatewayEvidence = txn

	if local == nil {
		if attr == nil {
			// money exists remotely; never silently drop it
			result.Decision = models.DecisionNeedsAttribution
			result.Amount = gatewayAmount
			result.Suggestion = "re-submit with vendor/stall attribution to create the local record"
			result.Message = fmt.Sprintf("gateway holds a completed payment of %.2f with no local record", gatewayAmount)
			r.recordAction(ctx, receiptNumber, result, stateAbsent)
			return result, nil
		}
		return r.createPaid(ctx, receiptNumber, txn, attr, result, depth)
	}

	switch local.PaymentStatus {
	case models.StatusPending:
		return r.markPaid(ctx, receiptNumber, local, verdict, attr, result, depth)

	case models.StatusPaid:
		if local.Amount == gatewayAmount {
			result.Decision = models.DecisionNoOp
			result.Message = "already paid with matching amount"
			return result, nil
		}
		result.Decision = models.DecisionDiscrepancy
		result.Message = fmt.Sprintf("amount mismatch: local %.2f vs gateway %.2f; manual review required", local.Amount, gatewayAmount)
		r.recordAction(ctx, receiptNumber, result, string(models.StatusPaid))
		return result, nil

	case models.StatusRefunded:
		result.Decision = models.DecisionNoOp
		result.Message = "already refunded; refunds are explicit manual transitions"
		return result, nil

	case models.StatusFailed:
		result.Decision = models.DecisionDiscrepancy
		result.Message = "local record is failed but gateway reports COMPLETED; manual review required"
		r.recordAction(ctx, receiptNumber, result, string(models.StatusFailed))
		return result, nil
	}

	result.Decision = models.DecisionNoOp
	result.Message = "unhandled local status " + string(local.PaymentStatus)
	return result, nil
}

func (r *Reconciler) createPaid(ctx context.Context, receiptNumber string, txn *models.GatewayTransaction,
	attr *models.Attribution, result models.SyncResult, depth int) (models.SyncResult, error) {

	paidAt := r.now().UTC()
	rec := &models.ChargeRecord{
		ReceiptNumber:        receiptNumber,
		ExhibitionID:         attr.ExhibitionID,
		VendorID:             attr.VendorID,
		StallNumber:          attr.StallNumber,
		CompanyName:          attr.CompanyName,
		Amount:               txn.AmountMajor(),
		PaymentStatus:        models.StatusPaid,
		GatewayTransactionID: txn.TransactionID,
		GatewayMerchantRef:   receiptNumber,
		PaidAt:               &paidAt,
	}

	err := r.ledger.CreatePaid(ctx, rec)
	if errors.Is(err, interfaces.ErrDuplicate) {
		// benign race: a concurrent run or gateway callback created the
		// record first; re-read the winner and re-evaluate
		return r.reEvaluate(ctx, receiptNumber, models.VerifyResult{
			Status:      models.VerifyCompleted,
			Transaction: txn,
		}, attr, depth)
	}
	if err != nil {
		result.Decision = models.DecisionInconclusive
		result.Error = err.Error()
		return result, fmt.Errorf("creating paid record %s: %w", receiptNumber, err)
	}

	result.Decision = models.DecisionCreate
	result.PaymentStatus = models.StatusPaid
	result.Amount = rec.Amount
	result.Message = "created paid record from gateway evidence"
	r.recordAction(ctx, receiptNumber, result, stateAbsent)
	r.requestReceipt(ctx, receiptNumber)

	telemetry.Logger.Info("Reconciler created paid record",
		zap.String("receipt_number", receiptNumber),
		zap.Float64("amount", rec.Amount),
		zap.String("gateway_txn", txn.TransactionID),
	)
	return result, nil
}

func (r *Reconciler) markPaid(ctx context.Context, receiptNumber string, local *models.ChargeRecord,
	verdict models.VerifyResult, attr *models.Attribution, result models.SyncResult, depth int) (models.SyncResult, error) {

	txn := verdict.Transaction
	paidAt := r.now().UTC()
	rows, err := r.ledger.MarkPaid(ctx, receiptNumber, local.PaymentStatus, txn.TransactionID, txn.AmountMajor(), paidAt)
	if err != nil {
		result.Decision = models.DecisionInconclusive
		result.Error = err.Error()
		return result, fmt.Errorf("marking %s paid: %w", receiptNumber, err)
	}
	if rows == 0 {
		// concurrent webhook won the compare-and-set; re-read and re-evaluate
		return r.reEvaluate(ctx, receiptNumber, verdict, attr, depth)
	}

	result.Decision = models.DecisionUpdate
	result.PaymentStatus = models.StatusPaid
	result.Amount = txn.AmountMajor()
	result.Message = "pending record confirmed paid against gateway"
	r.recordAction(ctx, receiptNumber, result, string(local.PaymentStatus))
	r.requestReceipt(ctx, receiptNumber)

	telemetry.Logger.Info("Reconciler confirmed payment",
		zap.String("receipt_number", receiptNumber),
		zap.Float64("amount", result.Amount),
		zap.String("gateway_txn", txn.TransactionID),
	)
	return result, nil
}

func (r *Reconciler) reEvaluate(ctx context.Context, receiptNumber string, verdict models.VerifyResult,
	attr *models.Attribution, depth int) (models.SyncResult, error) {

	if depth >= 2 {
		return models.SyncResult{
			ReceiptNumber: receiptNumber,
			Decision:      models.DecisionInconclusive,
			GatewayStatus: verdict.Status,
			Message:       "conditional write kept losing races; try again later",
		}, nil
	}

	local, err := r.ledger.GetByReceiptNumber(ctx, receiptNumber)
	if errors.Is(err, interfaces.ErrNotFound) {
		local, err = r.ledger.GetByMerchantRef(ctx, receiptNumber)
	}
	if errors.Is(err, interfaces.ErrNotFound) {
		local = nil
		err = nil
	}
	if err != nil {
		return models.SyncResult{
			ReceiptNumber: receiptNumber,
			Decision:      models.DecisionInconclusive,
			GatewayStatus: verdict.Status,
			Error:         err.Error(),
		}, fmt.Errorf("re-reading %s after lost race: %w", receiptNumber, err)
	}

	return r.reconcile(ctx, receiptNumber, local, verdict, attr, depth+1)
}

// recordAction appends to the immutable audit trail and fans the action
// out to kafka. The gateway snapshot rides along as evidence so it
// survives even when the decision only flags a problem.
func (r *Reconciler) recordAction(ctx context.Context, receiptNumber string, result models.SyncResult, beforeState string) {

	afterState := beforeState
	if result.Decision == models.DecisionCreate || result.Decision == models.DecisionUpdate {
		afterState = string(models.StatusPaid)
	}

	var evidence json.RawMessage
	if result.GatewayEvidence != nil {
		evidence, _ = json.Marshal(result.GatewayEvidence)
	}

	action := &models.ReconciliationAction{
		ID:            uuid.NewString(),
		ReceiptNumber: receiptNumber,
		MerchantRef:   receiptNumber,
		Decision:      result.Decision,
		BeforeState:   beforeState,
		AfterState:    afterState,
		Evidence:      evidence,
		CreatedAt:     r.now().UTC(),
	}

	if err := r.audit.Append(ctx, action); err != nil {
		telemetry.Logger.Error("Failed to append reconciliation action",
			zap.String("receipt_number", receiptNumber),
			zap.String("decision", string(result.Decision)),
			zap.Error(err),
		)
	}

	if r.events != nil {
		if err := r.events.PublishAction(ctx, action); err != nil {
			telemetry.Logger.Error("Failed to publish reconciliation action",
				zap.String("receipt_number", receiptNumber),
				zap.Error(err),
			)
		}
	}
}

func (r *Reconciler) requestReceipt(ctx context.Context, receiptNumber string) {
	if r.receipts == nil {
		return
	}
	if err := r.receipts.RequestReceipt(ctx, receiptNumber); err != nil {
		telemetry.Logger.Error("Failed to request receipt generation",
			zap.String("receipt_number", receiptNumber),
			zap.Error(err),
		)
	}
}
