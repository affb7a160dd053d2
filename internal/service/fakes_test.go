package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/interfaces"
	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

func init() {
	telemetry.Logger = zap.NewNop()
}

// fakeLedger is an in-memory LedgerRepository with the same conditional
// write semantics as the postgres implementation.
type fakeLedger struct {
	mu      sync.Mutex
	records map[string]*models.ChargeRecord
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: map[string]*models.ChargeRecord{}}
}

func (f *fakeLedger) put(rec models.ChargeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ReceiptNumber] = &rec
}

func (f *fakeLedger) get(receiptNumber string) *models.ChargeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[receiptNumber]; ok {
		cp := *rec
		return &cp
	}
	return nil
}

func (f *fakeLedger) GetByReceiptNumber(_ context.Context, receiptNumber string) (*models.ChargeRecord, error) {
	if rec := f.get(receiptNumber); rec != nil {
		return rec, nil
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeLedger) GetByMerchantRef(_ context.Context, merchantRef string) (*models.ChargeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.GatewayMerchantRef == merchantRef {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeLedger) GetByGatewayTransactionID(_ context.Context, transactionID string) (*models.ChargeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.GatewayTransactionID == transactionID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeLedger) ReceiptNumbersInScope(_ context.Context, scope models.ScanScope) ([]interfaces.ScopedReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interfaces.ScopedReceipt
	for _, rec := range f.records {
		if scope.ExhibitionID != "" && rec.ExhibitionID != scope.ExhibitionID {
			continue
		}
		if scope.StartDate != nil && rec.CreatedAt.Before(*scope.StartDate) {
			continue
		}
		if scope.EndDate != nil && rec.CreatedAt.After(*scope.EndDate) {
			continue
		}
		out = append(out, interfaces.ScopedReceipt{
			ExhibitionID:  rec.ExhibitionID,
			ReceiptNumber: rec.ReceiptNumber,
		})
	}
	return out, nil
}

func (f *fakeLedger) LatestReceiptNumber(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest := ""
	for rn := range f.records {
		if rn > latest {
			latest = rn
		}
	}
	if latest == "" {
		return "", interfaces.ErrNotFound
	}
	return latest, nil
}

func (f *fakeLedger) CreatePaid(_ context.Context, rec *models.ChargeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.ReceiptNumber]; ok {
		return interfaces.ErrDuplicate
	}
	for _, existing := range f.records {
		if existing.GatewayMerchantRef == rec.GatewayMerchantRef {
			return interfaces.ErrDuplicate
		}
	}
	cp := *rec
	f.records[rec.ReceiptNumber] = &cp
	return nil
}

func (f *fakeLedger) MarkPaid(_ context.Context, receiptNumber string, from models.PaymentStatus, transactionID string, amount float64, paidAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[receiptNumber]
	if !ok || rec.PaymentStatus != from {
		return 0, nil
	}
	rec.PaymentStatus = models.StatusPaid
	rec.GatewayTransactionID = transactionID
	rec.Amount = amount
	rec.PaidAt = &paidAt
	return 1, nil
}

// fakeAudit records appends in order.
type fakeAudit struct {
	mu      sync.Mutex
	actions []models.ReconciliationAction
}

func (f *fakeAudit) Append(_ context.Context, action *models.ReconciliationAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, *action)
	return nil
}

func (f *fakeAudit) ListByReceipt(_ context.Context, receiptNumber string) ([]models.ReconciliationAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ReconciliationAction
	for _, a := range f.actions {
		if a.ReceiptNumber == receiptNumber {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAudit) byDecision(decision models.Decision) []models.ReconciliationAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ReconciliationAction
	for _, a := range f.actions {
		if a.Decision == decision {
			out = append(out, a)
		}
	}
	return out
}

// fakeGateway serves scripted responses per merchant reference. The last
// response for a reference repeats once the script runs out.
type gatewayReply struct {
	txn *models.GatewayTransaction
	err error
}

type fakeGateway struct {
	mu      sync.Mutex
	scripts map[string][]gatewayReply
	calls   map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{scripts: map[string][]gatewayReply{}, calls: map[string]int{}}
}

func (f *fakeGateway) script(ref string, replies ...gatewayReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[ref] = replies
}

func (f *fakeGateway) completed(ref string, amountMinor int64) {
	f.script(ref, gatewayReply{txn: &models.GatewayTransaction{
		TransactionID:         "T" + ref,
		MerchantTransactionID: ref,
		State:                 models.GatewayCompleted,
		Amount:                amountMinor,
	}})
}

func (f *fakeGateway) Status(_ context.Context, merchantRef string) (*models.GatewayTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	replies, ok := f.scripts[merchantRef]
	if !ok || len(replies) == 0 {
		return nil, fmt.Errorf("fakeGateway: no script for %s", merchantRef)
	}
	i := f.calls[merchantRef]
	f.calls[merchantRef]++
	if i >= len(replies) {
		i = len(replies) - 1
	}
	reply := replies[i]
	return reply.txn, reply.err
}

// recorder captures collaborator traffic.
type recorder struct {
	mu        sync.Mutex
	published []models.ReconciliationAction
	receipts  []string
}

func (r *recorder) PublishAction(_ context.Context, action *models.ReconciliationAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, *action)
	return nil
}

func (r *recorder) RequestReceipt(_ context.Context, receiptNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, receiptNumber)
	return nil
}

// fakeSleeper records requested delays without waiting.
type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	return ctx.Err()
}

func pendingReply(ref string) gatewayReply {
	return gatewayReply{txn: &models.GatewayTransaction{
		TransactionID:         "T" + ref,
		MerchantTransactionID: ref,
		State:                 models.GatewayPending,
	}}
}

func completedReply(ref string, amountMinor int64) gatewayReply {
	return gatewayReply{txn: &models.GatewayTransaction{
		TransactionID:         "T" + ref,
		MerchantTransactionID: ref,
		State:                 models.GatewayCompleted,
		Amount:                amountMinor,
	}}
}
