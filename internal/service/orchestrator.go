package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/interfaces"
	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

var (
	// ErrValidation rejects a request before any gateway traffic.
	ErrValidation = errors.New("validation error")
	// ErrBusy means another run holds the per-reference lock right now.
	ErrBusy = errors.New("reference is already being reconciled")
)

// ProgressFunc receives each finished item so long runs can expose
// partial results while still in flight.
type ProgressFunc func(done, total int, result models.SyncResult)

// RefLocker serializes reconciliation per reference across service
// instances. The lock is only held around the local conditional write
// path, never across gateway I/O from other callers' perspective: the
// gateway verdict is computed first.
type RefLocker interface {
	TryLock(ctx context.Context, ref string) (release func(), err error)
}

type RedisRefLocker struct {
	client *redis.Client
}

func NewRedisRefLocker(client *redis.Client) *RedisRefLocker {
	return &RedisRefLocker{client: client}
}

func (l *RedisRefLocker) TryLock(ctx context.Context, ref string) (func(), error) {
	key := "recon:lock:" + ref
	ok, err := l.client.SetNX(ctx, key, "1", 90*time.Second).Result()
	if err != nil {
		// degraded redis: proceed unlocked, conditional writes still
		// guarantee single application
		return func() {}, nil
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() { l.client.Del(context.Background(), key) }, nil
}

// SyncOrchestrator drives Scanner -> Verifier -> Reconciler over bounded
// batches, isolating per-item failures.
type SyncOrchestrator struct {
	ledger     interfaces.LedgerRepository
	verifier   *Verifier
	reconciler *Reconciler
	gaps       *GapScanner
	orphans    *OrphanScanner
	reporter   *Reporter
	locker     RefLocker
	batchCap   int
}

func NewSyncOrchestrator(ledger interfaces.LedgerRepository, verifier *Verifier, reconciler *Reconciler,
	gaps *GapScanner, orphans *OrphanScanner, reporter *Reporter, locker RefLocker, batchCap int) *SyncOrchestrator {
	return &SyncOrchestrator{
		ledger:     ledger,
		verifier:   verifier,
		reconciler: reconciler,
		gaps:       gaps,
		orphans:    orphans,
		reporter:   reporter,
		locker:     locker,
		batchCap:   batchCap,
	}
}

// BatchCap is the per-run reference ceiling, gateway-rate driven.
func (o *SyncOrchestrator) BatchCap() int { return o.batchCap }

// SyncOne verifies a single reference against the gateway and applies the
// reconciliation decision. Either receiptNumber or gatewayTransactionID
// must be supplied.
func (o *SyncOrchestrator) SyncOne(ctx context.Context, receiptNumber, gatewayTransactionID string,
	attr *models.Attribution) (models.SyncResult, error) {

	ref := receiptNumber
	if ref == "" {
		if gatewayTransactionID == "" {
			return models.SyncResult{}, fmt.Errorf("%w: a receipt number or gateway transaction id is required", ErrValidation)
		}
		local, err := o.ledger.GetByGatewayTransactionID(ctx, gatewayTransactionID)
		if errors.Is(err, interfaces.ErrNotFound) {
			return models.SyncResult{}, fmt.Errorf("%w: no local record for gateway transaction %s; supply the receipt number", ErrValidation, gatewayTransactionID)
		}
		if err != nil {
			return models.SyncResult{}, err
		}
		ref = local.ReceiptNumber
	}

	if o.locker != nil {
		release, err := o.locker.TryLock(ctx, ref)
		if err != nil {
			return models.SyncResult{}, err
		}
		defer release()
	}

	local, err := o.ledger.GetByReceiptNumber(ctx, ref)
	if errors.Is(err, interfaces.ErrNotFound) {
		local, err = o.ledger.GetByMerchantRef(ctx, ref)
	}
	if errors.Is(err, interfaces.ErrNotFound) {
		local = nil
		err = nil
	}
	if err != nil {
		return models.SyncResult{}, err
	}

	// verdict first, then a single conditional write inside Reconcile
	verdict := o.verifier.Verify(ctx, ref)
	return o.reconciler.Reconcile(ctx, ref, local, verdict, attr)
}

// SyncBatch processes up to batchCap references. One item's failure never
// aborts the rest; the returned slice always covers every attempted item.
// A cancelled context stops the walk and returns what finished.
func (o *SyncOrchestrator) SyncBatch(ctx context.Context, refs []string, attr *models.Attribution,
	progress ProgressFunc) ([]models.SyncResult, int) {

	if len(refs) > o.batchCap {
		refs = refs[:o.batchCap]
	}

	results := make([]models.SyncResult, 0, len(refs))
	for i, ref := range refs {
		if ctx.Err() != nil {
			return results, len(refs) - i
		}

		result, err := o.SyncOne(ctx, ref, "", attr)
		if err != nil && result.Decision == "" {
			result = models.SyncResult{
				ReceiptNumber: ref,
				Decision:      models.DecisionInconclusive,
				Error:         err.Error(),
			}
		}
		if err != nil {
			telemetry.Logger.Warn("Batch item failed, continuing",
				zap.String("receipt_number", ref),
				zap.Error(err),
			)
		}
		results = append(results, result)
		if progress != nil {
			progress(i+1, len(refs), result)
		}
	}
	return results, 0
}

// DetectGaps scans for missing receipt numbers and, when checkGateway is
// set, verifies and reconciles each before reporting.
func (o *SyncOrchestrator) DetectGaps(ctx context.Context, scope models.ScanScope, maxGaps int,
	checkGateway bool, progress ProgressFunc) (models.DetectionReport, error) {

	startedAt := time.Now().UTC()
	missing, err := o.gaps.MissingReceipts(ctx, scope, maxGaps)
	if err != nil {
		return models.DetectionReport{}, fmt.Errorf("gap scan: %w", err)
	}

	if !checkGateway {
		results := make([]models.SyncResult, 0, len(missing))
		for _, ref := range missing {
			results = append(results, models.SyncResult{
				ReceiptNumber: ref,
				Message:       "missing locally; gateway check skipped",
			})
		}
		report := o.reporter.Build("receipt_gaps", scope, results, 0, startedAt)
		report.MissingCount = len(missing)
		if len(missing) > 0 {
			report.Recommendations = append(report.Recommendations,
				"re-run with autoCheckGateway to resolve these against the gateway")
		}
		return report, nil
	}

	refs := missing
	remaining := 0
	if len(refs) > o.batchCap {
		remaining = len(refs) - o.batchCap
		refs = refs[:o.batchCap]
	}
	results, skipped := o.SyncBatch(ctx, refs, nil, progress)
	return o.reporter.Build("receipt_gaps", scope, results, remaining+skipped, startedAt), nil
}

// DetectOrphans probes the gateway for transactions just beyond the local
// maximum receipt number.
func (o *SyncOrchestrator) DetectOrphans(ctx context.Context, maxReceipts int, progress ProgressFunc) (models.DetectionReport, error) {
	startedAt := time.Now().UTC()
	candidates, err := o.orphans.Candidates(ctx, maxReceipts)
	if err != nil {
		return models.DetectionReport{}, fmt.Errorf("orphan scan: %w", err)
	}

	refs := candidates
	remaining := 0
	if len(refs) > o.batchCap {
		remaining = len(refs) - o.batchCap
		refs = refs[:o.batchCap]
	}
	results, skipped := o.SyncBatch(ctx, refs, nil, progress)
	return o.reporter.Build("orphaned_receipts", models.ScanScope{}, results, remaining+skipped, startedAt), nil
}

// Comprehensive runs a gap scan over the trailing window plus an orphan
// probe, splitting maxChecks between them.
func (o *SyncOrchestrator) Comprehensive(ctx context.Context, exhibitionID string, days, maxChecks int,
	progress ProgressFunc) (models.DetectionReport, error) {

	startedAt := time.Now().UTC()
	start := time.Now().AddDate(0, 0, -days)
	sc := models.ScanScope{ExhibitionID: exhibitionID, StartDate: &start}

	gapBudget := maxChecks * 3 / 4
	if gapBudget < 1 {
		gapBudget = 1
	}
	orphanBudget := maxChecks - gapBudget

	gapReport, err := o.DetectGaps(ctx, sc, gapBudget, true, progress)
	if err != nil {
		return models.DetectionReport{}, err
	}

	results := gapReport.Results
	remaining := gapReport.RemainingToCheck
	if orphanBudget > 0 && ctx.Err() == nil {
		orphanReport, err := o.DetectOrphans(ctx, orphanBudget, progress)
		if err != nil {
			telemetry.Logger.Warn("Orphan probe failed during comprehensive scan", zap.Error(err))
		} else {
			results = append(results, orphanReport.Results...)
			remaining += orphanReport.RemainingToCheck
		}
	}

	report := o.reporter.Build("comprehensive", sc, results, remaining, startedAt)
	return report, nil
}
