package service

import (
	"fmt"
	"time"

	"github.com/aakar745/stallpay-recon/internal/models"
)

// Reporter turns per-reference outcomes into a DetectionReport.
type Reporter struct {
	// MissingRatioThreshold triggers the comprehensive-scan recommendation
	// when missing/checked exceeds it.
	MissingRatioThreshold float64
	now                   func() time.Time
}

func NewReporter() *Reporter {
	return &Reporter{MissingRatioThreshold: 0.2, now: time.Now}
}

// Build aggregates the results of one run. potentialRevenueLoss sums the
// gateway amounts, in major units, over exactly the CREATE and
// NEEDS_ATTRIBUTION outcomes.
func (r *Reporter) Build(scanType string, scope models.ScanScope, results []models.SyncResult,
	remaining int, startedAt time.Time) models.DetectionReport {

	report := models.DetectionReport{
		ScanType:         scanType,
		ExhibitionID:     scope.ExhibitionID,
		WindowStart:      scope.StartDate,
		WindowEnd:        scope.EndDate,
		TotalChecked:     len(results),
		Results:          results,
		RemainingToCheck: remaining,
		StartedAt:        startedAt,
		CompletedAt:      r.now().UTC(),
		Recommendations:  []string{},
	}

	for _, res := range results {
		switch res.Decision {
		case models.DecisionCreate, models.DecisionNeedsAttribution:
			report.MissingCount++
			if res.GatewayStatus == models.VerifyCompleted {
				report.SuccessfulInGateway++
			}
			if res.GatewayEvidence != nil {
				report.PotentialRevenueLoss += res.GatewayEvidence.AmountMajor()
			} else {
				report.PotentialRevenueLoss += res.Amount
			}
		case models.DecisionDiscrepancy:
			report.DiscrepancyCount++
		case models.DecisionInconclusive:
			report.InconclusiveCount++
		}
	}

	if report.TotalChecked > 0 {
		ratio := float64(report.MissingCount) / float64(report.TotalChecked)
		if ratio > r.MissingRatioThreshold {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("missing ratio %.0f%% exceeds %.0f%%: run a comprehensive scan over a wider window",
					ratio*100, r.MissingRatioThreshold*100))
		}
	}
	if report.DiscrepancyCount > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d amount discrepancies flagged: review them manually, they are never auto-corrected", report.DiscrepancyCount))
	}
	if report.InconclusiveCount > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d verifications were inconclusive: re-run after the gateway settles", report.InconclusiveCount))
	}
	if report.RemainingToCheck > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("check budget exhausted with %d candidates left: continue with a follow-up run", report.RemainingToCheck))
	}

	return report
}
