package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aakar745/stallpay-recon/internal/models"
)

func evidence(amountMinor int64) *models.GatewayTransaction {
	return &models.GatewayTransaction{State: models.GatewayCompleted, Amount: amountMinor}
}

func TestReporter_RevenueLossSumsOnlyMissingOutcomes(t *testing.T) {
	results := []models.SyncResult{
		{ReceiptNumber: "SC2025000101", Decision: models.DecisionCreate, GatewayStatus: models.VerifyCompleted, GatewayEvidence: evidence(200000)},
		{ReceiptNumber: "SC2025000102", Decision: models.DecisionNeedsAttribution, GatewayStatus: models.VerifyCompleted, GatewayEvidence: evidence(150000)},
		{ReceiptNumber: "SC2025000103", Decision: models.DecisionNoOp, GatewayStatus: models.VerifyCompleted, GatewayEvidence: evidence(999900)},
		{ReceiptNumber: "SC2025000104", Decision: models.DecisionDiscrepancy, GatewayStatus: models.VerifyCompleted, GatewayEvidence: evidence(888800)},
		{ReceiptNumber: "SC2025000105", Decision: models.DecisionInconclusive, GatewayStatus: models.VerifyUndetermined},
	}

	report := NewReporter().Build("receipt_gaps", models.ScanScope{}, results, 0, time.Now())

	assert.Equal(t, 5, report.TotalChecked)
	assert.Equal(t, 2, report.MissingCount)
	assert.Equal(t, 2, report.SuccessfulInGateway)
	assert.Equal(t, 1, report.DiscrepancyCount)
	assert.Equal(t, 1, report.InconclusiveCount)
	assert.Equal(t, 3500.0, report.PotentialRevenueLoss,
		"only CREATE and NEEDS_ATTRIBUTION amounts count, divided by 100")
}

func TestReporter_HighMissingRatioRecommendsComprehensiveScan(t *testing.T) {
	results := []models.SyncResult{
		{Decision: models.DecisionCreate, GatewayStatus: models.VerifyCompleted, GatewayEvidence: evidence(100000)},
		{Decision: models.DecisionNoOp, GatewayStatus: models.VerifyCompleted},
	}

	report := NewReporter().Build("receipt_gaps", models.ScanScope{}, results, 0, time.Now())

	assert.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "comprehensive scan")
}

func TestReporter_NoFindingsNoRecommendations(t *testing.T) {
	results := []models.SyncResult{
		{Decision: models.DecisionNoOp, GatewayStatus: models.VerifyCompleted},
		{Decision: models.DecisionNoOp, GatewayStatus: models.VerifyCompleted},
	}

	report := NewReporter().Build("receipt_gaps", models.ScanScope{}, results, 0, time.Now())

	assert.Empty(t, report.Recommendations)
	assert.Zero(t, report.PotentialRevenueLoss)
}

func TestReporter_RemainingBudgetRecommendation(t *testing.T) {
	report := NewReporter().Build("detect_missing", models.ScanScope{}, nil, 12, time.Now())
	assert.Equal(t, 12, report.RemainingToCheck)
	assert.NotEmpty(t, report.Recommendations)
}
