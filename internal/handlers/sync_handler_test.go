package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/config"
	"github.com/aakar745/stallpay-recon/internal/gateway"
	"github.com/aakar745/stallpay-recon/internal/interfaces"
	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/service"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

func init() {
	telemetry.Logger = zap.NewNop()
	gin.SetMode(gin.TestMode)
}

// memLedger: just enough LedgerRepository for handler-level tests.
type memLedger struct {
	records map[string]*models.ChargeRecord
}

func (m *memLedger) GetByReceiptNumber(_ context.Context, rn string) (*models.ChargeRecord, error) {
	if rec, ok := m.records[rn]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memLedger) GetByMerchantRef(_ context.Context, ref string) (*models.ChargeRecord, error) {
	for _, rec := range m.records {
		if rec.GatewayMerchantRef == ref {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *memLedger) GetByGatewayTransactionID(_ context.Context, id string) (*models.ChargeRecord, error) {
	for _, rec := range m.records {
		if rec.GatewayTransactionID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *memLedger) ReceiptNumbersInScope(_ context.Context, _ models.ScanScope) ([]interfaces.ScopedReceipt, error) {
	var out []interfaces.ScopedReceipt
	for rn, rec := range m.records {
		out = append(out, interfaces.ScopedReceipt{ExhibitionID: rec.ExhibitionID, ReceiptNumber: rn})
	}
	return out, nil
}

func (m *memLedger) LatestReceiptNumber(_ context.Context) (string, error) {
	latest := ""
	for rn := range m.records {
		if rn > latest {
			latest = rn
		}
	}
	if latest == "" {
		return "", interfaces.ErrNotFound
	}
	return latest, nil
}

func (m *memLedger) CreatePaid(_ context.Context, rec *models.ChargeRecord) error {
	if _, ok := m.records[rec.ReceiptNumber]; ok {
		return interfaces.ErrDuplicate
	}
	cp := *rec
	m.records[rec.ReceiptNumber] = &cp
	return nil
}

func (m *memLedger) MarkPaid(_ context.Context, rn string, from models.PaymentStatus, txnID string, amount float64, paidAt time.Time) (int64, error) {
	rec, ok := m.records[rn]
	if !ok || rec.PaymentStatus != from {
		return 0, nil
	}
	rec.PaymentStatus = models.StatusPaid
	rec.GatewayTransactionID = txnID
	rec.Amount = amount
	rec.PaidAt = &paidAt
	return 1, nil
}

type memAudit struct{ actions []models.ReconciliationAction }

func (m *memAudit) Append(_ context.Context, a *models.ReconciliationAction) error {
	m.actions = append(m.actions, *a)
	return nil
}

func (m *memAudit) ListByReceipt(_ context.Context, rn string) ([]models.ReconciliationAction, error) {
	var out []models.ReconciliationAction
	for _, a := range m.actions {
		if a.ReceiptNumber == rn {
			out = append(out, a)
		}
	}
	return out, nil
}

// memGateway reports one COMPLETED transaction and 404s everything else.
type memGateway struct {
	ref    string
	amount int64
}

func (m *memGateway) Status(_ context.Context, ref string) (*models.GatewayTransaction, error) {
	if ref != m.ref {
		return nil, gateway.ErrNotFound
	}
	return &models.GatewayTransaction{
		TransactionID:         "T" + ref,
		MerchantTransactionID: ref,
		State:                 models.GatewayCompleted,
		Amount:                m.amount,
	}, nil
}

func newTestRouter(ledger *memLedger, gw interfaces.GatewayClient) (*gin.Engine, *memAudit) {
	audit := &memAudit{}
	verifier := service.NewVerifier(gw, service.RetryPolicy{MaxAttempts: 1, BaseDelay: 0})
	reconciler := service.NewReconciler(ledger, audit, nil, nil)
	orch := service.NewSyncOrchestrator(ledger, verifier, reconciler,
		service.NewGapScanner(ledger), service.NewOrphanScanner(ledger),
		service.NewReporter(), nil, 10)

	cfg := &config.Config{MaxGapsToCheck: 50, BulkSyncCap: 10}
	h := NewSyncHandler(orch, audit, cfg)

	r := gin.New()
	r.POST("/sync/transaction", h.SyncTransaction)
	r.POST("/sync/bulk-sync", h.BulkSync)
	r.GET("/sync/actions", h.Actions)
	return r, audit
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSyncTransaction_MissingReference(t *testing.T) {
	r, _ := newTestRouter(&memLedger{records: map[string]*models.ChargeRecord{}}, &memGateway{})
	w := postJSON(t, r, "/sync/transaction", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncTransaction_NeedsAttributionIs404WithEvidence(t *testing.T) {
	ledger := &memLedger{records: map[string]*models.ChargeRecord{}}
	r, _ := newTestRouter(ledger, &memGateway{ref: "SC2025000189", amount: 200000})

	w := postJSON(t, r, "/sync/transaction", gin.H{"receiptNumber": "SC2025000189"})
	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Decision        models.Decision            `json:"decision"`
		GatewayEvidence *models.GatewayTransaction `json:"gatewayEvidence"`
		Suggestion      string                     `json:"suggestion"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.DecisionNeedsAttribution, body.Decision)
	require.NotNil(t, body.GatewayEvidence, "404 must carry the gateway evidence")
	assert.Equal(t, int64(200000), body.GatewayEvidence.Amount)
	assert.NotEmpty(t, body.Suggestion)
}

func TestSyncTransaction_WithAttributionCreates(t *testing.T) {
	ledger := &memLedger{records: map[string]*models.ChargeRecord{}}
	r, _ := newTestRouter(ledger, &memGateway{ref: "SC2025000189", amount: 200000})

	w := postJSON(t, r, "/sync/transaction", gin.H{
		"receiptNumber": "SC2025000189",
		"attribution": gin.H{
			"exhibitionId": "EXH-7",
			"vendorId":     "V-42",
			"stallNumber":  "A-12",
			"companyName":  "Sharma Textiles",
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result models.SyncResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.DecisionCreate, result.Decision)
	assert.Equal(t, models.StatusPaid, result.PaymentStatus)
	assert.Equal(t, 2000.0, result.Amount)

	// repeat call is a no-op
	w = postJSON(t, r, "/sync/transaction", gin.H{"receiptNumber": "SC2025000189"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.DecisionNoOp, result.Decision)
}

func TestBulkSync_RejectsOversizedBatch(t *testing.T) {
	r, _ := newTestRouter(&memLedger{records: map[string]*models.ChargeRecord{}}, &memGateway{})
	refs := make([]string, 11)
	for i := range refs {
		refs[i] = models.FormatReceiptNumber(2025, 100+i)
	}
	w := postJSON(t, r, "/sync/bulk-sync", gin.H{"receiptNumbers": refs})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActions_RequiresReceiptNumber(t *testing.T) {
	r, _ := newTestRouter(&memLedger{records: map[string]*models.ChargeRecord{}}, &memGateway{})
	req := httptest.NewRequest(http.MethodGet, "/sync/actions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
