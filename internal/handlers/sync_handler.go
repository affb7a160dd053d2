package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/config"
	"github.com/aakar745/stallpay-recon/internal/interfaces"
	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/service"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

type SyncHandler struct {
	orch  *service.SyncOrchestrator
	audit interfaces.AuditRepository
	cfg   *config.Config
}

func NewSyncHandler(orch *service.SyncOrchestrator, audit interfaces.AuditRepository, cfg *config.Config) *SyncHandler {
	return &SyncHandler{orch: orch, audit: audit, cfg: cfg}
}

type syncTransactionRequest struct {
	ReceiptNumber        string              `json:"receiptNumber"`
	GatewayTransactionID string              `json:"gatewayTransactionId"`
	Attribution          *models.Attribution `json:"attribution"`
}

// SyncTransaction reconciles a single reference. When money exists at the
// gateway but the local record and attribution are both missing, the
// response is a 404 carrying the full gateway evidence so an operator can
// complete the record; that evidence is never dropped.
func (h *SyncHandler) SyncTransaction(c *gin.Context) {
	var req syncTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.orch.SyncOne(c.Request.Context(), req.ReceiptNumber, req.GatewayTransactionID, req.Attribution)
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		telemetry.Logger.Error("Sync failed",
			zap.String("receipt_number", req.ReceiptNumber),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "sync failed",
			"detail": err.Error(),
			"result": result,
		})
		return
	}

	if result.Decision == models.DecisionNeedsAttribution {
		c.JSON(http.StatusNotFound, gin.H{
			"decision":        result.Decision,
			"receiptNumber":   result.ReceiptNumber,
			"gatewayEvidence": result.GatewayEvidence,
			"suggestion":      result.Suggestion,
			"message":         result.Message,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

type detectMissingRequest struct {
	ExhibitionID string `json:"exhibitionId"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	MaxToCheck   int    `json:"maxToCheck"`
}

// DetectMissing is the sync-side gap run: always verifies against the
// gateway and reconciles, returning a partial result with
// remainingToCheck when the budget truncates the candidate list.
func (h *SyncHandler) DetectMissing(c *gin.Context) {
	var req detectMissingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	scope, err := buildScope(req.ExhibitionID, req.StartDate, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	max := req.MaxToCheck
	if max <= 0 || max > h.cfg.MaxGapsToCheck {
		max = h.cfg.MaxGapsToCheck
	}

	report, err := h.orch.DetectGaps(c.Request.Context(), scope, max, true, nil)
	if err != nil {
		telemetry.Logger.Error("Detect-missing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "detect-missing failed"})
		return
	}
	report.ScanType = "detect_missing"
	c.JSON(http.StatusOK, report)
}

type bulkSyncRequest struct {
	ReceiptNumbers []string `json:"receiptNumbers"`
}

func (h *SyncHandler) BulkSync(c *gin.Context) {
	var req bulkSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.ReceiptNumbers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiptNumbers is required"})
		return
	}
	if len(req.ReceiptNumbers) > h.orch.BatchCap() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "too many references",
			"max":   h.orch.BatchCap(),
		})
		return
	}

	results, _ := h.orch.SyncBatch(c.Request.Context(), req.ReceiptNumbers, nil, nil)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Actions returns the append-only reconciliation trail for one receipt.
func (h *SyncHandler) Actions(c *gin.Context) {
	receiptNumber := c.Query("receiptNumber")
	if receiptNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiptNumber is required"})
		return
	}

	actions, err := h.audit.ListByReceipt(c.Request.Context(), receiptNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch reconciliation actions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receiptNumber": receiptNumber, "actions": actions})
}
