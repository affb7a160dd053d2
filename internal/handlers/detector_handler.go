package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/config"
	"github.com/aakar745/stallpay-recon/internal/jobs"
	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/service"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

type DetectorHandler struct {
	orch *service.SyncOrchestrator
	jobs *jobs.Manager
	cfg  *config.Config
}

func NewDetectorHandler(orch *service.SyncOrchestrator, manager *jobs.Manager, cfg *config.Config) *DetectorHandler {
	return &DetectorHandler{orch: orch, jobs: manager, cfg: cfg}
}

type receiptGapsRequest struct {
	ExhibitionID     string `json:"exhibitionId"`
	StartDate        string `json:"startDate"`
	EndDate          string `json:"endDate"`
	MaxGapsToCheck   int    `json:"maxGapsToCheck"`
	AutoCheckGateway bool   `json:"autoCheckGateway"`
	Async            bool   `json:"async"`
}

func (h *DetectorHandler) ReceiptGaps(c *gin.Context) {
	var req receiptGapsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	scope, err := buildScope(req.ExhibitionID, req.StartDate, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	maxGaps := req.MaxGapsToCheck
	if maxGaps <= 0 || maxGaps > h.cfg.MaxGapsToCheck {
		maxGaps = h.cfg.MaxGapsToCheck
	}

	h.runDetection(c, "receipt_gaps", req.Async, func(ctx context.Context, job *jobs.Job) (models.DetectionReport, error) {
		var progress service.ProgressFunc
		if job != nil {
			progress = job.Progress
		}
		return h.orch.DetectGaps(ctx, scope, maxGaps, req.AutoCheckGateway, progress)
	})
}

type orphanedReceiptsRequest struct {
	MaxReceiptsToCheck int  `json:"maxReceiptsToCheck"`
	Async              bool `json:"async"`
}

func (h *DetectorHandler) OrphanedReceipts(c *gin.Context) {
	var req orphanedReceiptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	max := req.MaxReceiptsToCheck
	if max <= 0 || max > h.cfg.BulkSyncCap {
		max = h.cfg.BulkSyncCap
	}

	h.runDetection(c, "orphaned_receipts", req.Async, func(ctx context.Context, job *jobs.Job) (models.DetectionReport, error) {
		var progress service.ProgressFunc
		if job != nil {
			progress = job.Progress
		}
		return h.orch.DetectOrphans(ctx, max, progress)
	})
}

type comprehensiveRequest struct {
	ExhibitionID string `json:"exhibitionId"`
	Days         int    `json:"days"`
	MaxChecks    int    `json:"maxChecks"`
	Async        bool   `json:"async"`
}

func (h *DetectorHandler) Comprehensive(c *gin.Context) {
	var req comprehensiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Days <= 0 {
		req.Days = 30
	}
	if req.MaxChecks <= 0 {
		req.MaxChecks = h.cfg.MaxGapsToCheck
	}

	h.runDetection(c, "comprehensive", req.Async, func(ctx context.Context, job *jobs.Job) (models.DetectionReport, error) {
		var progress service.ProgressFunc
		if job != nil {
			progress = job.Progress
		}
		return h.orch.Comprehensive(ctx, req.ExhibitionID, req.Days, req.MaxChecks, progress)
	})
}

// Daily runs the small fixed-budget scan meant for a cron trigger.
func (h *DetectorHandler) Daily(c *gin.Context) {
	report, err := h.orch.Comprehensive(c.Request.Context(), "", h.cfg.DailyScanDays, h.cfg.DailyCheckBudget, nil)
	if err != nil {
		telemetry.Logger.Error("Daily detection failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "daily detection failed"})
		return
	}
	report.ScanType = "daily"
	c.JSON(http.StatusOK, report)
}

func (h *DetectorHandler) runDetection(c *gin.Context, kind string, async bool,
	run func(ctx context.Context, job *jobs.Job) (models.DetectionReport, error)) {

	if async {
		job := h.jobs.Start(kind, func(ctx context.Context, job *jobs.Job) (*models.DetectionReport, error) {
			report, err := run(ctx, job)
			return &report, err
		})
		c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID, "status": jobs.StatusRunning})
		return
	}

	report, err := run(c.Request.Context(), nil)
	if err != nil {
		telemetry.Logger.Error("Detection run failed",
			zap.String("kind", kind),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "detection run failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func buildScope(exhibitionID, startDate, endDate string) (models.ScanScope, error) {
	scope := models.ScanScope{ExhibitionID: exhibitionID}
	if startDate != "" {
		t, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return scope, err
		}
		scope.StartDate = &t
	}
	if endDate != "" {
		t, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return scope, err
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		scope.EndDate = &end
	}
	return scope, nil
}
