package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aakar745/stallpay-recon/internal/handlers"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

func NewRouter(detector *handlers.DetectorHandler, sync *handlers.SyncHandler, jobsHandler *handlers.JobsHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "stallpay-recon"})
	})

	// Detection runs
	r.POST("/detector/receipt-gaps", detector.ReceiptGaps)
	r.POST("/detector/orphaned-receipts", detector.OrphanedReceipts)
	r.POST("/detector/comprehensive", detector.Comprehensive)
	r.POST("/detector/daily", detector.Daily)

	// Reconciliation
	r.POST("/sync/transaction", sync.SyncTransaction)
	r.POST("/sync/detect-missing", sync.DetectMissing)
	r.POST("/sync/bulk-sync", sync.BulkSync)
	r.GET("/sync/actions", sync.Actions)

	// Long-running runs
	r.GET("/jobs/:id", jobsHandler.GetJob)
	r.POST("/jobs/:id/cancel", jobsHandler.CancelJob)

	return r
}
