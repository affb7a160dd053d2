package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aakar745/stallpay-recon/internal/jobs"
)

type JobsHandler struct {
	jobs *jobs.Manager
}

func NewJobsHandler(manager *jobs.Manager) *JobsHandler {
	return &JobsHandler{jobs: manager}
}

func (h *JobsHandler) GetJob(c *gin.Context) {
	job, ok := h.jobs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job.View())
}

func (h *JobsHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	job, ok := h.jobs.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	cancelled := h.jobs.Cancel(id)
	c.JSON(http.StatusOK, gin.H{
		"jobId":     id,
		"cancelled": cancelled,
		"status":    job.View().Status,
	})
}
