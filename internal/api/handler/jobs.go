package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/scheduler"
)

const MsgJobNotFound = "Job not found"

// Jobs is the part of the scheduler the admin API exposes.
type Jobs interface {
	GetJob(id string) (scheduler.JobInfo, bool)
	RunJobNow(id string) error
}

// JobsHandler reports and triggers background jobs.
type JobsHandler struct {
	jobs Jobs
}

func NewJobsHandler(jobs Jobs) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// GetJob returns the state of a scheduled job.
func (h *JobsHandler) GetJob(c *gin.Context) {
	job, ok := h.jobs.GetJob(c.Param("id"))
	if !ok {
		respondError(c, apperr.NotFound(MsgJobNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job":     job,
	})
}

// RunJob triggers a scheduled job immediately.
func (h *JobsHandler) RunJob(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.jobs.GetJob(id); !ok {
		respondError(c, apperr.NotFound(MsgJobNotFound))
		return
	}
	if err := h.jobs.RunJobNow(id); err != nil {
		respondError(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Job triggered successfully",
	})
}
