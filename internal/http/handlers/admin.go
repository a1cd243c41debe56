package handlers

import (
	"crypto/subtle"
	"net/http"

	"mission_rewards/internal/domain"

	"github.com/gin-gonic/gin"
)

// RunOrchestrator is the manual trigger for one pipeline run, used by the
// external cron and for debugging.
func (h *Handler) RunOrchestrator(c *gin.Context) {
	secret := c.GetHeader("X-Cron-Secret")
	if h.CronSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.CronSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	report := h.Orchestrator.Run(c.Request.Context())

	perJob := make(map[string]string, len(report.Jobs))
	for _, j := range report.Jobs {
		perJob[j.Name] = string(j.Status)
	}
	h.AuditService.LogWithRequest(c.Request.Context(), "", domain.AuditActionOrchestratorManual, domain.AuditCategoryJobs, c.ClientIP(), map[string]interface{}{
		"execution_id": report.ExecutionID.String(),
	})

	c.JSON(http.StatusOK, gin.H{
		"execution_id":   report.ExecutionID,
		"per_job_status": perJob,
		"success_rate":   report.SuccessRate,
		"report":         report,
	})
}
