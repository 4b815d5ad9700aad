package cron

import (
	"net/http"
	"time"

	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/service"
	"github.com/gin-gonic/gin"
)

// DeprovisioningCronHandler lets an external scheduler trigger reconciliation
// when the in-process scheduler is disabled.
type DeprovisioningCronHandler struct {
	reconciler service.ReconciliationService
	logger     *logger.Logger
}

func NewDeprovisioningCronHandler(
	reconciler service.ReconciliationService,
	logger *logger.Logger,
) *DeprovisioningCronHandler {
	return &DeprovisioningCronHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Reconcile executes overdue removals and restarts stalled batches.
func (h *DeprovisioningCronHandler) Reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	h.logger.WithContext(ctx).Infow("starting deprovisioning reconcile cron job", "time", time.Now().UTC().Format(time.RFC3339))

	result, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		h.logger.WithContext(ctx).Errorw("failed to reconcile deprovisioning queue", "error", err)
		c.Error(err)
		return
	}

	h.logger.WithContext(ctx).Infow("completed deprovisioning reconcile cron job",
		"executed", result.Executed,
		"failed", result.Failed,
		"rescheduled_batches", result.Rescheduled)
	c.JSON(http.StatusOK, result)
}
