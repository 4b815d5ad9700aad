package v1

import (
	"context"
	"net/http"

	"github.com/flexprice/deprovisioner/internal/api/dto"
	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/service"
	"github.com/flexprice/deprovisioner/internal/temporal/models"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// ProgressReader reads the live state of a batch workflow.
type ProgressReader interface {
	GetDeprovisioningProgress(ctx context.Context, organizationID, batchID string) (*models.DeprovisioningWorkflowResult, error)
}

type DeprovisioningHandler struct {
	queue    service.DeprovisioningQueueService
	banners  service.BannerService
	progress ProgressReader
	log      *logger.Logger
}

func NewDeprovisioningHandler(
	queue service.DeprovisioningQueueService,
	banners service.BannerService,
	progress ProgressReader,
	log *logger.Logger,
) *DeprovisioningHandler {
	return &DeprovisioningHandler{
		queue:    queue,
		banners:  banners,
		progress: progress,
		log:      log,
	}
}

// GetBanner returns the removal banner shown to the organization's members.
func (h *DeprovisioningHandler) GetBanner(c *gin.Context) {
	banner, err := h.banners.GetBanner(c.Request.Context(), c.Param("organization_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, banner)
}

// ListEntries lists the organization's queue entries. Without a status
// filter only scheduled removals are returned.
func (h *DeprovisioningHandler) ListEntries(c *gin.Context) {
	ctx := c.Request.Context()
	organizationID := c.Param("organization_id")

	statuses := lo.Map(c.QueryArray("status"), func(s string, _ int) types.QueueStatus { return types.QueueStatus(s) })
	for _, status := range statuses {
		if err := status.Validate(); err != nil {
			c.Error(err)
			return
		}
	}

	var (
		entries []*deprovisioning.QueueEntry
		err     error
	)
	if len(statuses) == 0 {
		entries, err = h.queue.GetPending(ctx, organizationID)
	} else {
		entries, err = h.queue.ListEntries(ctx, &deprovisioning.Filter{
			OrganizationID: organizationID,
			Statuses:       statuses,
		})
	}
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListQueueEntriesResponse(entries))
}

func (h *DeprovisioningHandler) GetEntry(c *gin.Context) {
	entry, err := h.queue.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewQueueEntryResponse(entry))
}

// ExtendEntry grants the one-time extension and restarts the cadence.
func (h *DeprovisioningHandler) ExtendEntry(c *gin.Context) {
	var req dto.ExtendQueueEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	entry, err := h.queue.GrantExtension(c.Request.Context(), c.Param("id"), req.ToExtensionRequest())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewQueueEntryResponse(entry))
}

// CancelEntry cancels one scheduled removal by hand.
func (h *DeprovisioningHandler) CancelEntry(c *gin.Context) {
	var req dto.CancelQueueEntryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Invalid request format").
				Mark(ierr.ErrValidation))
			return
		}
	}

	ctx := c.Request.Context()
	entry, err := h.queue.Cancel(ctx, c.Param("id"), types.QueueStatusCanceledManual)
	if err != nil {
		c.Error(err)
		return
	}
	h.log.WithContext(ctx).Infow("queue entry canceled by admin", "queue_entry_id", entry.ID, "reason", req.Reason)
	c.JSON(http.StatusOK, dto.NewQueueEntryResponse(entry))
}

// GetBatchProgress reports where a batch's workflow is in the cadence.
func (h *DeprovisioningHandler) GetBatchProgress(c *gin.Context) {
	progress, err := h.progress.GetDeprovisioningProgress(c.Request.Context(), c.Param("organization_id"), c.Param("batch_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, progress)
}
