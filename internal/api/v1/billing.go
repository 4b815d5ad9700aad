package v1

import (
	"net/http"
	"time"

	"github.com/flexprice/deprovisioner/internal/api/dto"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/gin-gonic/gin"
)

// BillingHandler accepts subscription change callbacks and hands them to the
// subscription change consumer through the event bus.
type BillingHandler struct {
	publisher events.Publisher
	log       *logger.Logger
}

func NewBillingHandler(publisher events.Publisher, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		publisher: publisher,
		log:       log,
	}
}

func (h *BillingHandler) SubscriptionChanged(c *gin.Context) {
	var req dto.SubscriptionChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	event := req.ToEvent(time.Now().UTC())
	if err := event.Validate(); err != nil {
		c.Error(err)
		return
	}

	ctx := c.Request.Context()
	if err := h.publisher.Publish(ctx, event); err != nil {
		c.Error(err)
		return
	}

	h.log.WithContext(ctx).Infow("accepted subscription change",
		"organization_id", event.OrganizationID,
		"old_product_id", event.OldProductID,
		"new_product_id", event.NewProductID)
	c.JSON(http.StatusAccepted, dto.AcceptedResponse{Status: "accepted"})
}
