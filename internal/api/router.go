package api

import (
	"net/http"

	"github.com/flexprice/deprovisioner/internal/api/cron"
	v1 "github.com/flexprice/deprovisioner/internal/api/v1"
	"github.com/flexprice/deprovisioner/internal/config"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Deprovisioning *v1.DeprovisioningHandler
	Billing        *v1.BillingHandler
	CronJobs       *cron.DeprovisioningCronHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.RecoveryWithWriter(logger.GetGinLogger()),
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware(logger),
		middleware.SentryMiddleware(cfg),
		middleware.SentryOrganizationMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1Routes := router.Group("/v1")

	organizations := v1Routes.Group("/organizations/:organization_id/deprovisioning")
	{
		organizations.GET("/banner", handlers.Deprovisioning.GetBanner)
		organizations.GET("/entries", handlers.Deprovisioning.ListEntries)
		organizations.GET("/batches/:batch_id/progress", handlers.Deprovisioning.GetBatchProgress)
	}

	entries := v1Routes.Group("/deprovisioning/entries")
	{
		entries.GET("/:id", handlers.Deprovisioning.GetEntry)
		entries.POST("/:id/extend", handlers.Deprovisioning.ExtendEntry)
		entries.POST("/:id/cancel", handlers.Deprovisioning.CancelEntry)
	}

	billing := v1Routes.Group("/billing")
	{
		billing.POST("/subscription-changes", handlers.Billing.SubscriptionChanged)
	}

	cronGroup := v1Routes.Group("/cron")
	{
		cronGroup.POST("/deprovisioning/reconcile", handlers.CronJobs.Reconcile)
	}

	return router
}
