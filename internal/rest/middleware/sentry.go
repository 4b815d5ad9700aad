package middleware

import (
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// SentryMiddleware captures panics and performance data when Sentry is enabled
func SentryMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Sentry.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// SentryOrganizationMiddleware tags the Sentry scope with the organization in the path.
func SentryOrganizationMiddleware(c *gin.Context) {
	hub := sentrygin.GetHubFromContext(c)
	if hub == nil {
		c.Next()
		return
	}
	if organizationID := c.Param("organization_id"); organizationID != "" {
		hub.Scope().SetTag("organization_id", organizationID)
	}
	c.Next()
}
