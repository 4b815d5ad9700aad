package middleware

import (
	"context"

	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/gin-gonic/gin"
)

const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware puts the caller's request id, or a new one, in the request context.
func RequestIDMiddleware(c *gin.Context) {
	requestID := c.GetHeader(HeaderRequestID)
	if requestID == "" {
		requestID = types.GenerateUUID()
	}

	ctx := context.WithValue(c.Request.Context(), types.CtxRequestID, requestID)
	if organizationID := c.Param("organization_id"); organizationID != "" {
		ctx = types.WithOrganizationID(ctx, organizationID)
	}
	c.Request = c.Request.WithContext(ctx)
	c.Header(HeaderRequestID, requestID)
	c.Next()
}
