package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/stockerhq/stocker/internal/observability/context"
	"github.com/stockerhq/stocker/internal/tenantctx"
)

const HeaderTenant = "X-Tenant-Id"

// TenantRequired resolves the acting tenant from the request header and
// injects it into the request context for services and log correlation.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			AbortWithError(c, newValidationError("tenant", "missing_tenant", "tenant header is required"))
			return
		}

		tenantID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("tenant", "invalid_tenant", "invalid tenant header"))
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		ctx = obscontext.WithTenantID(ctx, tenantID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
