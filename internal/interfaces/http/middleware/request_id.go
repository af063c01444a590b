package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"agent-wallet.backend/pkg/utils"
)

const RequestIDKey = "request_id"

// RequestIDHeader carries the id on both request and response so agents can
// quote it when reporting a failed send.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an id. Inbound ids from
// reverse proxies are kept; otherwise a v7 uuid is minted so request ids
// sort by arrival time in the audit trail.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = utils.GenerateUUIDv7().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		// The logger reads the plain string key off the request context.
		ctx := context.WithValue(c.Request.Context(), "request_id", id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
