package middleware

import (
	"github.com/gin-gonic/gin"

	"mint/internal/pkg/ctxutil"
	"mint/internal/pkg/id"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

// RequestID 透传或生成请求 ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" || len(rid) > 128 {
			rid = id.NewRandom()
		}
		c.Set("request_id", rid)
		c.Header(HeaderRequestID, rid)
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}
