package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// requestID tags every request with an id, reusing the caller's when it is a
// valid UUID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"request_id", c.GetString(ContextKeyRequestID),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// requireAdmin only lets through requests bearing a valid admin token.
func requireAdmin(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderAuthorization)
		if !strings.HasPrefix(raw, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{JSONKeyError: ErrTextMissingToken})
			return
		}
		subject, err := ParseAdminToken(strings.TrimSpace(strings.TrimPrefix(raw, BearerPrefix)), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{JSONKeyError: ErrTextInvalidToken})
			return
		}
		c.Set(ContextKeySubject, subject)
		c.Next()
	}
}
