package Middleware

import (
	"net/http"
	"time"

	"ArteryPulse/Utils/Logger"
	"ArteryPulse/Utils/Token"

	"github.com/gin-gonic/gin"
)

func JwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := Token.ExtractTokenID(c)
		if err != nil {
			c.String(http.StatusUnauthorized, "Unauthorized Token Invalid")
			c.Abort()
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

// RequestLogger logs one line per request through the shared logger.
func RequestLogger() gin.HandlerFunc {
	log := Logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Errorw("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest, len(c.Errors) > 0:
			log.Warnw("request", fields...)
		default:
			log.Debugw("request", fields...)
		}
	}
}
