package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"

	requestIDKey     = "request-id"
	requestLoggerKey = "request-logger"
)

// quietPaths are logged at debug level.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// requestID reuses the caller's request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// requestLogger attaches a request-scoped logger and logs each request
// once it completes.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// extract these in case other middleware modify them
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		rl := logger.With(zap.String("request_id", c.GetString(requestIDKey)))
		c.Set(requestLoggerKey, rl)

		c.Next()

		for _, err := range c.Errors {
			rl.Error("request error", zap.String("path", path), zap.Error(err.Err))
		}

		lvl := zapcore.InfoLevel
		if quietPaths[path] {
			lvl = zapcore.DebugLevel
		}
		if ce := rl.Check(lvl, "request"); ce != nil {
			ce.Write(
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.String("query", query),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", c.ClientIP()),
			)
		}
	}
}

// requestLog returns the request-scoped logger.
func requestLog(c *gin.Context) *zap.Logger {
	if l, ok := c.Get(requestLoggerKey); ok {
		return l.(*zap.Logger)
	}
	return zap.NewNop()
}
