package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "requestID"
)

// RequestID 为每个请求分配 ID，沿用客户端传入的值
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger 带请求 ID 的日志
func Logger(c *gin.Context) *logrus.Entry {
	entry := logrus.WithField("request_id", c.GetString(RequestIDKey))
	if userID, ok := GetUserID(c); ok {
		entry = entry.WithField("user_id", userID)
	}
	return entry
}
