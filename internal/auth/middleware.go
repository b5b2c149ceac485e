package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware rejects unsigned requests with 401 and the error envelope.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := a.Authenticate(c.Request)
		if err == nil {
			c.Next()
			return
		}
		a.logger.Info("rejected inbound request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"remote", c.ClientIP(),
			"reason", Code(err),
		)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    Code(err),
			"message": err.Error(),
		})
	}
}

// Code maps an authentication error to its envelope code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAPIKeys):
		return "invalid_api_keys"
	default:
		return "invalid_signature"
	}
}
