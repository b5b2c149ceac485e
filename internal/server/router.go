// Package server exposes the agent's REST surface over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/celerix-dev/celerix-agent/internal/activity"
	"github.com/celerix-dev/celerix-agent/internal/api"
	"github.com/celerix-dev/celerix-agent/internal/auth"
	"github.com/celerix-dev/celerix-agent/pkg/schema"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Namespace prefixes every agent route.
const Namespace = "/celerix-agent/v1"

// HeaderRequestID carries the request correlation id.
const HeaderRequestID = "X-Request-Id"

// NewRouter wires the signed REST routes. Every route under Namespace
// requires a valid signature.
func NewRouter(h *api.Handler, authn *auth.Authenticator, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(logger))

	v1 := r.Group(Namespace, authn.Middleware(), restActor())
	v1.GET("/ping", h.Ping)
	v1.GET("/site-health", h.SiteHealth)
	v1.GET("/debug-data", h.DebugData)
	v1.POST("/core/update", h.UpdateCore)
	v1.POST("/plugin/:action", h.Plugins)
	v1.POST("/theme/:action", h.Themes)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, api.ErrorEnvelope{Code: "rest_no_route", Message: "no route was found matching the URL and request method"})
	})
	return r
}

// requestID keeps a caller supplied id or mints one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// restActor attributes changes made by an authenticated call to the
// collector, so activity records carry the rest-api actor.
func restActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := schema.Actor{Type: schema.ActorREST, Name: "REST API", IP: c.ClientIP()}
		c.Request = c.Request.WithContext(activity.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote", c.ClientIP(),
		)
	}
}
