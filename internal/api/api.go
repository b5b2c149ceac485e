// Package api implements the REST handlers the collector calls on the agent.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/celerix-dev/celerix-agent/internal/site"
	"github.com/gin-gonic/gin"
)

// Site is the host platform the handlers delegate to. site.MemSite
// satisfies it.
type Site interface {
	UpdateCore(ctx context.Context, req site.CoreUpdate) (site.CoreResult, error)
	Packages(ctx context.Context, kind site.Kind, action site.Action, slugs []string) ([]site.Result, error)
	Health(ctx context.Context) (site.Health, error)
	Info(ctx context.Context) (site.Info, error)
	DebugData(ctx context.Context) (map[string]any, error)
}

// Envelope is the success response body.
type Envelope struct {
	Status bool   `json:"status"`
	Data   any    `json:"data"`
	Extra  *Extra `json:"extra,omitempty"`
}

// Extra carries a fresh site snapshot after a mutating request.
type Extra struct {
	SiteHealth any `json:"site_health"`
	SiteInfo   any `json:"site_info"`
}

// ErrorEnvelope is the failure response body.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Handler serves the agent's REST routes.
type Handler struct {
	Site   Site
	Logger *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) fail(c *gin.Context, status int, code string, err error) {
	if status >= http.StatusInternalServerError {
		h.logger().Error("request failed", "path", c.Request.URL.Path, "code", code, "error", err)
	}
	c.JSON(status, ErrorEnvelope{Code: code, Message: err.Error()})
}

// extra snapshots health and info. A failing snapshot is left out of
// the envelope rather than failing a change that already happened.
func (h *Handler) extra(ctx context.Context) *Extra {
	out := &Extra{}
	if health, err := h.Site.Health(ctx); err == nil {
		out.SiteHealth = health
	} else {
		h.logger().Warn("site health snapshot failed", "error", err)
	}
	if info, err := h.Site.Info(ctx); err == nil {
		out.SiteInfo = info
	} else {
		h.logger().Warn("site info snapshot failed", "error", err)
	}
	return out
}

// Ping answers "pong" so the collector can check the signed channel.
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, Envelope{Status: true, Data: "pong"})
}

func (h *Handler) SiteHealth(c *gin.Context) {
	health, err := h.Site.Health(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "site_health_failed", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Status: true, Data: health})
}

func (h *Handler) DebugData(c *gin.Context) {
	data, err := h.Site.DebugData(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "debug_data_failed", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Status: true, Data: data})
}

func (h *Handler) UpdateCore(c *gin.Context) {
	req := site.CoreUpdate{Version: "latest"}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}
	if strings.TrimSpace(req.Version) == "" {
		req.Version = "latest"
	}

	ctx := c.Request.Context()
	res, err := h.Site.UpdateCore(ctx, req)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "core_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Status: res.Updated, Data: res, Extra: h.extra(ctx)})
}

// Plugins serves POST /plugin/:action.
func (h *Handler) Plugins(c *gin.Context) { h.packages(c, site.KindPlugin) }

// Themes serves POST /theme/:action.
func (h *Handler) Themes(c *gin.Context) { h.packages(c, site.KindTheme) }

func (h *Handler) packages(c *gin.Context, kind site.Kind) {
	action := site.Action(c.Param("action"))
	if !site.Supports(kind, action) {
		h.fail(c, http.StatusNotFound, "invalid_action", errors.New("unknown "+string(kind)+" action "+string(action)))
		return
	}

	var input struct {
		Slugs []string `json:"slugs"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	slugs := input.Slugs[:0]
	for _, s := range input.Slugs {
		if s = strings.TrimSpace(s); s != "" {
			slugs = append(slugs, s)
		}
	}
	if len(slugs) == 0 {
		h.fail(c, http.StatusBadRequest, "missing_slugs", errors.New("slugs must list at least one package"))
		return
	}

	ctx := c.Request.Context()
	results, err := h.Site.Packages(ctx, kind, action, slugs)
	if errors.Is(err, site.ErrUnsupportedAction) {
		h.fail(c, http.StatusNotFound, "invalid_action", err)
		return
	}
	if err != nil {
		h.fail(c, http.StatusInternalServerError, string(kind)+"_"+string(action)+"_failed", err)
		return
	}

	ok := true
	for _, r := range results {
		ok = ok && r.Status
	}
	c.JSON(http.StatusOK, Envelope{Status: ok, Data: results, Extra: h.extra(ctx)})
}
