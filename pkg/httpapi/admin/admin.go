// Package admin implements the gateway's operator-facing control surface:
// swapping the active policy and inspecting/evicting cached upstream
// credentials. Every route requires the configured admin token, checked
// by a gin middleware in the style of the teacher's corsMiddleware —
// a small closure wrapping gin.HandlerFunc rather than a reusable
// generic auth package, since the gateway has exactly one admin
// credential to check.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luthien/gateway/pkg/authcache"
	"github.com/luthien/gateway/pkg/policyregistry"
)

// Config configures the admin surface.
type Config struct {
	Active     *policyregistry.Active
	Registry   *policyregistry.Registry
	AuthCache  *authcache.Cache
	AdminToken string
}

// Register mounts the admin routes onto group, which the caller has
// already scoped to "/admin".
func Register(group *gin.RouterGroup, cfg Config) {
	group.Use(requireToken(cfg.AdminToken))

	h := &handlers{cfg: cfg}
	group.POST("/policy/set", h.setPolicy)
	group.GET("/policy/active", h.activePolicy)
	group.GET("/credentials/cached", h.listCachedCredentials)
	group.DELETE("/credentials/cached/:key_hash", h.deleteCachedCredential)
	group.DELETE("/credentials/cached", h.deleteAllCachedCredentials)
}

func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Admin-Token")
		if got == "" || got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid admin token"})
			return
		}
		c.Next()
	}
}

type handlers struct {
	cfg Config
}

type setPolicyRequest struct {
	ClassRef string                 `json:"class_ref" binding:"required"`
	Config   map[string]interface{} `json:"config"`
}

// setPolicy builds and installs a new active-policy descriptor. A
// transaction already bound to the previous descriptor keeps running
// against it; only transactions entering ingress after this call see the
// new one.
func (h *handlers) setPolicy(c *gin.Context) {
	var req setPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	built, err := h.cfg.Registry.Build(req.ClassRef, req.Config)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.cfg.Active.Swap(&policyregistry.Descriptor{
		ClassRef:  req.ClassRef,
		Config:    req.Config,
		Policy:    built,
		EnabledBy: adminCaller(c),
		EnabledAt: time.Now(),
	})

	c.JSON(http.StatusOK, gin.H{"status": "installed", "class_ref": req.ClassRef})
}

func (h *handlers) activePolicy(c *gin.Context) {
	d := h.cfg.Active.Snapshot()
	if d == nil {
		c.JSON(http.StatusOK, gin.H{"active": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"class_ref":  d.ClassRef,
		"enabled_by": d.EnabledBy,
		"enabled_at": d.EnabledAt,
	})
}

func (h *handlers) listCachedCredentials(c *gin.Context) {
	if h.cfg.AuthCache == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []authcache.CachedEntry{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": h.cfg.AuthCache.Snapshot()})
}

func (h *handlers) deleteCachedCredential(c *gin.Context) {
	if h.cfg.AuthCache == nil {
		c.JSON(http.StatusOK, gin.H{"removed": false})
		return
	}
	removed := h.cfg.AuthCache.InvalidateByHash(c.Param("key_hash"))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *handlers) deleteAllCachedCredentials(c *gin.Context) {
	if h.cfg.AuthCache != nil {
		h.cfg.AuthCache.InvalidateAll()
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func adminCaller(c *gin.Context) string {
	if caller := c.GetHeader("X-Admin-Caller"); caller != "" {
		return caller
	}
	return c.ClientIP()
}
