// Package httpapi wires the gateway's client-facing gin routes —
// /v1/chat/completions, /v1/messages, /health — onto pkg/pipeline.Driver,
// matching the teacher's examples/gin-server layout (release mode,
// explicit CORS middleware, a handler function per route) generalized
// from one provider's ad hoc endpoints to the two wire-format-native
// passthrough routes the gateway actually serves.
package httpapi

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/pipeline"
	"github.com/luthien/gateway/pkg/wire"
)

// Config configures the router.
type Config struct {
	Driver              *pipeline.Driver
	MaxRequestBodyBytes int64

	// MountAdmin, if non-nil, is called with the engine's /admin route
	// group so pkg/httpapi/admin can register its own routes without
	// httpapi importing it (avoiding an import cycle, since admin routes
	// act on the same policyregistry/authcache the gateway builds once
	// in cmd/gateway).
	MountAdmin func(admin *gin.RouterGroup)
}

// NewRouter builds the gin engine serving both wire-format endpoints.
func NewRouter(cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	h := &handlers{driver: cfg.Driver, maxBody: cfg.MaxRequestBodyBytes}

	r.GET("/health", h.handleHealth)
	r.POST("/v1/chat/completions", h.handleOpenAI)
	r.POST("/v1/messages", h.handleAnthropic)

	if cfg.MountAdmin != nil {
		cfg.MountAdmin(r.Group("/admin"))
	}

	return r
}

type handlers struct {
	driver  *pipeline.Driver
	maxBody int64
}

func (h *handlers) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) handleOpenAI(c *gin.Context) {
	h.handle(c, wire.FormatOpenAI)
}

func (h *handlers) handleAnthropic(c *gin.Context) {
	h.handle(c, wire.FormatAnthropic)
}

func (h *handlers) handle(c *gin.Context, format wire.Format) {
	body, err := readBodyLimited(c, h.maxBody)
	if err != nil {
		ge := gwerrors.New(gwerrors.KindPayloadTooLarge, "request body exceeds the configured size limit", err)
		writeEarlyError(c.Writer, format, ge)
		return
	}
	h.driver.Handle(c.Request.Context(), c.Writer, format, body)
}

func readBodyLimited(c *gin.Context, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(c.Request.Body)
	}
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
}

// writeEarlyError handles the one failure mode pipeline.Driver never
// sees: a body too large to even hand to Handle.
func writeEarlyError(w http.ResponseWriter, format wire.Format, ge *gwerrors.GatewayError) {
	status := statusForKind(ge.Kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(refusalEnvelope(format, ge.Message)); err != nil {
		log.Printf("httpapi: write early error response: %v", err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
