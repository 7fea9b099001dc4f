// Package handlers exposes the signaling coordinator over HTTP and WebSocket.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/airtext/internal/middleware"
	"github.com/mossy-p/airtext/internal/models"
	"github.com/mossy-p/airtext/internal/signaling"
	"go.uber.org/zap"
)

// Options configures a Handler.
type Options struct {
	JWTSecret  string
	SessionTTL time.Duration
	ICEServers []string
}

type Handler struct {
	coord      *signaling.Coordinator
	secret     string
	sessionTTL time.Duration
	config     models.ClientConfig
	log        *zap.Logger
	now        func() time.Time
}

func New(coord *signaling.Coordinator, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := models.ClientConfig{ICEServers: make([]models.ICEServer, 0, len(opts.ICEServers))}
	for _, url := range opts.ICEServers {
		cfg.ICEServers = append(cfg.ICEServers, models.ICEServer{URLs: []string{url}})
	}
	return &Handler{
		coord:      coord,
		secret:     opts.JWTSecret,
		sessionTTL: opts.SessionTTL,
		config:     cfg,
		log:        log,
		now:        time.Now,
	}
}

// Mount registers every route. upgrade guards the WebSocket endpoint and may
// be nil.
func (h *Handler) Mount(router gin.IRouter, upgrade gin.HandlerFunc) {
	router.GET("/health", h.Health)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/config", h.ClientConfig)
		apiGroup.POST("/auth/session", h.CreateSession)
		apiGroup.GET("/rooms/:code", h.GetRoom)
		apiGroup.DELETE("/rooms/:code", middleware.JWTAuth(h.secret), h.DeleteRoom)
	}

	wsGroup := router.Group("/ws")
	if upgrade != nil {
		wsGroup.Use(upgrade)
	}
	wsGroup.GET("/signal", h.HandleSignaling)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// ClientConfig returns the ICE servers peers should use.
func (h *Handler) ClientConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.config)
}
