package handlers

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// StaticPrefix is where the front end's assets are mounted.
const StaticPrefix = "/static"

type RouterConfig struct {
	StaticDir string
	Metrics   http.Handler
	// Middleware runs after request id and access logging, before CORS.
	Middleware []gin.HandlerFunc
}

// NewRouter mounts the API, the metrics endpoint and the static front end.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), AccessLog(logger))
	router.Use(cfg.Middleware...)
	router.Use(CORS())

	if cfg.StaticDir != "" {
		router.Use(static.Serve(StaticPrefix, static.LocalFile(cfg.StaticDir, false)))
		index := filepath.Join(cfg.StaticDir, "index.html")
		router.GET("/", func(c *gin.Context) {
			c.File(index)
		})
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	h.RegisterRoutes(router)
	return router
}
