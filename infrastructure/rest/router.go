// Package rest serves the HTTP surface: REST routes, the socket endpoint,
// uploads, health and metrics.
package rest

import (
	"dm-lab/auth"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	AllowedOrigins []string
	UploadDir      string
	// Ping reports whether the store is reachable.
	Ping func() error
}

func NewEngine(
	opts Options,
	tokens auth.TokenValidator,
	messages *MessageHandler,
	users *UserHandler,
	socket gin.HandlerFunc,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middlewares...)
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 || slices.Contains(opts.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	engine.Use(cors.New(corsConfig))

	engine.GET("/health", func(c *gin.Context) {
		if opts.Ping != nil {
			if err := opts.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if socket != nil {
		engine.GET("/ws", socket)
	}
	if opts.UploadDir != "" {
		engine.Static("/uploads", opts.UploadDir)
	}

	messages.Register(engine.Group("/api/messages", auth.RequireAuth(tokens)))
	users.Register(engine.Group("/api/users", auth.RequireAuth(tokens)))
	return engine
}
