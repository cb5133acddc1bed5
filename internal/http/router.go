// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"routebot/internal/http/handlers"
	"routebot/internal/http/middleware"
	"routebot/internal/infra"
	"routebot/internal/modules/conversation"
)

type RouterDeps struct {
	Chat        *conversation.Service
	Metrics     *infra.Metrics
	MetricsPath string
	Logger      zerolog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(deps.Logger), middleware.Logging(), middleware.Recovery())

	chat := handlers.NewChatHandler(deps.Chat)
	api := r.Group("/api/chat/:uid")
	api.POST("/messages", chat.Message)
	api.POST("/events", chat.Event)
	api.GET("/session", chat.Session)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		reg := deps.Metrics.Registry()
		r.GET(path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}
	return r
}
