package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	connectorgin "github.com/pilab-dev/googleconnector/api/gin"
	"github.com/pilab-dev/googleconnector/config"
	"github.com/pilab-dev/googleconnector/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter builds the gin engine serving the connector API, the health check and the
// Prometheus scrape endpoint for gatherer.
func NewRouter(cfg *config.Config, appLogger log.Logger, connectorAPI *connectorgin.ConnectorAPI, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(appLogger))

	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware(cfg.OtelServiceName))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	connectorAPI.RegisterRoutes(router)

	return router
}

// NewHTTPServer wraps the router in an http.Server listening on cfg.HTTPAddr.
func NewHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Token exchange and userinfo calls happen inside the request.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func requestLogger(appLogger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			appLogger.Warn(c.Request.Context(), c.Errors.String(), fields)
			return
		}
		appLogger.Info(c.Request.Context(), "HTTP Request", fields)
	}
}
