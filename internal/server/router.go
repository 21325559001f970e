package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/influxdb"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/metadata"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/simulation"
)

// ReadingSource reads stored readings back for the API.
type ReadingSource interface {
	RecentReadings(ctx context.Context, asset string, lookback time.Duration, limit int) ([]influxdb.StoredReading, error)
	Ping(ctx context.Context) error
}

// EventSource lists journaled discharge events.
type EventSource interface {
	ListEvents(ctx context.Context, asset string, limit int) ([]metadata.EventRecord, error)
	Ping(ctx context.Context) error
}

// Dependencies groups objects the HTTP layer needs. Readings, Events and
// Gatherer are optional.
type Dependencies struct {
	Simulator   *simulation.Simulator
	Coordinator *simulation.Coordinator
	Readings    ReadingSource
	Events      EventSource
	Gatherer    prometheus.Gatherer
}

// NewRouter configures all HTTP routes.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Coordinator == nil && deps.Simulator != nil {
		deps.Coordinator = simulation.NewCoordinator(deps.Simulator, nil)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/api/health", func(c *gin.Context) { HandleHealth(c, deps) })

	api := r.Group("/api")
	api.Use(requireSimulator(deps))

	api.GET("/plugin/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Simulator.Info())
	})
	api.GET("/plugin/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Simulator.Config())
	})
	api.PUT("/plugin/config", func(c *gin.Context) { HandleUpdateConfig(c, deps) })

	api.GET("/simulation/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Simulator.Snapshot())
	})
	api.POST("/simulation/enable", func(c *gin.Context) { HandleSetEnabled(c, deps, true) })
	api.POST("/simulation/disable", func(c *gin.Context) { HandleSetEnabled(c, deps, false) })
	api.POST("/simulation/poll", func(c *gin.Context) { HandlePoll(c, deps) })

	api.GET("/readings/recent", func(c *gin.Context) { HandleRecentReadings(c, deps) })
	api.GET("/events", func(c *gin.Context) { HandleListEvents(c, deps) })

	return r
}

func requireSimulator(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Simulator == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "simulator not running"})
			return
		}
		c.Next()
	}
}
