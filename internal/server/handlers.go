package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/simulation"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/sinusoid"
)

const (
	defaultLookback = time.Hour
	defaultLimit    = 50
	maxLimit        = 1000
	healthTimeout   = 3 * time.Second
)

// HandleUpdateConfig merges the posted values into the plugin category.
// Body: {"assetName": "plc-1"}.
func HandleUpdateConfig(c *gin.Context, deps Dependencies) {
	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(values) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no configuration values supplied"})
		return
	}

	cfg, err := deps.Coordinator.UpdateConfig(c.Request.Context(), values)
	switch {
	case errors.Is(err, simulation.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("persist plugin config failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "configuration applied but not persisted", "config": cfg})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// HandleSetEnabled pauses or resumes polling.
func HandleSetEnabled(c *gin.Context, deps Dependencies, enabled bool) {
	if err := deps.Coordinator.SetEnabled(c.Request.Context(), enabled); err != nil {
		slog.Error("persist enabled flag failed", "enabled", enabled, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state changed but not persisted", "status": deps.Simulator.Snapshot()})
		return
	}
	c.JSON(http.StatusOK, deps.Simulator.Snapshot())
}

// HandlePoll runs one poll outside the schedule and returns the reading.
func HandlePoll(c *gin.Context, deps Dependencies) {
	reading, err := deps.Simulator.PollOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reading)
}

// HandleRecentReadings returns stored readings for an asset, newest first.
// Query: asset (defaults to the configured asset), lookback (e.g. 15m), limit.
func HandleRecentReadings(c *gin.Context, deps Dependencies) {
	if deps.Readings == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "InfluxDB client not configured"})
		return
	}

	asset := strings.TrimSpace(c.Query("asset"))
	if asset == "" {
		asset, _ = deps.Simulator.Config().Value(sinusoid.ConfigAssetName)
	}
	if asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset is required"})
		return
	}

	lookback := defaultLookback
	if raw := c.Query("lookback"); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil || dur <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lookback"})
			return
		}
		lookback = dur
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	readings, err := deps.Readings.RecentReadings(c.Request.Context(), asset, lookback, limit)
	if err != nil {
		slog.Error("recent readings query failed", "asset", asset, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to query readings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset, "readings": readings})
}

// HandleListEvents returns the discharge journal.
func HandleListEvents(c *gin.Context, deps Dependencies) {
	if deps.Events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "MySQL repository not configured"})
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	events, err := deps.Events.ListEvents(c.Request.Context(), c.Query("asset"), limit)
	if err != nil {
		slog.Error("list discharge events failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// HandleHealth pings every configured backend.
func HandleHealth(c *gin.Context, deps Dependencies) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := gin.H{}
	healthy := true
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			slog.Warn("health check failed", "backend", name, "error", err)
			checks[name] = "unhealthy"
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	if deps.Readings != nil {
		check("influxdb", deps.Readings.Ping)
	}
	if deps.Events != nil {
		check("mysql", deps.Events.Ping)
	}
	checks["simulator"] = "ok"
	if deps.Simulator == nil {
		checks["simulator"] = "missing"
		healthy = false
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, true
}
