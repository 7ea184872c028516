package main

import (
	"net/http"
	"time"

	"github.com/deusflow/aidigest/internal/knowledge"
	"github.com/deusflow/aidigest/internal/metrics"
	"github.com/gin-gonic/gin"
)

// historyView is the read side of the pipeline the monitoring server exposes.
type historyView interface {
	History() map[string]string
	TopicStats() knowledge.Stats
	LLMStats() map[string]interface{}
}

func newMonitoringServer(addr string, view historyView) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	return &http.Server{
		Addr:              addr,
		Handler:           monitoringRouter(metrics.Global, view),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func monitoringRouter(m *metrics.Metrics, view historyView) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		stats := m.GetStats()

		status := "ok"
		code := http.StatusOK
		if !m.Healthy() {
			status = "error"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":     status,
			"last_run":   stats["last_run_time"],
			"last_error": stats["last_error"],
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		stats := m.GetStats()
		stats["llm"] = view.LLMStats()
		c.JSON(http.StatusOK, stats)
	})

	r.GET("/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"history": view.History(),
			"stats":   view.TopicStats(),
		})
	})

	return r
}
