// Package adminserver implements the driver's small Gin-based control and
// observability surface, per spec §4.9: /healthz, /stats, /control/:reqid,
// and /metrics.
package adminserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/use-agent/autodriver/metrics"
	"github.com/use-agent/autodriver/models"
)

// envelope mirrors the teacher's {success, error:{code,message}} JSON shape.
type envelope struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Error   *models.ErrorDetail `json:"error,omitempty"`
}

// StatsProvider is implemented by the driver so adminserver stays decoupled
// from driver's Single/Multi types.
type StatsProvider interface {
	// BrowserCount returns the number of browsers currently owned.
	BrowserCount() int
	// TabCounts returns tab counts keyed by reqid, for browsers currently owned.
	TabCounts() map[string]int
}

// Server wraps a configured *gin.Engine and *http.Server.
type Server struct {
	engine *gin.Engine
	http   *http.Server
}

// New builds the admin HTTP surface. rdb is used to republish control
// messages onto the driver's pub/sub channels so /control/:reqid can be
// driven over plain HTTP instead of requiring a Redis client.
func New(addr string, rdb *redis.Client, stats StatsProvider, startTime time.Time) *Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/healthz", healthz(startTime))
	r.GET("/stats", statsHandler(stats))
	r.POST("/control/:reqid", control(rdb))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	return &Server{
		engine: r,
		http:   &http.Server{Addr: addr, Handler: r},
	}
}

// Run starts serving and blocks until the listener stops.
func (s *Server) Run() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func healthz(startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, envelope{
			Success: true,
			Data: gin.H{
				"status": "healthy",
				"uptime": time.Since(startTime).Round(time.Second).String(),
			},
		})
	}
}

// statsHandler reports per-browser tab counts. It must never panic on an
// empty browser map (e.g. between shepherd staging and the first browser
// coming up).
func statsHandler(stats StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabCounts := stats.TabCounts()
		if tabCounts == nil {
			tabCounts = map[string]int{}
		}
		c.JSON(http.StatusOK, envelope{
			Success: true,
			Data: gin.H{
				"browsers":   stats.BrowserCount(),
				"tab_counts": tabCounts,
			},
		})
	}
}

type controlRequest struct {
	Cmd string `json:"cmd"`
}

// control republishes {cmd, reqid} onto "wr.auto-event:{reqid}" so a single
// HTTP surface can drive both SingleBrowserDriver and MultiBrowserDriver,
// which both subscribe to reqid-scoped (or shared "auto-event") channels.
func control(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.Param("reqid")

		var body controlRequest
		if err := c.ShouldBindJSON(&body); err != nil || body.Cmd == "" {
			c.JSON(http.StatusBadRequest, envelope{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: "missing or invalid cmd"},
			})
			return
		}

		payload, err := json.Marshal(map[string]string{"cmd": body.Cmd, "reqid": reqID})
		if err != nil {
			c.JSON(http.StatusInternalServerError, envelope{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInternal, Message: "encoding control payload failed"},
			})
			return
		}

		channel := "wr.auto-event:" + reqID
		if err := rdb.Publish(c.Request.Context(), channel, payload).Err(); err != nil {
			c.JSON(http.StatusInternalServerError, envelope{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInternal, Message: "publishing control command failed"},
			})
			return
		}
		// MultiBrowserDriver listens on the shared channel too.
		_ = rdb.Publish(c.Request.Context(), "auto-event", payload).Err()

		c.JSON(http.StatusOK, envelope{Success: true})
	}
}
