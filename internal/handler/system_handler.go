package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/service"
)

const (
	statusInterval = 5 * time.Second
	healthTimeout  = 2 * time.Second
)

// Pinger is a dependency the health check probes, such as the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves health checks and the admin status stream.
type SystemHandler struct {
	db             Pinger
	rdb            *redis.Client
	sessionService *service.SessionService
	startTime      time.Time
	log            zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(db Pinger, rdb *redis.Client, sessionService *service.SessionService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:             db,
		rdb:            rdb,
		sessionService: sessionService,
		startTime:      time.Now(),
		log:            log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Reports 503 when PostgreSQL or Redis cannot be reached.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := gin.H{"postgres": "ok", "redis": "ok"}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

type systemStatus struct {
	Timestamp      int64  `json:"timestamp"`
	Uptime         string `json:"uptime"`
	Goroutines     int    `json:"goroutines"`
	HeapAlloc      uint64 `json:"heap_alloc"`
	NumGC          uint32 `json:"num_gc"`
	GoVersion      string `json:"go_version"`
	LiveSessions   int    `json:"live_sessions"`
	ActiveSessions int    `json:"active_sessions"`
	QueueAttempts  int64  `json:"queue_attempts"`
	QueueBookmarks int64  `json:"queue_bookmarks"`
}

// StatusSSE godoc
// GET /api/v1/admin/system/status
// Streams runtime, session and queue figures via SSE.
func (h *SystemHandler) StatusSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to status stream")

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	h.writeStatus(c)
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from status stream")
			return
		case <-ticker.C:
			h.writeStatus(c)
		}
	}
}

func (h *SystemHandler) writeStatus(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemStatus {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := systemStatus{
		Timestamp:  time.Now().Unix(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		NumGC:      ms.NumGC,
		GoVersion:  runtime.Version(),
	}
	s.LiveSessions, s.ActiveSessions = h.sessionService.Count()

	pipe := h.rdb.Pipeline()
	attemptsCmd := pipe.LLen(ctx, config.WorkerKey.PersistAttemptsQueue)
	bookmarksCmd := pipe.LLen(ctx, config.WorkerKey.PersistBookmarksQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		s.QueueAttempts, _ = attemptsCmd.Result()
		s.QueueBookmarks, _ = bookmarksCmd.Result()
	}
	return s
}
