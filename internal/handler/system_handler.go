package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/config"
	"github.com/stemsi/ielts-listening/internal/response"
	"github.com/stemsi/ielts-listening/internal/service"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports service health and runtime figures.
type SystemHandler struct {
	rdb              *redis.Client
	pool             *pgxpool.Pool
	listeningService *service.ListeningService
	startTime        time.Time
	log              zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, pool *pgxpool.Pool, listeningService *service.ListeningService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:              rdb,
		pool:             pool,
		listeningService: listeningService,
		startTime:        time.Now(),
		log:              log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status       string            `json:"status"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies"`

	LiveAttempts int   `json:"live_attempts"`
	JournalQueue int64 `json:"journal_queue"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
}

// Health godoc
// GET /health
// Pings Redis and PostgreSQL. Responds 503 when either is down.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	rep := healthReport{
		Status:       "ok",
		Uptime:       formatDuration(time.Since(h.startTime)),
		Dependencies: make(map[string]string, 2),
		LiveAttempts: h.listeningService.LiveAttempts(),
		Goroutines:   runtime.NumGoroutine(),
		GoVersion:    runtime.Version(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	rep.HeapAlloc = ms.HeapAlloc
	rep.NumGC = ms.NumGC

	status := http.StatusOK
	check := func(name string, err error) {
		if err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			rep.Dependencies[name] = "down"
			rep.Status = "degraded"
			status = http.StatusServiceUnavailable
			return
		}
		rep.Dependencies[name] = "up"
	}

	if h.rdb != nil {
		check("redis", h.rdb.Ping(ctx).Err())
		rep.JournalQueue, _ = h.rdb.LLen(ctx, config.WorkerKey.PersistAttemptsQueue).Result()
	}
	if h.pool != nil {
		check("postgres", h.pool.Ping(ctx))
	}

	response.Success(c, status, rep)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
