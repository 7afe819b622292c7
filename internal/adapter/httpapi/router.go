// Package httpapi - JSON API блога на gin. Каждый запрос получает собственную сессию БД.
package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"myblog/internal/blog"
	"myblog/internal/dbsession"
)

// Config содержит зависимости роутера.
type Config struct {
	Service   *blog.Service
	Connector dbsession.Connector
	Logger    *slog.Logger
	// SessionOptions передаются в dbsession.New для каждого запроса.
	SessionOptions []dbsession.Option
	// WriteRate - минимальный интервал между изменяющими запросами с одного адреса; 0 отключает ограничение.
	WriteRate time.Duration
	// PoolStats, если задан, отдаёт статистику пула для /healthz.
	// healthy=false переводит ответ в 503.
	PoolStats func() (stats any, healthy bool)
}

// NewRouter собирает gin.Engine со всеми маршрутами.
func NewRouter(cfg Config) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "http"))

	h := NewHandler(cfg.Service, log)
	h.poolStats = cfg.PoolStats
	limiter := NewRateLimiter(cfg.WriteRate)

	r := gin.New()
	r.Use(gin.Recovery(), RequestLog(log), Session(cfg.Connector, log, cfg.SessionOptions...))

	r.GET("/healthz", h.health)

	api := r.Group("/api", limiter.Middleware())
	api.POST("/users", h.registerUser)
	api.POST("/authenticate", h.authenticate)
	api.GET("/blogs", h.listBlogs)
	api.POST("/blogs", h.createBlog)
	api.GET("/blogs/:id", h.getBlog)
	api.DELETE("/blogs/:id", h.deleteBlog)
	api.POST("/blogs/:id/comments", h.addComment)
	api.GET("/stats", h.stats)

	return r
}
