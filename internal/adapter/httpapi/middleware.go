package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"myblog/internal/dbsession"
)

// releaseTimeout ограничивает откат и закрытие подключения после запроса.
const releaseTimeout = 5 * time.Second

// Session создаёт отдельную сессию БД на каждый запрос и кладёт её в контекст.
// Подключение открывается только при первом запросе к БД и возвращается в пул
// по завершении обработчика, даже если тот запаниковал или оставил область открытой.
func Session(connector dbsession.Connector, log *slog.Logger, opts ...dbsession.Option) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := dbsession.New(connector, opts...)
		c.Request = c.Request.WithContext(dbsession.NewContext(c.Request.Context(), s))

		defer func() {
			// Освобождаем подключение и после отмены запроса
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), releaseTimeout)
			defer cancel()
			if err := s.Release(ctx); err != nil {
				log.ErrorContext(ctx, "release session", slog.String("path", c.FullPath()), slog.Any("err", err))
			}
		}()
		c.Next()
	}
}

// RequestLog пишет одну строку на запрос.
func RequestLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("took", time.Since(start)),
			slog.String("ip", c.ClientIP()))
	}
}

// RateLimiter ограничивает частоту изменяющих запросов с одного адреса.
type RateLimiter struct {
	mu   sync.Mutex
	last map[string]time.Time
	rate time.Duration
	now  func() time.Time
}

// NewRateLimiter создаёт ограничитель: не чаще одного запроса за rate.
func NewRateLimiter(rate time.Duration) *RateLimiter {
	return &RateLimiter{last: make(map[string]time.Time), rate: rate, now: time.Now}
}

// Allow сообщает, можно ли пропустить запрос с адреса key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if t, ok := r.last[key]; ok && now.Sub(t) < r.rate {
		return false
	}
	r.last[key] = now
	// Удаляем устаревшие записи
	for k, t := range r.last {
		if now.Sub(t) >= r.rate {
			delete(r.last, k)
		}
	}
	return true
}

// Middleware отвечает 429 на частые изменяющие запросы. GET и HEAD не ограничиваются.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if r.rate > 0 && !r.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: "too many requests"})
			return
		}
		c.Next()
	}
}
