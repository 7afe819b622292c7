package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"myblog/pkg/retry"
)

// WaitForDB ожидает, пока пул сможет выполнить SELECT 1.
// Используется при старте, когда PostgreSQL поднимается параллельно с сервисом.
func WaitForDB(ctx context.Context, pool *pgxpool.Pool, cfg retry.Config) error {
	err := retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		return HealthCheckPool(ctx, pool)
	}, func(err error) bool {
		return pgconn.SafeToRetry(err) || pgconn.Timeout(err) || retry.DefaultRetryable(err)
	})
	if err != nil {
		return fmt.Errorf("database not available: %w", err)
	}
	return nil
}

// HealthCheckPool выполняет проверку здоровья пула подключений.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}
	return nil
}

// DBStats содержит статистику подключений к БД.
type DBStats struct {
	MaxConns     int32         `json:"max_conns"`     // Максимальное количество подключений
	OpenConns    int32         `json:"open_conns"`    // Текущее количество открытых подключений
	InUse        int32         `json:"in_use"`        // Подключения, занятые сессиями
	Idle         int32         `json:"idle"`          // Простаивающие подключения
	WaitCount    int64         `json:"wait_count"`    // Сколько раз сессия ждала свободное подключение
	WaitDuration time.Duration `json:"wait_duration"` // Общее время ожидания, нс
}

// GetPoolStats возвращает статистику пула подключений.
func GetPoolStats(pool *pgxpool.Pool) DBStats {
	if pool == nil {
		return DBStats{}
	}
	stats := pool.Stat()
	return DBStats{
		MaxConns:     stats.MaxConns(),
		OpenConns:    stats.TotalConns(),
		InUse:        stats.AcquiredConns(),
		Idle:         stats.IdleConns(),
		WaitCount:    stats.EmptyAcquireCount(),
		WaitDuration: stats.AcquireDuration(),
	}
}

// IsHealthy проверяет, здоров ли пул по статистике:
// пул настроен и занято не больше 90% подключений.
func IsHealthy(stats DBStats) bool {
	if stats.MaxConns == 0 {
		return false
	}
	utilizationPercent := float64(stats.InUse) / float64(stats.MaxConns) * 100
	return utilizationPercent <= 90
}
