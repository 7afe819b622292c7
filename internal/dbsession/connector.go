package dbsession

import (
	"context"
	"log/slog"
	"time"

	"myblog/pkg/retry"
)

// RetryClassifier может быть реализован Connector'ом, чтобы указать,
// какие ошибки подключения временные.
type RetryClassifier interface {
	Retryable(err error) bool
}

// RetryConnector повторяет открытие подключения при временных ошибках.
type RetryConnector struct {
	inner     Connector
	cfg       retry.Config
	retryable retry.IsRetryableFunc
}

// NewRetryConnector оборачивает connector повторными попытками по cfg.
// Если connector реализует RetryClassifier, решение о повторе принимает он,
// иначе используется retry.DefaultRetryable.
func NewRetryConnector(inner Connector, cfg retry.Config, log *slog.Logger) *RetryConnector {
	retryable := retry.DefaultRetryable
	if c, ok := inner.(RetryClassifier); ok {
		retryable = func(err error) bool {
			return c.Retryable(err) || retry.DefaultRetryable(err)
		}
	}
	if log != nil && cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, next time.Duration) {
			log.Warn("db connect failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("next_delay", next),
				slog.Any("error", err))
		}
	}
	return &RetryConnector{inner: inner, cfg: cfg, retryable: retryable}
}

// Connect реализует Connector.
func (r *RetryConnector) Connect(ctx context.Context) (Conn, error) {
	var conn Conn
	err := retry.DoWithRetryable(ctx, r.cfg, func(ctx context.Context) error {
		c, err := r.inner.Connect(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, r.retryable)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// BindType реализует Connector.
func (r *RetryConnector) BindType() int {
	return r.inner.BindType()
}
