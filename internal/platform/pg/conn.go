package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"myblog/internal/dbsession"
)

// Убедимся на этапе компиляции, что типы реализуют интерфейсы
var (
	_ dbsession.Connector       = (*Connector)(nil)
	_ dbsession.RetryClassifier = (*Connector)(nil)
	_ dbsession.Conn            = (*conn)(nil)
	_ dbsession.Rows            = (*rows)(nil)
)

// Connector выдаёт сессиям соединения из пула pgx.
// Первый запрос на соединении неявно начинает транзакцию,
// Commit/Rollback её завершают, Close возвращает соединение в пул.
type Connector struct {
	pool *pgxpool.Pool
}

// NewConnector создает Connector поверх пула.
func NewConnector(pool *pgxpool.Pool) *Connector {
	return &Connector{pool: pool}
}

// Connect реализует dbsession.Connector.
func (c *Connector) Connect(ctx context.Context) (dbsession.Conn, error) {
	pc, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{conn: pc}, nil
}

// BindType реализует dbsession.Connector: PostgreSQL использует $1, $2, ...
func (c *Connector) BindType() int {
	return sqlx.DOLLAR
}

// Retryable реализует dbsession.RetryClassifier.
// Повторяем только ошибки, после которых сервер гарантированно ничего не выполнил.
func (c *Connector) Retryable(err error) bool {
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

type conn struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
}

// querier возвращает текущую транзакцию, начиная её при необходимости.
func (c *conn) querier(ctx context.Context) (pgx.Tx, error) {
	if c.tx != nil {
		return c.tx, nil
	}
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	c.tx = tx
	return tx, nil
}

func (c *conn) Query(ctx context.Context, query string, args ...any) (dbsession.Rows, error) {
	tx, err := c.querier(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &rows{rows: rs}, nil
}

func (c *conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tx, err := c.querier(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return tx.Commit(ctx)
}

func (c *conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// Close откатывает незавершённую транзакцию и возвращает соединение в пул.
func (c *conn) Close(ctx context.Context) error {
	err := c.Rollback(ctx)
	c.conn.Release()
	return err
}

// rows адаптирует pgx.Rows к dbsession.Rows.
type rows struct {
	rows pgx.Rows
}

func (r *rows) Columns() ([]string, error) {
	fds := r.rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}
	return cols, nil
}

func (r *rows) Next() bool             { return r.rows.Next() }
func (r *rows) Values() ([]any, error) { return r.rows.Values() }
func (r *rows) Err() error             { return r.rows.Err() }

func (r *rows) Close() error {
	r.rows.Close()
	return r.rows.Err()
}
