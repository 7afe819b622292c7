package sqlite

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

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

// Connector выдаёт сессиям выделенные соединения из пула *sqlx.DB.
// Каждое соединение ведёт себя как подключение DB-API: первый запрос
// неявно начинает транзакцию, Commit/Rollback её завершают.
//
// Транзакция, начатая чтением, открывается как DEFERRED и не берёт блокировку
// записи: в режиме WAL читатели не мешают ни друг другу, ни писателю.
// Транзакция, начатая изменяющей командой, открывается в режиме writeLock
// (по умолчанию IMMEDIATE). Запись после чтения в той же транзакции повышает
// блокировку; если другой писатель успел закоммитить, SQLite вернёт SQLITE_BUSY.
type Connector struct {
	db        *sqlx.DB
	writeLock TxLockMode
}

// ConnectorOption настраивает Connector.
type ConnectorOption func(*Connector)

// WithWriteLock задаёт режим BEGIN для транзакций, начатых изменяющей командой.
func WithWriteLock(mode TxLockMode) ConnectorOption {
	return func(c *Connector) {
		if mode != "" {
			c.writeLock = mode
		}
	}
}

// NewConnector создает Connector поверх открытой БД.
func NewConnector(db *sqlx.DB, opts ...ConnectorOption) *Connector {
	c := &Connector{db: db, writeLock: TxLockImmediate}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect реализует dbsession.Connector.
func (c *Connector) Connect(ctx context.Context) (dbsession.Conn, error) {
	cn, err := c.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{conn: cn, writeLock: c.writeLock}, nil
}

// BindType реализует dbsession.Connector.
func (c *Connector) BindType() int {
	return sqlx.QUESTION
}

// Retryable реализует dbsession.RetryClassifier: SQLITE_BUSY временная ошибка.
func (c *Connector) Retryable(err error) bool {
	return IsBusyError(err)
}

// IsBusyError проверяет, является ли ошибка SQLITE_BUSY.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database table is locked")
}

// txState - состояние неявной транзакции соединения.
type txState int

const (
	txNone txState = iota
	txActive
)

// conn - выделенное соединение с лениво начатой транзакцией.
// BEGIN/COMMIT/ROLLBACK выполняются на соединении вручную: режим блокировки
// выбирается по первой команде, чего database/sql.BeginTx не позволяет.
type conn struct {
	conn      *sqlx.Conn
	writeLock TxLockMode
	state     txState
}

// begin открывает транзакцию в режиме mode, если она ещё не открыта.
// Транзакция привязана к жизни соединения, а не к контексту первого запроса:
// иначе отмена этого контекста откатила бы всю транзакцию сессии.
func (c *conn) begin(ctx context.Context, mode TxLockMode) error {
	if c.state == txActive {
		return nil
	}
	if _, err := c.conn.ExecContext(context.WithoutCancel(ctx), "BEGIN "+strings.ToUpper(string(mode))); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	c.state = txActive
	return nil
}

func (c *conn) Query(ctx context.Context, query string, args ...any) (dbsession.Rows, error) {
	if err := c.begin(ctx, TxLockDeferred); err != nil {
		return nil, err
	}
	rs, err := c.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &rows{rows: rs}, nil
}

func (c *conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if err := c.begin(ctx, c.writeLock); err != nil {
		return 0, err
	}
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Commit коммитит текущую транзакцию. Без транзакции коммитить нечего.
func (c *conn) Commit(ctx context.Context) error {
	return c.end(ctx, "COMMIT")
}

// Rollback откатывает текущую транзакцию.
func (c *conn) Rollback(ctx context.Context) error {
	return c.end(ctx, "ROLLBACK")
}

func (c *conn) end(ctx context.Context, stmt string) error {
	if c.state == txNone {
		return nil
	}
	_, err := c.conn.ExecContext(context.WithoutCancel(ctx), stmt)
	// SQLite сам откатывает транзакцию после некоторых ошибок (SQLITE_FULL, SQLITE_IOERR)
	if err != nil && strings.Contains(err.Error(), "no transaction is active") {
		err = nil
	}
	if err != nil {
		// Транзакция осталась открытой: следующий Rollback или Close её завершит
		return err
	}
	c.state = txNone
	return nil
}

// Close откатывает незавершённую транзакцию и возвращает соединение в пул.
// Если откат не удался, соединение выбрасывается, а не возвращается в пул.
func (c *conn) Close(ctx context.Context) error {
	rbErr := c.Rollback(ctx)
	if rbErr != nil {
		_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	return errors.Join(rbErr, c.conn.Close())
}

// rows адаптирует *sqlx.Rows к dbsession.Rows.
type rows struct {
	rows *sqlx.Rows
}

func (r *rows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *rows) Next() bool                 { return r.rows.Next() }
func (r *rows) Values() ([]any, error)     { return r.rows.SliceScan() }
func (r *rows) Err() error                 { return r.rows.Err() }
func (r *rows) Close() error               { return r.rows.Close() }
