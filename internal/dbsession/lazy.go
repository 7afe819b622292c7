package dbsession

import (
	"context"
	"fmt"
	"log/slog"
)

// LazyConn откладывает открытие физического подключения до первого запроса курсора.
// Подключение открывается не более одного раза; Cleanup сбрасывает его обратно в nil.
type LazyConn struct {
	connector Connector
	log       *slog.Logger
	handle    Conn
}

func newLazyConn(connector Connector, log *slog.Logger) *LazyConn {
	return &LazyConn{connector: connector, log: log}
}

// Connected сообщает, открыто ли физическое подключение.
func (l *LazyConn) Connected() bool {
	return l.handle != nil
}

// Cursor возвращает курсор, привязанный к подключению, открывая его при первом вызове.
// Ошибка фабрики оборачивается в ErrConnectFailed, подключение остаётся неоткрытым.
func (l *LazyConn) Cursor(ctx context.Context) (*Cursor, error) {
	if l.handle == nil {
		conn, err := l.connector.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}
		l.handle = conn
		l.log.Debug("db connection opened")
	}
	return &Cursor{conn: l.handle}, nil
}

// Commit коммитит текущую транзакцию подключения.
func (l *LazyConn) Commit(ctx context.Context) error {
	if l.handle == nil {
		return ErrNotConnected
	}
	return l.handle.Commit(ctx)
}

// Rollback откатывает текущую транзакцию подключения.
func (l *LazyConn) Rollback(ctx context.Context) error {
	if l.handle == nil {
		return ErrNotConnected
	}
	return l.handle.Rollback(ctx)
}

// Cleanup закрывает подключение, если оно открыто. Повторный вызов ничего не делает.
func (l *LazyConn) Cleanup(ctx context.Context) error {
	if l.handle == nil {
		return nil
	}
	conn := l.handle
	l.handle = nil
	if err := conn.Close(ctx); err != nil {
		return fmt.Errorf("close db connection: %w", err)
	}
	l.log.Debug("db connection closed")
	return nil
}

// Cursor выполняет запросы на подключении и держит последний открытый результат.
// Close закрывает этот результат; само подключение остаётся открытым.
type Cursor struct {
	conn Conn
	rows Rows
}

// Query выполняет запрос, закрывая предыдущий результат курсора.
func (c *Cursor) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if err := c.Close(); err != nil {
		return nil, err
	}
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	c.rows = rows
	return rows, nil
}

// Exec выполняет команду и возвращает количество затронутых строк.
func (c *Cursor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if err := c.Close(); err != nil {
		return 0, err
	}
	return c.conn.Exec(ctx, query, args...)
}

// Close закрывает открытый результат курсора.
func (c *Cursor) Close() error {
	if c.rows == nil {
		return nil
	}
	rows := c.rows
	c.rows = nil
	return rows.Close()
}
