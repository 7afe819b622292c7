package dbsession

import "context"

// Connector открывает физические подключения к БД.
// Реализации живут в internal/platform/sqlite и internal/platform/pg.
type Connector interface {
	// Connect открывает одно физическое подключение.
	Connect(ctx context.Context) (Conn, error)
	// BindType возвращает тип плейсхолдеров драйвера (константы sqlx: QUESTION, DOLLAR, ...).
	BindType() int
}

// Conn представляет одно физическое подключение с семантикой DB-API:
// первый запрос на подключении неявно начинает транзакцию,
// Commit и Rollback её завершают.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Close откатывает незавершённую транзакцию и закрывает подключение.
	Close(ctx context.Context) error
}

// Rows итерирует результат запроса.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Values() ([]any, error)
	Err() error
	Close() error
}
