package dbsession

import "errors"

var (
	// ErrConnectFailed - фабрика подключений не смогла открыть подключение
	ErrConnectFailed = errors.New("dbsession: connect failed")
	// ErrNotConnected - commit/rollback вызваны без открытого подключения
	ErrNotConnected = errors.New("dbsession: not connected")
	// ErrNoActiveConnection - операция требует инициализированной сессии
	ErrNoActiveConnection = errors.New("dbsession: no active connection")
	// ErrAlreadyInitialized - повторный Init без Cleanup
	ErrAlreadyInitialized = errors.New("dbsession: already initialized")
	// ErrMultiColumnResult - скалярный запрос вернул больше одной колонки
	ErrMultiColumnResult = errors.New("dbsession: expected a single column")
	// ErrCommitFailed - драйвер не смог закоммитить транзакцию
	ErrCommitFailed = errors.New("dbsession: commit failed")
	// ErrRollbackFailed - драйвер не смог откатить транзакцию
	ErrRollbackFailed = errors.New("dbsession: rollback failed")
	// ErrTransactionActive - Cleanup вызван при открытой транзакции
	ErrTransactionActive = errors.New("dbsession: transaction scope still active")
	// ErrRollbackOnly - вложенная область завершилась ошибкой, внешняя транзакция откачена
	ErrRollbackOnly = errors.New("dbsession: transaction marked rollback-only")
	// ErrSessionReleased - область пережила Release сессии; её транзакция уже откачена
	ErrSessionReleased = errors.New("dbsession: session released while scope was open")
	// ErrNoRows - запрос не вернул ни одной строки
	ErrNoRows = errors.New("dbsession: no rows in result set")
)
