package dbsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// sessionKey используется как ключ для хранения сессии в context.Context
type sessionKey struct{}

// Session - контекст выполнения одной логической задачи (HTTP-запрос, запуск задачи планировщика).
// Владеет не более чем одним LazyConn и счётчиком вложенности транзакций.
// Сессия не потокобезопасна и не должна передаваться между горутинами:
// изоляция достигается тем, что у каждой задачи своя сессия.
type Session struct {
	connector Connector
	log       *slog.Logger
	tracer    trace.Tracer

	conn         *LazyConn
	depth        int
	rollbackOnly error
	// epoch увеличивается при каждом Release; области, открытые до него, становятся недействительными
	epoch uint64
}

// Option настраивает Session.
type Option func(*Session)

// WithLogger задаёт логгер сессии.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTracer задаёт tracer для спанов транзакций.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New создаёт неинициализированную сессию. Подключение не открывается до первого запроса.
func New(connector Connector, opts ...Option) *Session {
	s := &Session{
		connector: connector,
		log:       slog.Default(),
		tracer:    otel.Tracer("myblog/dbsession"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "dbsession"))
	return s
}

// NewContext возвращает копию ctx, несущую сессию.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext извлекает сессию из контекста.
// Возвращает сессию и флаг, указывающий была ли она найдена.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}

// IsInitialized сообщает, создан ли LazyConn.
func (s *Session) IsInitialized() bool {
	return s.conn != nil
}

// Depth возвращает текущую глубину вложенности транзакций.
func (s *Session) Depth() int {
	return s.depth
}

// Init создаёт новый LazyConn и сбрасывает счётчик вложенности.
// Вызывающий должен сначала проверить IsInitialized.
func (s *Session) Init() error {
	if s.conn != nil {
		return ErrAlreadyInitialized
	}
	s.conn = newLazyConn(s.connector, s.log)
	s.depth = 0
	s.rollbackOnly = nil
	return nil
}

// Cleanup закрывает подключение и возвращает сессию в неинициализированное состояние.
// Допустим только при нулевой глубине транзакций; повторный вызов ничего не делает.
func (s *Session) Cleanup(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	if s.depth > 0 {
		return ErrTransactionActive
	}
	conn := s.conn
	s.conn = nil
	return conn.Cleanup(ctx)
}

// Release завершает сессию в конце задачи. Если задача оставила открытые области
// транзакций, они откатываются, счётчик сбрасывается, и это логируется как утечка.
// Хосты, переиспользующие воркеры, обязаны вызывать Release между задачами.
func (s *Session) Release(ctx context.Context) error {
	s.epoch++
	if s.conn == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if s.depth > 0 {
		s.log.Warn("releasing session with open transaction scopes", slog.Int("depth", s.depth))
		s.depth = 0
		err = s.rollback(ctx)
	}
	s.rollbackOnly = nil
	return errors.Join(err, s.Cleanup(ctx))
}

// Cursor возвращает курсор текущего подключения, открывая его при необходимости.
func (s *Session) Cursor(ctx context.Context) (*Cursor, error) {
	if s.conn == nil {
		return nil, ErrNoActiveConnection
	}
	return s.conn.Cursor(ctx)
}

// rebind переписывает переносимые плейсхолдеры '?' в формат драйвера.
func (s *Session) rebind(query string) string {
	return sqlx.Rebind(s.connector.BindType(), query)
}

// commit коммитит неявную транзакцию подключения.
// При ошибке коммита выполняется откат; если и он не удался, возвращаются обе ошибки.
// Если физическое подключение так и не открывалось, коммитить нечего.
func (s *Session) commit(ctx context.Context) error {
	if s.conn == nil || !s.conn.Connected() {
		return nil
	}
	if err := s.conn.Commit(ctx); err != nil {
		commitErr := fmt.Errorf("%w: %w", ErrCommitFailed, err)
		s.log.Error("commit failed, rolling back", slog.Any("error", err))
		if rbErr := s.conn.Rollback(ctx); rbErr != nil {
			return errors.Join(commitErr, fmt.Errorf("%w: %w", ErrRollbackFailed, rbErr))
		}
		return commitErr
	}
	s.log.Debug("committed")
	return nil
}

// rollback откатывает неявную транзакцию подключения.
func (s *Session) rollback(ctx context.Context) error {
	if s.conn == nil || !s.conn.Connected() {
		return nil
	}
	if err := s.conn.Rollback(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}
	s.log.Debug("rolled back")
	return nil
}
