package dbsession

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type scopeState int

const (
	scopeActive scopeState = iota + 1
	scopeClosed
)

// ConnScope гарантирует наличие подключения на время блока.
// Подключение закрывает только та область, которая его создала.
type ConnScope struct {
	s     *Session
	epoch uint64
	owns  bool
	state scopeState
}

// OpenScope входит в область подключения. Если сессия не инициализирована,
// область инициализирует её и становится владельцем.
// Close нужно вызывать на всех путях выхода (обычно через defer).
func (s *Session) OpenScope() *ConnScope {
	c := &ConnScope{s: s, epoch: s.epoch, state: scopeActive}
	if !s.IsInitialized() {
		// Init не может вернуть ошибку: сессия проверена выше
		_ = s.Init()
		c.owns = true
	}
	return c
}

// Owns сообщает, создала ли эта область подключение.
func (c *ConnScope) Owns() bool {
	return c.owns
}

// Close выходит из области. Повторный вызов ничего не делает.
// После Release сессии Close тоже ничего не делает: подключение уже закрыто,
// а новое принадлежит другой области.
func (c *ConnScope) Close(ctx context.Context) error {
	if c.state != scopeActive {
		return nil
	}
	c.state = scopeClosed
	if !c.owns || c.released() {
		return nil
	}
	return c.s.Cleanup(context.WithoutCancel(ctx))
}

func (c *ConnScope) released() bool {
	return c.epoch != c.s.epoch
}

// TxScope - область транзакции поверх ConnScope.
// Коммит или откат выполняет только самая внешняя область, чей выход обнуляет счётчик.
type TxScope struct {
	s         *Session
	conn      *ConnScope
	span      trace.Span
	state     scopeState
	committed bool
}

// BeginScope входит в область транзакции и увеличивает счётчик вложенности.
// Для самой внешней области открывается спан; возвращённый контекст его несёт.
// End нужно вызывать на всех путях выхода.
func (s *Session) BeginScope(ctx context.Context) (context.Context, *TxScope) {
	t := &TxScope{s: s, conn: s.OpenScope(), state: scopeActive}
	if s.depth == 0 {
		ctx, t.span = s.tracer.Start(ctx, "dbsession.transaction")
	}
	s.depth++
	return ctx, t
}

// End выходит из области транзакции. cause - ошибка, с которой завершилось тело.
//
// На самом внешнем уровне при cause == nil выполняется коммит, иначе откат,
// и cause возвращается без изменений. Ошибка вложенной области помечает
// транзакцию как rollback-only: внешняя область откатит её, даже если ошибка
// была проглочена. Подключение освобождается в любом случае.
// Если сессию успели освободить через Release, End ничего не меняет
// и возвращает cause или ErrSessionReleased.
func (t *TxScope) End(ctx context.Context, cause error) error {
	if t.state != scopeActive {
		return cause
	}
	if t.conn.released() {
		// Release уже откатил транзакцию и обнулил счётчик
		t.state = scopeClosed
		t.conn.state = scopeClosed
		err := cause
		if err == nil {
			err = ErrSessionReleased
		}
		t.endSpan(err)
		return err
	}
	ctx = context.WithoutCancel(ctx)
	s := t.s
	s.depth--

	err := cause
	if s.depth > 0 {
		if cause != nil && s.rollbackOnly == nil {
			s.rollbackOnly = cause
		}
	} else {
		if err == nil && s.rollbackOnly != nil {
			err = fmt.Errorf("%w: %w", ErrRollbackOnly, s.rollbackOnly)
		}
		s.rollbackOnly = nil

		if err == nil {
			err = s.commit(ctx)
			t.committed = err == nil
		} else if rbErr := s.rollback(ctx); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		t.endSpan(err)
	}

	if cerr := t.conn.Close(ctx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	t.state = scopeClosed
	return err
}

// Committed сообщает, закоммитила ли эта область транзакцию.
// Для вложенных областей всегда false.
func (t *TxScope) Committed() bool {
	return t.committed
}

func (t *TxScope) endSpan(err error) {
	if t.span == nil {
		return
	}
	if err != nil {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, "rolled back")
	}
	t.span.End()
}

// WithConnection выполняет fn внутри области подключения.
func (s *Session) WithConnection(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	scope := s.OpenScope()
	defer func() {
		if cerr := scope.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(ctx)
}

// WithTransaction выполняет fn внутри области транзакции.
// Если fn возвращает ошибку, транзакция откатывается и ошибка возвращается без изменений.
// Если fn выполняется успешно, транзакция коммитится на выходе самой внешней области.
// Паника в fn откатывает транзакцию и пробрасывается дальше.
func (s *Session) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	txCtx, tx := s.BeginScope(ctx)
	defer func() {
		if p := recover(); p != nil {
			_ = tx.End(txCtx, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()
	return tx.End(txCtx, fn(txCtx))
}

// Transaction выполняет fn внутри области транзакции и возвращает её результат.
func Transaction[T any](ctx context.Context, s *Session, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}
