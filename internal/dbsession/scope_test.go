package dbsession

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnScope_OnlyOwnerCleansUp(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	outer := s.OpenScope()
	assert.True(t, outer.Owns())

	_, err := s.Execute(ctx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	inner := s.OpenScope()
	assert.False(t, inner.Owns())
	require.NoError(t, inner.Close(ctx))

	// Внутренняя область не закрывает подключение внешней
	assert.True(t, s.IsInitialized())
	assert.Equal(t, 0, db.closes)

	require.NoError(t, outer.Close(ctx))
	assert.False(t, s.IsInitialized())
	assert.Equal(t, 1, db.opens)
	assert.Equal(t, 1, db.closes)
}

func TestConnScope_CloseTwice(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	scope := s.OpenScope()
	_, err := s.Execute(ctx, "DELETE FROM t")
	require.NoError(t, err)

	require.NoError(t, scope.Close(ctx))
	require.NoError(t, scope.Close(ctx))
	assert.Equal(t, 1, db.closes)
}

func TestConnScope_NoConnectionWithoutQueries(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	err := s.WithConnection(ctx, func(ctx context.Context) error {
		assert.True(t, s.IsInitialized())
		return nil
	})

	require.NoError(t, err)
	assert.False(t, s.IsInitialized())
	assert.Equal(t, 0, db.opens)
	assert.Equal(t, 0, db.closes)
}

func TestTxScope_NestedCommitsOnce(t *testing.T) {
	for depth := 1; depth <= 5; depth++ {
		t.Run(fmt.Sprintf("depth_%d", depth), func(t *testing.T) {
			ctx := context.Background()
			db := newFakeDB()
			s := New(db)

			var nest func(ctx context.Context, level int) error
			nest = func(ctx context.Context, level int) error {
				return s.WithTransaction(ctx, func(ctx context.Context) error {
					assert.Equal(t, level, s.Depth())
					if _, err := s.Execute(ctx, fmt.Sprintf("INSERT INTO t VALUES (%d)", level)); err != nil {
						return err
					}
					// До выхода внешней области ничего не закоммичено
					assert.Equal(t, 0, db.commits)
					if level < depth {
						return nest(ctx, level+1)
					}
					return nil
				})
			}

			require.NoError(t, nest(ctx, 1))
			assert.Equal(t, 1, db.commits)
			assert.Equal(t, 0, db.rollbacks)
			assert.Len(t, db.durable, depth)
			assert.Equal(t, 0, s.Depth())
			assert.False(t, s.IsInitialized())
			assert.Equal(t, 1, db.opens)
			assert.Equal(t, 1, db.closes)
		})
	}
}

func TestTxScope_FailureRollsBackOnce(t *testing.T) {
	for depth := 1; depth <= 4; depth++ {
		t.Run(fmt.Sprintf("depth_%d", depth), func(t *testing.T) {
			ctx := context.Background()
			db := newFakeDB()
			s := New(db)
			boom := errors.New("boom")

			var nest func(ctx context.Context, level int) error
			nest = func(ctx context.Context, level int) error {
				return s.WithTransaction(ctx, func(ctx context.Context) error {
					if _, err := s.Execute(ctx, "UPDATE t SET v = v + 1"); err != nil {
						return err
					}
					if level == depth {
						return boom
					}
					return nest(ctx, level+1)
				})
			}

			err := nest(ctx, 1)
			assert.Same(t, boom, err)
			assert.Equal(t, 0, db.commits)
			assert.Equal(t, 1, db.rollbacks)
			assert.Empty(t, db.durable)
			assert.Equal(t, 0, s.Depth())
			assert.False(t, s.IsInitialized())
		})
	}
}

func TestTxScope_SwallowedInnerFailureRollsBackOuter(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)
	inner := errors.New("inner failed")

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.Execute(ctx, "INSERT INTO t VALUES (1)"); err != nil {
			return err
		}
		// Ошибку вложенной области проглатываем
		_ = s.WithTransaction(ctx, func(ctx context.Context) error {
			return inner
		})
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRollbackOnly)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, 0, db.commits)
	assert.Equal(t, 1, db.rollbacks)
	assert.Empty(t, db.durable)
}

func TestTxScope_CommitFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	db.commitErr = errors.New("disk full")
	s := New(db)

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := s.Execute(ctx, "INSERT INTO t VALUES (1)")
		return err
	})

	assert.ErrorIs(t, err, ErrCommitFailed)
	assert.ErrorIs(t, err, db.commitErr)
	assert.Equal(t, 1, db.commits)
	assert.Equal(t, 1, db.rollbacks)
	// Подключение освобождено, несмотря на ошибку коммита
	assert.Equal(t, 1, db.closes)
	assert.False(t, s.IsInitialized())
}

func TestTxScope_CommitAndRollbackFailuresBothVisible(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	db.commitErr = errors.New("commit broke")
	db.rollbackErr = errors.New("rollback broke")
	s := New(db)

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := s.Execute(ctx, "INSERT INTO t VALUES (1)")
		return err
	})

	assert.ErrorIs(t, err, ErrCommitFailed)
	assert.ErrorIs(t, err, ErrRollbackFailed)
	assert.ErrorIs(t, err, db.commitErr)
	assert.ErrorIs(t, err, db.rollbackErr)
	assert.Equal(t, 1, db.closes)
}

func TestTxScope_BodyAndRollbackFailuresBothVisible(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	db.rollbackErr = errors.New("rollback broke")
	s := New(db)
	boom := errors.New("boom")

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.Execute(ctx, "INSERT INTO t VALUES (1)"); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrRollbackFailed)
	assert.Equal(t, 1, db.closes)
}

func TestTxScope_EmptyTransactionTouchesNothing(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	ctx, tx := s.BeginScope(ctx)
	require.NoError(t, tx.End(ctx, nil))

	assert.True(t, tx.Committed())
	assert.Equal(t, 0, db.opens)
	assert.Equal(t, 0, db.commits)
	assert.Equal(t, 0, db.rollbacks)
}

func TestTxScope_EndTwice(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	ctx, tx := s.BeginScope(ctx)
	_, err := s.Execute(ctx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	require.NoError(t, tx.End(ctx, nil))
	require.NoError(t, tx.End(ctx, nil))
	assert.Equal(t, 1, db.commits)
	assert.Equal(t, 0, s.Depth())
}

func TestTxScope_InnerScopeKeepsConnection(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	outerCtx, outer := s.BeginScope(ctx)
	_, err := s.Execute(outerCtx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	innerCtx, inner := s.BeginScope(outerCtx)
	assert.Equal(t, 2, s.Depth())
	require.NoError(t, inner.End(innerCtx, nil))

	assert.False(t, inner.Committed())
	assert.True(t, s.IsInitialized())
	assert.Equal(t, 0, db.closes)
	assert.Equal(t, 0, db.commits)

	require.NoError(t, outer.End(outerCtx, nil))
	assert.True(t, outer.Committed())
	assert.Equal(t, 1, db.commits)
	assert.Equal(t, 1, db.closes)
}

func TestTxScope_CanceledContextStillFinalizes(t *testing.T) {
	db := newFakeDB()
	s := New(db)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.Execute(ctx, "INSERT INTO t VALUES (1)"); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, db.rollbacks)
	assert.Equal(t, 1, db.closes)
	assert.False(t, s.IsInitialized())
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = s.WithTransaction(ctx, func(ctx context.Context) error {
			_, _ = s.Execute(ctx, "INSERT INTO t VALUES (1)")
			panic("kaboom")
		})
	})

	assert.Equal(t, 0, db.commits)
	assert.Equal(t, 1, db.rollbacks)
	assert.Equal(t, 1, db.closes)
	assert.Equal(t, 0, s.Depth())
	assert.False(t, s.IsInitialized())
}

func TestWithConnection_PanicReleasesConnection(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	assert.Panics(t, func() {
		_ = s.WithConnection(ctx, func(ctx context.Context) error {
			_, _ = s.Select(ctx, "SELECT 1")
			panic("kaboom")
		})
	})

	assert.Equal(t, 1, db.closes)
	assert.False(t, s.IsInitialized())
}

func TestTransaction_ReturnsResult(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	n, err := Transaction(ctx, s, func(ctx context.Context) (int64, error) {
		return s.Execute(ctx, "DELETE FROM t")
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, db.commits)
}

func TestScenario_InsertUpdateThenFailure(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)
	errBody := errors.New("validation failed")

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.Execute(ctx, "INSERT INTO t (id) VALUES (?)", 1); err != nil {
			return err
		}
		if _, err := s.Execute(ctx, "UPDATE t SET v = ? WHERE id = ?", "x", 1); err != nil {
			return err
		}
		assert.Len(t, db.staged, 2)
		return errBody
	})

	assert.Same(t, errBody, err)
	assert.Empty(t, db.durable)
	assert.Equal(t, 0, db.commits)
	assert.Equal(t, 1, db.rollbacks)
}

func TestTxScope_EndAfterRelease(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	txCtx, tx := s.BeginScope(ctx)
	_, err := s.Execute(txCtx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx))
	assert.Equal(t, 0, s.Depth())

	err = tx.End(txCtx, nil)
	require.ErrorIs(t, err, ErrSessionReleased)
	assert.False(t, tx.Committed())
	assert.Equal(t, 0, s.Depth())
	assert.Equal(t, 0, db.commits)

	// Сессия пригодна для следующей задачи
	_, err = s.Execute(ctx, "INSERT INTO t VALUES (2)")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Depth())
	assert.Equal(t, 1, db.commits)
	assert.False(t, s.IsInitialized())
}

func TestTxScope_EndAfterReleaseKeepsCause(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeDB())
	boom := errors.New("boom")

	_, tx := s.BeginScope(ctx)
	require.NoError(t, s.Release(ctx))

	assert.Same(t, boom, tx.End(ctx, boom))
	assert.Equal(t, 0, s.Depth())
}

func TestConnScope_StaleCloseKeepsNewConnection(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := New(db)

	stale := s.OpenScope()
	_, err := s.Execute(ctx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx))

	fresh := s.OpenScope()
	_, err = s.Execute(ctx, "INSERT INTO t VALUES (2)")
	require.NoError(t, err)

	// Область, открытая до Release, не закрывает чужое подключение
	require.NoError(t, stale.Close(ctx))
	assert.True(t, s.IsInitialized())
	assert.Equal(t, 1, db.closes)

	require.NoError(t, fresh.Close(ctx))
	assert.False(t, s.IsInitialized())
	assert.Equal(t, 2, db.closes)
}
