package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myblog/internal/dbsession"
	"myblog/internal/platform/sqlite"
)

func waitForAtLeast(t *testing.T, counter *int64, expected int64, timeout time.Duration) {
	t.Helper()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(counter) >= expected
	}, timeout, 10*time.Millisecond, "значение счётчика не достигло ожидаемого уровня")
}

func newScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s := New(context.Background(), cfg)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestScheduler_AddCron(t *testing.T) {
	s := newScheduler(t, Config{})

	var counter int64
	_, err := s.AddCron("@every 100ms", func(ctx context.Context) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, JobOptions{Name: "tick"})
	require.NoError(t, err)

	s.Start()
	waitForAtLeast(t, &counter, 1, 2*time.Second)
}

func TestScheduler_AddCronInvalidSchedule(t *testing.T) {
	s := newScheduler(t, Config{})

	_, err := s.AddCron("invalid schedule", func(context.Context) error { return nil }, JobOptions{Name: "bad"})
	assert.ErrorContains(t, err, "bad")
}

func TestScheduler_AddInterval(t *testing.T) {
	s := newScheduler(t, Config{})

	var counter int64
	s.AddInterval(20*time.Millisecond, func(context.Context) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, JobOptions{})
	s.Start()

	waitForAtLeast(t, &counter, 3, 2*time.Second)
}

func TestScheduler_Remove(t *testing.T) {
	s := newScheduler(t, Config{})

	var counter int64
	id := s.AddInterval(10*time.Millisecond, func(context.Context) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, JobOptions{})
	s.Start()
	waitForAtLeast(t, &counter, 1, time.Second)

	assert.True(t, s.Remove(id))
	assert.False(t, s.Remove(id))

	time.Sleep(30 * time.Millisecond)
	baseline := atomic.LoadInt64(&counter)
	assert.Never(t, func() bool { return atomic.LoadInt64(&counter) > baseline },
		100*time.Millisecond, 10*time.Millisecond, "задача выполнилась после удаления")
}

func TestScheduler_PanicIsReported(t *testing.T) {
	var (
		mu       sync.Mutex
		finished []error
	)
	s := newScheduler(t, Config{Hooks: JobHooks{
		OnJobFinish: func(_ string, _ time.Duration, err error) {
			mu.Lock()
			finished = append(finished, err)
			mu.Unlock()
		},
	}})

	id, err := s.AddCron("@every 1h", func(context.Context) error { panic("boom") }, JobOptions{Name: "panicky"})
	require.NoError(t, err)

	err = s.RunNow(context.Background(), id)
	assert.ErrorContains(t, err, "boom")
	require.Len(t, finished, 1)
	assert.Error(t, finished[0])
}

func TestScheduler_Timeout(t *testing.T) {
	s := newScheduler(t, Config{})

	id := s.AddInterval(time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, JobOptions{Timeout: 20 * time.Millisecond})

	err := s.RunNow(context.Background(), id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_SkipIfRunning(t *testing.T) {
	s := newScheduler(t, Config{})

	release := make(chan struct{})
	var runs int64
	id := s.AddInterval(time.Hour, func(context.Context) error {
		atomic.AddInt64(&runs, 1)
		<-release
		return nil
	}, JobOptions{OverlapPolicy: SkipIfRunning})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), id) }()
	waitForAtLeast(t, &runs, 1, time.Second)

	// Второй запуск пропускается, пока первый не завершился
	assert.NoError(t, s.RunNow(context.Background(), id))
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))

	close(release)
	assert.NoError(t, <-done)
}

func TestScheduler_StopWaitsForJobs(t *testing.T) {
	s := New(context.Background(), Config{})

	var finished atomic.Bool
	started := make(chan struct{})
	s.AddInterval(10*time.Millisecond, func(context.Context) error {
		select {
		case <-started:
		default:
			close(started)
		}
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	}, JobOptions{OverlapPolicy: SkipIfRunning})
	s.Start()
	<-started

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, finished.Load())
	assert.False(t, s.Running())
	// Повторная остановка безопасна
	assert.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_StopDeadline(t *testing.T) {
	s := New(context.Background(), Config{})

	started := make(chan struct{})
	var once sync.Once
	s.AddInterval(5*time.Millisecond, func(context.Context) error {
		once.Do(func() { close(started) })
		time.Sleep(100 * time.Millisecond)
		return nil
	}, JobOptions{OverlapPolicy: SkipIfRunning})
	s.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}

func TestScheduler_ParentContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := New(parent, Config{})
	s.Start()
	assert.True(t, s.Running())

	cancel()
	assert.Eventually(t, func() bool { return !s.Running() }, time.Second, 10*time.Millisecond)
}

func TestScheduler_SessionPerRun(t *testing.T) {
	tdb := sqlite.NewTestDBFile(t)
	tdb.Exec(t, "CREATE TABLE runs (id INTEGER PRIMARY KEY, note TEXT)")

	var created int64
	s := newScheduler(t, Config{Sessions: func() *dbsession.Session {
		atomic.AddInt64(&created, 1)
		return dbsession.New(tdb.Connector)
	}})

	var seen []*dbsession.Session
	id := s.AddInterval(time.Hour, func(ctx context.Context) error {
		db, ok := dbsession.FromContext(ctx)
		if !ok {
			return errors.New("no session")
		}
		seen = append(seen, db)
		_, err := db.Execute(ctx, "INSERT INTO runs (note) VALUES (?)", "ok")
		return err
	}, JobOptions{Name: "insert"})

	require.NoError(t, s.RunNow(context.Background(), id))
	require.NoError(t, s.RunNow(context.Background(), id))

	assert.Equal(t, int64(2), atomic.LoadInt64(&created))
	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
	assert.False(t, seen[0].IsInitialized(), "session is released after the run")
	assert.Equal(t, 2, tdb.CountRows(t, "runs"))
	assert.Equal(t, 0, tdb.DB.Stats().InUse)
}

func TestScheduler_SessionReleasedAfterFailure(t *testing.T) {
	tdb := sqlite.NewTestDBFile(t)
	tdb.Exec(t, "CREATE TABLE runs (id INTEGER PRIMARY KEY, note TEXT)")
	s := newScheduler(t, Config{Sessions: func() *dbsession.Session { return dbsession.New(tdb.Connector) }})

	var leaked *dbsession.Session
	id := s.AddInterval(time.Hour, func(ctx context.Context) error {
		db, _ := dbsession.FromContext(ctx)
		leaked = db
		// Область транзакции намеренно не закрыта
		ctx, _ = db.BeginScope(ctx)
		if _, err := db.Execute(ctx, "INSERT INTO runs (note) VALUES (?)", "lost"); err != nil {
			return err
		}
		panic("job crashed mid-transaction")
	}, JobOptions{})

	assert.Error(t, s.RunNow(context.Background(), id))
	assert.Equal(t, 0, leaked.Depth())
	assert.False(t, leaked.IsInitialized())
	assert.Equal(t, 0, tdb.CountRows(t, "runs"))
	assert.Equal(t, 0, tdb.DB.Stats().InUse)
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	s := newScheduler(t, Config{})
	assert.Error(t, s.RunNow(context.Background(), 42))
}
