package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"myblog/internal/dbsession"
)

// releaseTimeout ограничивает откат и закрытие подключения после выполнения задачи.
const releaseTimeout = 5 * time.Second

// JobFunc - тело задачи. Сессия БД текущего запуска доступна через dbsession.FromContext.
type JobFunc func(ctx context.Context) error

// SessionFactory создаёт новую сессию БД для одного запуска задачи.
type SessionFactory func() *dbsession.Session

// JobID - идентификатор задачи.
type JobID int

// OverlapPolicy определяет, что делать, если предыдущий запуск ещё не завершился.
type OverlapPolicy int

const (
	// AllowOverlap разрешает параллельные запуски (по умолчанию).
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning пропускает запуск.
	SkipIfRunning
	// DelayIfRunning ждёт завершения предыдущего запуска.
	DelayIfRunning
)

// JobOptions настраивает задачу.
type JobOptions struct {
	Name          string
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
}

// JobHooks - необязательные хуки наблюдаемости.
type JobHooks struct {
	OnJobStart  func(name string)
	OnJobFinish func(name string, took time.Duration, err error)
}

// Config содержит конфигурацию планировщика.
type Config struct {
	Logger *slog.Logger
	// Sessions создаёт сессию БД на каждый запуск. nil - задачи работают без сессии.
	Sessions SessionFactory
	Hooks    JobHooks
}

type job struct {
	fn      JobFunc
	opts    JobOptions
	running sync.Mutex

	cronID cron.EntryID
	cancel context.CancelFunc
}

// Scheduler запускает задачи по cron-расписанию или с фиксированным интервалом.
// Каждый запуск получает собственную сессию БД и освобождает её по завершении.
type Scheduler struct {
	cron     *cron.Cron
	log      *slog.Logger
	sessions SessionFactory
	hooks    JobHooks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[JobID]*job
	nextID JobID

	startOnce sync.Once
	stopOnce  sync.Once
}

// New создаёт планировщик, привязанный к родительскому контексту.
func New(parent context.Context, cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "scheduler"))
	ctx, cancel := context.WithCancel(parent)

	return &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{log: log})),
		log:      log,
		sessions: cfg.Sessions,
		hooks:    cfg.Hooks,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[JobID]*job),
		nextID:   1,
	}
}

func (s *Scheduler) register(j *job) JobID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.jobs[id] = j
	return id
}

// AddCron добавляет задачу по расписанию в формате cron с секундами
// ("0 */5 * * * *") или дескриптором ("@hourly", "@every 1m").
func (s *Scheduler) AddCron(schedule string, fn JobFunc, opts JobOptions) (JobID, error) {
	j := &job{fn: fn, opts: opts}
	cronID, err := s.cron.AddFunc(schedule, func() { s.run(s.ctx, j) })
	if err != nil {
		return 0, fmt.Errorf("add cron job %q: %w", opts.Name, err)
	}
	j.cronID = cronID

	id := s.register(j)
	s.log.Info("cron job added", slog.String("name", opts.Name), slog.String("schedule", schedule), slog.Int("id", int(id)))
	return id, nil
}

// AddInterval добавляет задачу, которая запускается каждые interval до остановки планировщика.
func (s *Scheduler) AddInterval(interval time.Duration, fn JobFunc, opts JobOptions) JobID {
	ctx, cancel := context.WithCancel(s.ctx)
	j := &job{fn: fn, opts: opts, cancel: cancel}
	id := s.register(j)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.run(ctx, j)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.log.Info("interval job added", slog.String("name", opts.Name), slog.Duration("interval", interval), slog.Int("id", int(id)))
	return id
}

// Remove удаляет задачу. Выполняющийся запуск не прерывается.
func (s *Scheduler) Remove(id JobID) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()

	if !ok {
		return false
	}
	if j.cancel != nil {
		j.cancel()
	} else {
		s.cron.Remove(j.cronID)
	}
	s.log.Info("job removed", slog.String("name", j.opts.Name), slog.Int("id", int(id)))
	return true
}

// RunNow синхронно выполняет задачу вне расписания с теми же правилами, что и плановый запуск.
func (s *Scheduler) RunNow(ctx context.Context, id JobID) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %d not found", id)
	}
	return s.run(ctx, j)
}

// Start запускает cron. Повторный вызов ничего не делает.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
		s.log.Info("scheduler started")
	})
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
// Если ctx истекает раньше, возвращает ctx.Err(), но остановка всё равно доводится до конца.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop deadline exceeded")
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Running сообщает, не остановлен ли планировщик.
func (s *Scheduler) Running() bool {
	return s.ctx.Err() == nil
}

// run выполняет один запуск задачи: политика перекрытий, таймаут, сессия БД, паники.
func (s *Scheduler) run(ctx context.Context, j *job) (err error) {
	name := j.opts.Name
	if name == "" {
		name = "unnamed"
	}

	switch j.opts.OverlapPolicy {
	case SkipIfRunning:
		if !j.running.TryLock() {
			s.log.Debug("job still running, skip", slog.String("name", name))
			return nil
		}
		defer j.running.Unlock()
	case DelayIfRunning:
		j.running.Lock()
		defer j.running.Unlock()
	}

	if j.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.opts.Timeout)
		defer cancel()
	}

	if s.sessions != nil {
		db := s.sessions()
		ctx = dbsession.NewContext(ctx, db)
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if rerr := db.Release(rctx); rerr != nil {
				s.log.Error("release job session", slog.String("name", name), slog.Any("err", rerr))
			}
		}()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(name)
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
		took := time.Since(start)
		if s.hooks.OnJobFinish != nil {
			s.hooks.OnJobFinish(name, took, err)
		}
		if err != nil {
			s.log.Error("job failed", slog.String("name", name), slog.Duration("took", took), slog.Any("err", err))
			return
		}
		s.log.Debug("job done", slog.String("name", name), slog.Duration("took", took))
	}()

	return j.fn(ctx)
}

// cronLogger передаёт сообщения cron в slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{slog.Any("err", err)}, keysAndValues...)...)
}
