// Package scheduler запускает фоновые задачи по cron-расписанию (github.com/robfig/cron/v3)
// или с фиксированным интервалом.
//
// Каждый запуск - отдельная задача с собственной сессией БД: планировщик создаёт её
// через Config.Sessions, кладёт в контекст и освобождает после завершения, даже если
// задача упала с паникой. Сессии разных запусков никогда не пересекаются.
//
//	s := scheduler.New(ctx, scheduler.Config{
//		Logger:   log,
//		Sessions: func() *dbsession.Session { return dbsession.New(connector) },
//	})
//	_, err := s.AddCron("@every 1m", svc.StatsJob(), scheduler.JobOptions{
//		Name:          "stats",
//		Timeout:       30 * time.Second,
//		OverlapPolicy: scheduler.SkipIfRunning,
//	})
//	s.Start()
//	defer s.Stop(context.Background())
package scheduler
