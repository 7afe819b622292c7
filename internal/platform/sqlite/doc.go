// Package sqlite предоставляет подключение к SQLite для сессий dbsession.
//
// Основные возможности:
// - Открытие БД с PRAGMA в DSN (применяются к каждому соединению пула)
// - Connector: выделенное соединение на сессию с ленивой транзакцией
// - Чтение без блокировки записи, запись с BEGIN IMMEDIATE, классификация SQLITE_BUSY
// - Тестовые хелперы
//
// # Быстрый старт
//
//	db, err := sqlite.NewDB(ctx, "data/blog.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	s := dbsession.New(sqlite.NewConnector(db))
//	defer s.Release(ctx)
//
// # Режим блокировки
//
// По умолчанию транзакции начинаются как BEGIN IMMEDIATE: сессия начинает
// транзакцию с первого запроса, и ранний захват RESERVED блокировки избавляет
// от SQLITE_BUSY при повышении блокировки с чтения до записи.
//
// # Тестирование
//
//	func TestSomething(t *testing.T) {
//		tdb := sqlite.NewTestDBFile(t)
//		s := tdb.NewSession(t)
//		// Автоматическая очистка после теста
//	}
package sqlite
