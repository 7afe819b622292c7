// Package dbsession управляет подключением к БД и транзакциями в рамках одной логической задачи.
//
// Основные понятия:
// - Session - контекст выполнения задачи: не более одного подключения и счётчик вложенности транзакций
// - LazyConn - подключение, которое открывается только при первом запросе
// - ConnScope - область, гарантирующая наличие подключения; закрывает его только владелец
// - TxScope - область транзакции; коммит или откат выполняет только самая внешняя
// - Select/SelectOne/SelectScalar/Execute - примитивы запросов поверх областей
//
// # Быстрый старт
//
// Одна сессия на задачу (HTTP-запрос, запуск задачи планировщика):
//
//	s := dbsession.New(connector, dbsession.WithLogger(log))
//	defer s.Release(ctx)
//
//	rows, err := s.Select(ctx, "SELECT id, name FROM users WHERE admin = ?", true)
//
// Изменение вне транзакции коммитится сразу:
//
//	n, err := s.Execute(ctx, "UPDATE users SET name = ? WHERE id = ?", "bob", id)
//
// # Транзакции
//
// Несколько изменений коммитятся или откатываются вместе:
//
//	err = s.WithTransaction(ctx, func(ctx context.Context) error {
//		if _, err := s.Execute(ctx, "INSERT INTO blogs (id, name) VALUES (?, ?)", id, name); err != nil {
//			return err
//		}
//		_, err := s.Execute(ctx, "UPDATE users SET posts = posts + 1 WHERE id = ?", userID)
//		return err
//	})
//
// Области можно вкладывать: внутренние только меняют счётчик, физический коммит
// выполняет самая внешняя. Ошибка во вложенной области откатывает всю транзакцию.
//
// # Плейсхолдеры
//
// В запросах всегда используется '?'. Перед выполнением он переписывается
// в формат драйвера ($1, $2, ... для PostgreSQL).
package dbsession
