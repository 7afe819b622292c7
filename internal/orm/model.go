package orm

import (
	"context"
	"fmt"
	"strings"

	"myblog/internal/dbsession"
	"myblog/internal/shared"
)

// Executor - примитивы выполнения запросов; реализуется *dbsession.Session.
// Каждая операция Schema (Get, Find*, Count*, Insert, Update, Delete) вызывает
// ровно один примитив и сама транзакций не открывает; границы транзакции задаёт
// вызывающий. WithTransaction нужен только для начальной настройки схемы
// (Registry.CreateAll).
type Executor interface {
	Select(ctx context.Context, query string, args ...any) ([]dbsession.Row, error)
	SelectOne(ctx context.Context, query string, args ...any) (dbsession.Row, bool, error)
	SelectInt(ctx context.Context, query string, args ...any) (int64, error)
	Execute(ctx context.Context, query string, args ...any) (int64, error)
	Insert(ctx context.Context, table string, row dbsession.Row) (int64, error)
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Executor = (*dbsession.Session)(nil)

// selectSQL возвращает SELECT всех полей схемы в порядке объявления.
func (s *Schema) selectSQL() string {
	cols := make([]string, len(s.fields))
	for i, f := range s.fields {
		cols[i] = dbsession.QuoteIdent(f.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ","), dbsession.QuoteIdent(s.table))
}

func (s *Schema) pkCond() string {
	return dbsession.QuoteIdent(s.PrimaryKey().Name) + " = ?"
}

func (s *Schema) notFound(pk any) error {
	return fmt.Errorf("%s %v: %w", s.table, pk, shared.ErrNotFound)
}

// Get находит запись по первичному ключу. Отсутствие записи - ошибка вида KindNotFound.
func (s *Schema) Get(ctx context.Context, db Executor, pk any) (Record, error) {
	row, found, err := db.SelectOne(ctx, s.selectSQL()+" WHERE "+s.pkCond(), pk)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.table, err)
	}
	if !found {
		return nil, s.notFound(pk)
	}
	return recordFromRow(row), nil
}

// FindFirst возвращает первую запись, подходящую под условие where.
// where может содержать ORDER BY; false означает, что записей нет.
func (s *Schema) FindFirst(ctx context.Context, db Executor, where string, args ...any) (Record, bool, error) {
	row, found, err := db.SelectOne(ctx, s.selectSQL()+" WHERE "+where, args...)
	if err != nil || !found {
		return nil, false, err
	}
	return recordFromRow(row), true, nil
}

// FindAll возвращает все записи, упорядоченные по первичному ключу.
func (s *Schema) FindAll(ctx context.Context, db Executor) ([]Record, error) {
	rows, err := db.Select(ctx, s.selectSQL()+" ORDER BY "+dbsession.QuoteIdent(s.PrimaryKey().Name))
	if err != nil {
		return nil, err
	}
	return records(rows), nil
}

// FindBy возвращает записи, подходящие под условие where (может содержать ORDER BY и LIMIT).
func (s *Schema) FindBy(ctx context.Context, db Executor, where string, args ...any) ([]Record, error) {
	rows, err := db.Select(ctx, s.selectSQL()+" WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	return records(rows), nil
}

// CountAll возвращает количество записей в таблице.
func (s *Schema) CountAll(ctx context.Context, db Executor) (int64, error) {
	return db.SelectInt(ctx, s.countSQL())
}

// CountBy возвращает количество записей, подходящих под условие.
func (s *Schema) CountBy(ctx context.Context, db Executor, where string, args ...any) (int64, error) {
	return db.SelectInt(ctx, s.countSQL()+" WHERE "+where, args...)
}

func (s *Schema) countSQL() string {
	return fmt.Sprintf("SELECT count(%s) FROM %s",
		dbsession.QuoteIdent(s.PrimaryKey().Name), dbsession.QuoteIdent(s.table))
}

// Insert вставляет запись. Пропущенные вставляемые поля получают значения
// по умолчанию, которые записываются обратно в rec.
func (s *Schema) Insert(ctx context.Context, db Executor, rec Record) error {
	if s.preInsert != nil {
		if err := s.preInsert(ctx, rec); err != nil {
			return err
		}
	}

	cols := make([]string, 0, len(s.fields))
	vals := make([]any, 0, len(s.fields))
	for _, f := range s.fields {
		if !f.Insertable {
			continue
		}
		v, ok := rec[f.Name]
		if !ok || v == nil {
			v = f.DefaultValue()
			rec[f.Name] = v
		}
		cols = append(cols, f.Name)
		vals = append(vals, v)
	}

	if _, err := db.Insert(ctx, s.table, dbsession.NewRow(cols, vals)); err != nil {
		return fmt.Errorf("insert %s: %w", s.table, err)
	}
	return nil
}

// Update обновляет обновляемые поля записи по первичному ключу.
// Пропущенные поля получают значения по умолчанию. Если запись не найдена -
// ошибка вида KindNotFound.
func (s *Schema) Update(ctx context.Context, db Executor, rec Record) error {
	if s.preUpdate != nil {
		if err := s.preUpdate(ctx, rec); err != nil {
			return err
		}
	}

	sets := make([]string, 0, len(s.fields))
	args := make([]any, 0, len(s.fields)+1)
	for _, f := range s.fields {
		if !f.Updatable {
			continue
		}
		v, ok := rec[f.Name]
		if !ok || v == nil {
			v = f.DefaultValue()
			rec[f.Name] = v
		}
		sets = append(sets, dbsession.QuoteIdent(f.Name)+" = ?")
		args = append(args, v)
	}
	pk := rec[s.PrimaryKey().Name]
	if len(sets) == 0 {
		return fmt.Errorf("update %s: no updatable fields: %w", s.table, shared.ErrValidation)
	}
	args = append(args, pk)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		dbsession.QuoteIdent(s.table), strings.Join(sets, ", "), s.pkCond())
	n, err := db.Execute(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", s.table, err)
	}
	if n == 0 {
		return s.notFound(pk)
	}
	return nil
}

// Delete удаляет запись по первичному ключу.
func (s *Schema) Delete(ctx context.Context, db Executor, rec Record) error {
	if s.preDelete != nil {
		if err := s.preDelete(ctx, rec); err != nil {
			return err
		}
	}

	pk := rec[s.PrimaryKey().Name]
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", dbsession.QuoteIdent(s.table), s.pkCond())
	n, err := db.Execute(ctx, query, pk)
	if err != nil {
		return fmt.Errorf("delete %s: %w", s.table, err)
	}
	if n == 0 {
		return s.notFound(pk)
	}
	return nil
}

func records(rows []dbsession.Row) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = recordFromRow(row)
	}
	return out
}
