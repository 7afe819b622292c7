package dbsession

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Select выполняет запрос и возвращает все строки.
// Если строк нет, возвращается пустой срез, а не ошибка.
// Подключение берётся из активной области или из неявной области на время вызова.
func (s *Session) Select(ctx context.Context, query string, args ...any) (rows []Row, err error) {
	err = s.WithConnection(ctx, func(ctx context.Context) error {
		rows, err = s.query(ctx, 0, query, args)
		return err
	})
	return rows, err
}

// SelectOne возвращает первую строку результата в порядке драйвера.
// Флаг false означает, что строк нет. Для детерминизма запрос должен содержать ORDER BY.
func (s *Session) SelectOne(ctx context.Context, query string, args ...any) (row Row, found bool, err error) {
	err = s.WithConnection(ctx, func(ctx context.Context) error {
		rows, err := s.query(ctx, 1, query, args)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			row, found = rows[0], true
		}
		return nil
	})
	return row, found, err
}

// SelectScalar возвращает единственное значение первой строки.
// Если строк нет, возвращает nil. Если в строке больше одной колонки - ErrMultiColumnResult.
func (s *Session) SelectScalar(ctx context.Context, query string, args ...any) (any, error) {
	row, found, err := s.SelectOne(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if row.Len() != 1 {
		return nil, fmt.Errorf("%w: got %d columns", ErrMultiColumnResult, row.Len())
	}
	return row.Value(0), nil
}

// SelectInt возвращает скалярный результат как int64 (например, COUNT(*)).
func (s *Session) SelectInt(ctx context.Context, query string, args ...any) (int64, error) {
	v, err := s.SelectScalar(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case nil:
		return 0, ErrNoRows
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		// SQLite отдаёт результат арифметики как REAL; дробную часть не отбрасываем молча
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("dbsession: scalar %v is not an integer", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("dbsession: scalar %T is not an integer", v)
	}
}

// Execute выполняет команду и возвращает количество затронутых строк.
// Вне области транзакции изменение коммитится сразу после выполнения (auto-commit),
// а при ошибке неявная транзакция откатывается. Внутри области коммит
// откладывается до выхода самой внешней области.
func (s *Session) Execute(ctx context.Context, query string, args ...any) (affected int64, err error) {
	err = s.WithConnection(ctx, func(ctx context.Context) (err error) {
		cur, err := s.Cursor(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := cur.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()

		affected, err = cur.Exec(ctx, s.rebind(query), args...)
		if s.depth > 0 {
			return err
		}
		if err != nil {
			if rbErr := s.rollback(ctx); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
		return s.commit(ctx)
	})
	return affected, err
}

// Insert строит INSERT из строки (колонки в порядке строки) и выполняет его через Execute.
func (s *Session) Insert(ctx context.Context, table string, row Row) (int64, error) {
	if row.Len() == 0 {
		return 0, fmt.Errorf("dbsession: insert into %s: no columns", table)
	}
	cols := make([]string, row.Len())
	marks := make([]string, row.Len())
	for i, c := range row.cols {
		cols[i] = QuoteIdent(c)
		marks[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(table), strings.Join(cols, ","), strings.Join(marks, ","))
	return s.Execute(ctx, query, row.vals...)
}

// QuoteIdent экранирует идентификатор двойными кавычками (SQLite и PostgreSQL).
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// query выполняет запрос на курсоре текущей сессии. limit > 0 ограничивает число строк.
func (s *Session) query(ctx context.Context, limit int, query string, args []any) (out []Row, err error) {
	cur, err := s.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	// Курсор закрывается на любом пути выхода
	defer func() {
		if cerr := cur.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	rows, err := cur.Query(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out = []Row{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, Row{cols: cols, vals: vals})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
